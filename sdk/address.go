package sdk

import "strings"

type AddressDomain string

const (
	AddressDomainUser     AddressDomain = "user"
	AddressDomainContract AddressDomain = "contract"
	AddressDomainSystem   AddressDomain = "system"
)

type AddressType string

const (
	AddressTypePrincipal AddressType = "principal"
	AddressTypeKey       AddressType = "key"
	AddressTypeSystem    AddressType = "system"
	AddressTypeUnknown   AddressType = "unknown"
)

// Address is the opaque caller identity handed over by the host. The engine
// only compares and stores it.
type Address string

// String returns the literal representation (like principal:alice) of the address.
// Example payload: sdk.Address("principal:foo").String()
func (a Address) String() string {
	return string(a)
}

// Domain quickly checks the prefix to guess if we deal with user/contract/system domain.
// Example payload: sdk.Address("contract:treasury").Domain()
func (a Address) Domain() AddressDomain {
	if strings.HasPrefix(a.String(), "system:") {
		return AddressDomainSystem
	}
	if strings.HasPrefix(a.String(), "contract:") {
		return AddressDomainContract
	}
	return AddressDomainUser
}

// Type inspects the prefix to categorize the address (principal, key, system).
// Example payload: sdk.Address("did:key:z6Mk").Type()
func (a Address) Type() AddressType {
	switch {
	case strings.HasPrefix(a.String(), "principal:"), strings.HasPrefix(a.String(), "contract:"):
		return AddressTypePrincipal
	case strings.HasPrefix(a.String(), "did:key:"):
		return AddressTypeKey
	case strings.HasPrefix(a.String(), "system:"):
		return AddressTypeSystem
	default:
		return AddressTypeUnknown
	}
}

// IsValid returns false if the address type detection failed, used as a light sanity check.
// Example payload: sdk.Address("foo").IsValid()
func (a Address) IsValid() bool {
	return a.Type() != AddressTypeUnknown
}

// Account is a ledger account as understood by the payment ledger.
type Account string

func (a Account) String() string {
	return string(a)
}

// AccountResolver turns an identity into the ledger account it pays from and
// receives to. Wallet formatting lives with the host.
type AccountResolver interface {
	AccountOf(owner Address) Account
}

// DefaultResolver maps every identity onto the account "acct:<identity>".
type DefaultResolver struct{}

func (DefaultResolver) AccountOf(owner Address) Account {
	return Account("acct:" + owner.String())
}
