package contract

import (
	"encoding/binary"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

const (
	// kGovernanceConfig holds the single encoded GovernanceConfig.
	kGovernanceConfig byte = 0x01
	// kShareBalance maps an identity to its share balance (decimal text).
	kShareBalance byte = 0x02
	// kPendingDeposit holds PaymentPending orders keyed by correlation tag.
	kPendingDeposit byte = 0x03
	// kDepositOrder keeps the latest completed order per identity.
	kDepositOrder byte = 0x04
	// kDepositHistory keeps every completed order: identity + order id.
	kDepositHistory byte = 0x05
	// kProposalMeta contains encoded Proposal records.
	kProposalMeta byte = 0x10
	// kVoteReceipt marks that an identity voted on a proposal. Write-once.
	kVoteReceipt byte = 0x20
	// kPayoutMarker flags an outbound transfer whose outcome is not committed yet.
	kPayoutMarker byte = 0x30
)

// Numbers are packed big-endian so prefix scans come back in numeric order.

func packU64BE(x uint64, dst []byte) []byte {
	return binary.BigEndian.AppendUint64(dst, x)
}

func packU32BE(x uint32, dst []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, x)
}

// packAddress length-prefixes the identity so "alice" never prefixes "alice2".
func packAddress(addr sdk.Address, dst []byte) []byte {
	s := addr.String()
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func unpackAddress(src []byte) (sdk.Address, []byte, bool) {
	l, n := binary.Uvarint(src)
	if n <= 0 || uint64(len(src)-n) < l {
		return "", nil, false
	}
	end := n + int(l)
	return sdk.Address(src[n:end]), src[end:], true
}

func governanceConfigKey() []byte {
	return []byte{kGovernanceConfig}
}

func shareBalanceKey(addr sdk.Address) []byte {
	return packAddress(addr, []byte{kShareBalance})
}

func pendingDepositKey(tag uint64) []byte {
	return packU64BE(tag, []byte{kPendingDeposit})
}

func depositOrderKey(addr sdk.Address) []byte {
	return packAddress(addr, []byte{kDepositOrder})
}

// depositHistoryPrefix covers every completed order of one identity.
func depositHistoryPrefix(addr sdk.Address) []byte {
	return packAddress(addr, []byte{kDepositHistory})
}

func depositHistoryKey(addr sdk.Address, orderID string) []byte {
	return append(depositHistoryPrefix(addr), orderID...)
}

func proposalKey(id uint32) []byte {
	return packU32BE(id, []byte{kProposalMeta})
}

func voteReceiptKey(id uint32, voter sdk.Address) []byte {
	buf := packU32BE(id, []byte{kVoteReceipt})
	return packAddress(voter, buf)
}

// payoutMarkerKey orders markers by start time; the kind byte keeps a redeem
// and a proposal payout started in the same nanosecond apart.
func payoutMarkerKey(m *dao.PayoutMarker) []byte {
	buf := packU64BE(uint64(m.StartedAt.UnixNano()), []byte{kPayoutMarker})
	buf = append(buf, byte(m.Kind))
	return packU32BE(m.ProposalID, buf)
}
