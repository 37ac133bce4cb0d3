package contract

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the engine reports to its callers.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotConfigured
	KindInvalidConfig
	KindInvalidPayload
	KindNotFound
	KindInsufficientFunds
	KindInsufficientShares
	KindAlreadyVoted
	KindVotingClosed
	KindTooEarly
	KindAlreadyEnded
	KindVerificationFailed
	KindPaymentFailed
)

var kindNames = map[Kind]string{
	KindUnknown:            "Unknown",
	KindNotConfigured:      "NotConfigured",
	KindInvalidConfig:      "InvalidConfig",
	KindInvalidPayload:     "InvalidPayload",
	KindNotFound:           "NotFound",
	KindInsufficientFunds:  "InsufficientFunds",
	KindInsufficientShares: "InsufficientShares",
	KindAlreadyVoted:       "AlreadyVoted",
	KindVotingClosed:       "VotingClosed",
	KindTooEarly:           "TooEarly",
	KindAlreadyEnded:       "AlreadyEnded",
	KindVerificationFailed: "VerificationFailed",
	KindPaymentFailed:      "PaymentFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is the typed result returned by every engine operation.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotConfigured      = &Error{Kind: KindNotConfigured}
	ErrInvalidConfig      = &Error{Kind: KindInvalidConfig}
	ErrInvalidPayload     = &Error{Kind: KindInvalidPayload}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientShares = &Error{Kind: KindInsufficientShares}
	ErrAlreadyVoted       = &Error{Kind: KindAlreadyVoted}
	ErrVotingClosed       = &Error{Kind: KindVotingClosed}
	ErrTooEarly           = &Error{Kind: KindTooEarly}
	ErrAlreadyEnded       = &Error{Kind: KindAlreadyEnded}
	ErrVerificationFailed = &Error{Kind: KindVerificationFailed}
	ErrPaymentFailed      = &Error{Kind: KindPaymentFailed}
)

func newError(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
