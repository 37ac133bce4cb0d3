package api

import (
	"strconv"

	"github.com/CosmWasm/tinyjson"
	"github.com/CosmWasm/tinyjson/jlexer"
	"github.com/CosmWasm/tinyjson/jwriter"

	"okinoko_treasury/sdk"
)

var (
	_ tinyjson.Marshaler   = (*errorView)(nil)
	_ tinyjson.Marshaler   = (*sharesView)(nil)
	_ tinyjson.Marshaler   = (*blockView)(nil)
	_ tinyjson.Marshaler   = (*treasuryView)(nil)
	_ tinyjson.Unmarshaler = (*devTransferArgs)(nil)
)

// errorView is the body of every failed call: {"kind":"NotFound","error":"..."}.
type errorView struct {
	Kind    string
	Message string
}

func (v *errorView) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawString(`{"kind":`)
	w.String(v.Kind)
	w.RawString(`,"error":`)
	w.String(v.Message)
	w.RawByte('}')
}

type sharesView struct {
	Address sdk.Address
	Shares  sdk.Amount
}

func (v *sharesView) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawString(`{"address":`)
	w.String(v.Address.String())
	w.RawString(`,"shares":`)
	w.Uint64(uint64(v.Shares))
	w.RawByte('}')
}

// blockView reports the ledger block of a transfer.
type blockView struct {
	Block uint64
}

func (v *blockView) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawString(`{"block":`)
	w.Uint64(v.Block)
	w.RawByte('}')
}

type treasuryView struct {
	Identity sdk.Address
	Account  sdk.Account
}

func (v *treasuryView) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawString(`{"identity":`)
	w.String(v.Identity.String())
	w.RawString(`,"account":`)
	w.String(v.Account.String())
	w.RawByte('}')
}

// devTransferArgs simulates an inbound payment in dev mode:
// {"amount":100,"memo":"1234"}. The payer is the caller.
type devTransferArgs struct {
	Amount sdk.Amount
	Memo   uint64
}

func (a *devTransferArgs) UnmarshalTinyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "amount":
			a.Amount = sdk.Amount(in.Uint64())
		case "memo":
			memo, err := strconv.ParseUint(in.String(), 10, 64)
			if err != nil {
				in.AddError(err)
			}
			a.Memo = memo
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}
