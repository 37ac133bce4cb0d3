package dao

import (
	"strconv"
	"time"

	"github.com/CosmWasm/tinyjson"
	"github.com/CosmWasm/tinyjson/jlexer"
	"github.com/CosmWasm/tinyjson/jwriter"

	"okinoko_treasury/sdk"
)

// Payloads and views travel as JSON. Amounts are integers in the smallest
// denomination, memos are decimal strings (they do not fit a JSON double) and
// times are RFC 3339 strings.

var (
	_ tinyjson.Unmarshaler = (*InitArgs)(nil)
	_ tinyjson.Unmarshaler = (*DepositArgs)(nil)
	_ tinyjson.Unmarshaler = (*CompleteDepositArgs)(nil)
	_ tinyjson.Unmarshaler = (*RedeemArgs)(nil)
	_ tinyjson.Unmarshaler = (*TransferArgs)(nil)
	_ tinyjson.Unmarshaler = (*CreateProposalArgs)(nil)
	_ tinyjson.Marshaler   = (*GovernanceConfig)(nil)
	_ tinyjson.Marshaler   = (*DepositOrder)(nil)
	_ tinyjson.Marshaler   = (*Proposal)(nil)
	_ tinyjson.Marshaler   = (*ExecuteResult)(nil)
	_ tinyjson.Marshaler   = (*Shareholder)(nil)
	_ tinyjson.Marshaler   = (*PayoutMarker)(nil)
)

// ------------------------------------------------------------------
// Lexer helpers
// ------------------------------------------------------------------

// decodeObject walks a JSON object and hands every non-null field to fn.
// Unknown keys must be skipped by fn via in.SkipRecursive().
func decodeObject(in *jlexer.Lexer, fn func(key string)) {
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
		fn(key)
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func readMemo(in *jlexer.Lexer) uint64 {
	raw := in.String()
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		in.AddError(err)
		return 0
	}
	return v
}

// ------------------------------------------------------------------
// Argument payloads
// ------------------------------------------------------------------

// UnmarshalTinyJSON reads {"quorum":50,"contribution_days":1,"vote_minutes":10}.
func (a *InitArgs) UnmarshalTinyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "quorum":
			a.Quorum = in.Int64()
		case "contribution_days":
			a.ContributionDays = in.Int64()
		case "vote_minutes":
			a.VoteMinutes = in.Int64()
		default:
			in.SkipRecursive()
		}
	})
}

// UnmarshalTinyJSON reads {"amount":100}.
func (a *DepositArgs) UnmarshalTinyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "amount":
			a.Amount = sdk.Amount(in.Uint64())
		default:
			in.SkipRecursive()
		}
	})
}

// UnmarshalTinyJSON reads {"order_id":"..","amount":100,"block":7,"memo":"123"}.
func (a *CompleteDepositArgs) UnmarshalTinyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "order_id":
			a.OrderID = in.String()
		case "amount":
			a.Amount = sdk.Amount(in.Uint64())
		case "block":
			a.Block = in.Uint64()
		case "memo":
			a.Memo = readMemo(in)
		default:
			in.SkipRecursive()
		}
	})
}

func (a *RedeemArgs) UnmarshalTinyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "amount":
			a.Amount = sdk.Amount(in.Uint64())
		default:
			in.SkipRecursive()
		}
	})
}

func (a *TransferArgs) UnmarshalTinyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "to":
			a.To = sdk.Address(in.String())
		case "amount":
			a.Amount = sdk.Amount(in.Uint64())
		default:
			in.SkipRecursive()
		}
	})
}

func (a *CreateProposalArgs) UnmarshalTinyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "title":
			a.Title = in.String()
		case "amount":
			a.Amount = sdk.Amount(in.Uint64())
		case "recipient":
			a.Recipient = sdk.Address(in.String())
		default:
			in.SkipRecursive()
		}
	})
}

// ------------------------------------------------------------------
// Views
// ------------------------------------------------------------------

// objectWriter keeps track of commas between fields.
type objectWriter struct {
	w     *jwriter.Writer
	first bool
}

func beginObject(w *jwriter.Writer) *objectWriter {
	w.RawByte('{')
	return &objectWriter{w: w, first: true}
}

func (o *objectWriter) field(name string) *jwriter.Writer {
	if !o.first {
		o.w.RawByte(',')
	}
	o.first = false
	o.w.String(name)
	o.w.RawByte(':')
	return o.w
}

func (o *objectWriter) end() { o.w.RawByte('}') }

func (o *objectWriter) amount(name string, v sdk.Amount) {
	o.field(name).Uint64(uint64(v))
}

func (o *objectWriter) time(name string, t time.Time) {
	if t.IsZero() {
		o.field(name).RawString("null")
		return
	}
	o.field(name).String(t.UTC().Format(time.RFC3339Nano))
}

func (o *objectWriter) optionalBlock(name string, ptr *uint64) {
	if ptr == nil {
		o.field(name).RawString("null")
		return
	}
	o.field(name).Uint64(*ptr)
}

func (c *GovernanceConfig) MarshalTinyJSON(w *jwriter.Writer) {
	o := beginObject(w)
	o.amount("total_shares", c.TotalShares)
	o.amount("available_funds", c.AvailableFunds)
	o.amount("locked_funds", c.LockedFunds)
	o.amount("total_deposited", c.TotalDeposited)
	o.time("contribution_ends", c.ContributionEnds)
	o.field("quorum").Uint8(c.Quorum)
	o.field("vote_time_seconds").Int64(int64(c.VoteTime / time.Second))
	o.field("next_proposal_id").Uint32(c.NextProposalID)
	o.time("initialized_at", c.InitializedAt)
	o.end()
}

func (d *DepositOrder) MarshalTinyJSON(w *jwriter.Writer) {
	o := beginObject(w)
	o.field("id").String(d.ID)
	o.amount("amount", d.Amount)
	o.field("status").String(d.Status.String())
	o.field("depositor").String(d.Depositor.String())
	o.optionalBlock("paid_at_block", d.PaidAtBlock)
	o.field("memo").String(strconv.FormatUint(d.Memo, 10))
	o.time("created_at", d.CreatedAt)
	o.time("expires_at", d.ExpiresAt)
	o.end()
}

func (p *Proposal) MarshalTinyJSON(w *jwriter.Writer) {
	o := beginObject(w)
	o.field("id").Uint32(p.ID)
	o.field("title").String(p.Title)
	o.amount("amount", p.Amount)
	o.field("recipient").String(p.Recipient.String())
	o.field("creator").String(p.Creator.String())
	o.amount("votes", p.Votes)
	o.time("created_at", p.CreatedAt)
	o.time("ends", p.Ends)
	o.field("executed").Bool(p.Executed)
	o.field("ended").Bool(p.Ended)
	o.amount("total_shares_snapshot", p.TotalSharesSnapshot)
	o.optionalBlock("paid_at_block", p.PaidAtBlock)
	o.end()
}

func (r *ExecuteResult) MarshalTinyJSON(w *jwriter.Writer) {
	o := beginObject(w)
	o.field("executed").Bool(r.Executed)
	r.Proposal.MarshalTinyJSON(o.field("proposal"))
	o.end()
}

func (s *Shareholder) MarshalTinyJSON(w *jwriter.Writer) {
	o := beginObject(w)
	o.field("address").String(s.Address.String())
	o.amount("shares", s.Shares)
	o.end()
}

func (m *PayoutMarker) MarshalTinyJSON(w *jwriter.Writer) {
	o := beginObject(w)
	o.field("kind").String(m.Kind.String())
	o.field("beneficiary").String(m.Beneficiary.String())
	o.amount("amount", m.Amount)
	o.field("proposal_id").Uint32(m.ProposalID)
	o.time("started_at", m.StartedAt)
	o.end()
}

// ------------------------------------------------------------------
// Slices
// ------------------------------------------------------------------

// ProposalList is the JSON view of getProposals.
type ProposalList []Proposal

func (l ProposalList) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawByte('[')
	for i := range l {
		if i > 0 {
			w.RawByte(',')
		}
		l[i].MarshalTinyJSON(w)
	}
	w.RawByte(']')
}

// DepositList is the JSON view of a deposit history.
type DepositList []DepositOrder

func (l DepositList) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawByte('[')
	for i := range l {
		if i > 0 {
			w.RawByte(',')
		}
		l[i].MarshalTinyJSON(w)
	}
	w.RawByte(']')
}

// ShareholderList is the JSON view of every share balance.
type ShareholderList []Shareholder

func (l ShareholderList) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawByte('[')
	for i := range l {
		if i > 0 {
			w.RawByte(',')
		}
		l[i].MarshalTinyJSON(w)
	}
	w.RawByte(']')
}

// PayoutMarkerList is the JSON view of unresolved payouts.
type PayoutMarkerList []PayoutMarker

func (l PayoutMarkerList) MarshalTinyJSON(w *jwriter.Writer) {
	w.RawByte('[')
	for i := range l {
		if i > 0 {
			w.RawByte(',')
		}
		l[i].MarshalTinyJSON(w)
	}
	w.RawByte(']')
}
