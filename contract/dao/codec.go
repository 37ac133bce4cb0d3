package dao

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"okinoko_treasury/sdk"
)

// codecVersion prefixes every record so the layout can evolve.
const codecVersion byte = 1

var (
	ErrUnexpectedEOF = errors.New("unexpected EOF")
	ErrBadVersion    = errors.New("unsupported record version")
)

type binWriter struct {
	buf bytes.Buffer
}

func newWriter() *binWriter {
	w := &binWriter{}
	w.buf.WriteByte(codecVersion)
	return w
}

func (w *binWriter) bytes() []byte { return w.buf.Bytes() }

func (w *binWriter) writeByte(v byte) { w.buf.WriteByte(v) }

func (w *binWriter) writeBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *binWriter) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *binWriter) writeInt64(v int64) {
	w.writeUint64(uint64(v))
}

func (w *binWriter) writeVarUint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

func (w *binWriter) writeAmount(v sdk.Amount) {
	w.writeUint64(uint64(v))
}

func (w *binWriter) writeString(s string) {
	w.writeVarUint(uint64(len(s)))
	w.buf.WriteString(s)
}

func (w *binWriter) writeAddress(a sdk.Address) {
	w.writeString(a.String())
}

// writeTime stores unix nanoseconds; the zero time is stored as 0.
func (w *binWriter) writeTime(t time.Time) {
	if t.IsZero() {
		w.writeInt64(0)
		return
	}
	w.writeInt64(t.UnixNano())
}

func (w *binWriter) writeOptionalUint64(ptr *uint64) {
	if ptr == nil {
		w.writeBool(false)
		return
	}
	w.writeBool(true)
	w.writeUint64(*ptr)
}

// EncodeGovernanceConfig serializes the treasury singleton.
func EncodeGovernanceConfig(cfg *GovernanceConfig) []byte {
	w := newWriter()
	w.writeAmount(cfg.TotalShares)
	w.writeAmount(cfg.AvailableFunds)
	w.writeAmount(cfg.LockedFunds)
	w.writeAmount(cfg.TotalDeposited)
	w.writeTime(cfg.ContributionEnds)
	w.writeByte(cfg.Quorum)
	w.writeInt64(int64(cfg.VoteTime))
	w.writeVarUint(uint64(cfg.NextProposalID))
	w.writeTime(cfg.InitializedAt)
	return w.bytes()
}

// EncodeDepositOrder serializes a pending or completed order.
func EncodeDepositOrder(o *DepositOrder) []byte {
	w := newWriter()
	w.writeString(o.ID)
	w.writeAmount(o.Amount)
	w.writeByte(byte(o.Status))
	w.writeAddress(o.Depositor)
	w.writeOptionalUint64(o.PaidAtBlock)
	w.writeUint64(o.Memo)
	w.writeTime(o.CreatedAt)
	w.writeTime(o.ExpiresAt)
	return w.bytes()
}

// EncodeProposal serializes a proposal.
func EncodeProposal(p *Proposal) []byte {
	w := newWriter()
	w.writeVarUint(uint64(p.ID))
	w.writeString(p.Title)
	w.writeAmount(p.Amount)
	w.writeAddress(p.Recipient)
	w.writeAddress(p.Creator)
	w.writeAmount(p.Votes)
	w.writeTime(p.CreatedAt)
	w.writeTime(p.Ends)
	w.writeBool(p.Executed)
	w.writeBool(p.Ended)
	w.writeAmount(p.TotalSharesSnapshot)
	w.writeOptionalUint64(p.PaidAtBlock)
	return w.bytes()
}

// EncodePayoutMarker serializes an in-flight payout marker.
func EncodePayoutMarker(m *PayoutMarker) []byte {
	w := newWriter()
	w.writeByte(byte(m.Kind))
	w.writeAddress(m.Beneficiary)
	w.writeAmount(m.Amount)
	w.writeVarUint(uint64(m.ProposalID))
	w.writeTime(m.StartedAt)
	return w.bytes()
}

// ------------------------------------------------------------------
// Decoder helpers
// ------------------------------------------------------------------

type binReader struct {
	data []byte
	pos  int
}

func newReader(data []byte) (*binReader, error) {
	r := &binReader{data: data}
	v, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if v != codecVersion {
		return nil, ErrBadVersion
	}
	return r, nil
}

func (r *binReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *binReader) readBool() (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

func (r *binReader) readUint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	val := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return val, nil
}

func (r *binReader) readInt64() (int64, error) {
	v, err := r.readUint64()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func (r *binReader) readVarUint() (uint64, error) {
	if r.pos >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	val, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, errors.New("invalid varuint")
	}
	r.pos += n
	return val, nil
}

func (r *binReader) readUint32() (uint32, error) {
	v, err := r.readVarUint()
	if err != nil {
		return 0, err
	}
	if v > uint64(^uint32(0)) {
		return 0, errors.New("value overflows uint32")
	}
	return uint32(v), nil
}

func (r *binReader) readAmount() (sdk.Amount, error) {
	val, err := r.readUint64()
	if err != nil {
		return 0, err
	}
	return sdk.Amount(val), nil
}

func (r *binReader) readString() (string, error) {
	l, err := r.readVarUint()
	if err != nil {
		return "", err
	}
	if l > uint64(len(r.data)-r.pos) {
		return "", ErrUnexpectedEOF
	}
	s := string(r.data[r.pos : r.pos+int(l)])
	r.pos += int(l)
	return s, nil
}

func (r *binReader) readAddress() (sdk.Address, error) {
	s, err := r.readString()
	if err != nil {
		return "", err
	}
	return sdk.Address(s), nil
}

func (r *binReader) readTime() (time.Time, error) {
	v, err := r.readInt64()
	if err != nil {
		return time.Time{}, err
	}
	if v == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, v).UTC(), nil
}

func (r *binReader) readOptionalUint64() (*uint64, error) {
	ok, err := r.readBool()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	val, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return &val, nil
}

// DecodeGovernanceConfig restores the treasury singleton.
func DecodeGovernanceConfig(data []byte) (*GovernanceConfig, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	cfg := &GovernanceConfig{}
	if cfg.TotalShares, err = r.readAmount(); err != nil {
		return nil, err
	}
	if cfg.AvailableFunds, err = r.readAmount(); err != nil {
		return nil, err
	}
	if cfg.LockedFunds, err = r.readAmount(); err != nil {
		return nil, err
	}
	if cfg.TotalDeposited, err = r.readAmount(); err != nil {
		return nil, err
	}
	if cfg.ContributionEnds, err = r.readTime(); err != nil {
		return nil, err
	}
	if cfg.Quorum, err = r.readByte(); err != nil {
		return nil, err
	}
	voteTime, err := r.readInt64()
	if err != nil {
		return nil, err
	}
	cfg.VoteTime = time.Duration(voteTime)
	if cfg.NextProposalID, err = r.readUint32(); err != nil {
		return nil, err
	}
	if cfg.InitializedAt, err = r.readTime(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeDepositOrder restores an order.
func DecodeDepositOrder(data []byte) (*DepositOrder, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	o := &DepositOrder{}
	if o.ID, err = r.readString(); err != nil {
		return nil, err
	}
	if o.Amount, err = r.readAmount(); err != nil {
		return nil, err
	}
	status, err := r.readByte()
	if err != nil {
		return nil, err
	}
	o.Status = DepositStatus(status)
	if o.Depositor, err = r.readAddress(); err != nil {
		return nil, err
	}
	if o.PaidAtBlock, err = r.readOptionalUint64(); err != nil {
		return nil, err
	}
	if o.Memo, err = r.readUint64(); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = r.readTime(); err != nil {
		return nil, err
	}
	if o.ExpiresAt, err = r.readTime(); err != nil {
		return nil, err
	}
	return o, nil
}

// DecodeProposal restores a proposal.
func DecodeProposal(data []byte) (*Proposal, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	p := &Proposal{}
	if p.ID, err = r.readUint32(); err != nil {
		return nil, err
	}
	if p.Title, err = r.readString(); err != nil {
		return nil, err
	}
	if p.Amount, err = r.readAmount(); err != nil {
		return nil, err
	}
	if p.Recipient, err = r.readAddress(); err != nil {
		return nil, err
	}
	if p.Creator, err = r.readAddress(); err != nil {
		return nil, err
	}
	if p.Votes, err = r.readAmount(); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = r.readTime(); err != nil {
		return nil, err
	}
	if p.Ends, err = r.readTime(); err != nil {
		return nil, err
	}
	if p.Executed, err = r.readBool(); err != nil {
		return nil, err
	}
	if p.Ended, err = r.readBool(); err != nil {
		return nil, err
	}
	if p.TotalSharesSnapshot, err = r.readAmount(); err != nil {
		return nil, err
	}
	if p.PaidAtBlock, err = r.readOptionalUint64(); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodePayoutMarker restores an in-flight payout marker.
func DecodePayoutMarker(data []byte) (*PayoutMarker, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	m := &PayoutMarker{}
	kind, err := r.readByte()
	if err != nil {
		return nil, err
	}
	m.Kind = PayoutKind(kind)
	if m.Beneficiary, err = r.readAddress(); err != nil {
		return nil, err
	}
	if m.Amount, err = r.readAmount(); err != nil {
		return nil, err
	}
	if m.ProposalID, err = r.readUint32(); err != nil {
		return nil, err
	}
	if m.StartedAt, err = r.readTime(); err != nil {
		return nil, err
	}
	return m, nil
}
