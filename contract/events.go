package contract

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"okinoko_treasury/sdk"
)

// Event codes. They stay short so a journal line fits on one screen.
const (
	EventInitialized       = "in"
	EventDepositCreated    = "dc"
	EventDepositDone       = "dd"
	EventDepositDiscarded  = "dx"
	EventDepositRejected   = "df"
	EventSharesTransferred = "st"
	EventSharesRedeemed    = "rd"
	EventProposalCreated   = "pc"
	EventVoteCast          = "v"
	EventProposalResolved  = "pr"
	EventPaymentFailed     = "pf"
)

// Event is one entry of the engine's audit trail.
type Event struct {
	Code         string
	Identity     sdk.Address
	Counterparty sdk.Address
	ProposalID   *uint32
	OrderID      string
	Amount       sdk.Amount
	Result       string
	At           time.Time
}

// String renders the terse pipe form, e.g. "pc|id:3|by:principal:alice|am:0.00000040".
func (e Event) String() string {
	parts := []string{e.Code}
	if e.ProposalID != nil {
		parts = append(parts, "id:"+strconv.FormatUint(uint64(*e.ProposalID), 10))
	}
	if e.OrderID != "" {
		parts = append(parts, "o:"+e.OrderID)
	}
	if e.Identity != "" {
		parts = append(parts, "by:"+e.Identity.String())
	}
	if e.Counterparty != "" {
		parts = append(parts, "to:"+e.Counterparty.String())
	}
	if e.Amount > 0 {
		parts = append(parts, "am:"+e.Amount.Format())
	}
	if e.Result != "" {
		parts = append(parts, "r:"+e.Result)
	}
	return strings.Join(parts, "|")
}

// EventSink receives every event after the state change it describes has
// been committed. A failing sink never fails the operation. Record may run
// with the engine lock held and must not call back into the engine.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

func proposalRef(id uint32) *uint32 { return &id }

// emit logs the event and forwards it to the sink.
func (e *Engine) emit(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	e.logger.Info(
		"treasury event",
		"event", ev.Code,
		"line", ev.String(),
	)
	if e.sink == nil {
		return
	}
	if err := e.sink.Record(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn(
			fmt.Sprintf("failed to record event %s", ev.Code),
			"error", err,
		)
	}
}
