package contract

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"okinoko_treasury/sdk"
)

// CorrelationTag derives the memo a depositor attaches to the payment so the
// transfer can be matched to its pending order. It only has to avoid
// accidental collisions; verification never trusts the tag alone.
// Example payload: CorrelationTag("0c9d..", "principal:alice", time.Now())
func CorrelationTag(orderID string, caller sdk.Address, at time.Time) uint64 {
	var sb strings.Builder
	sb.WriteString(orderID)
	sb.WriteByte('_')
	sb.WriteString(caller.String())
	sb.WriteByte('_')
	sb.WriteString(strconv.FormatInt(at.UnixNano(), 10))
	return xxhash.Sum64String(sb.String())
}
