package contract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"okinoko_treasury/contract/dao"
)

// -----------------------------------------------------------------------------
// Governance Configuration State
// -----------------------------------------------------------------------------

// loadConfigLocked reads the governance singleton, NotConfigured until
// Initialize ran.
func (e *Engine) loadConfigLocked(ctx context.Context) (*dao.GovernanceConfig, error) {
	data, err := e.state.Get(ctx, governanceConfigKey())
	if errors.Is(err, ErrKeyNotFound) {
		return nil, newError(KindNotConfigured, "treasury not initialized")
	}
	if err != nil {
		return nil, fmt.Errorf("load governance config: %w", err)
	}
	cfg, err := dao.DecodeGovernanceConfig(data)
	if err != nil {
		return nil, fmt.Errorf("decode governance config: %w", err)
	}
	return cfg, nil
}

func putConfig(b *Batch, cfg *dao.GovernanceConfig) {
	b.Set(governanceConfigKey(), dao.EncodeGovernanceConfig(cfg))
}

// Initialize creates the governance singleton. It runs once; bad bounds and
// a second call fail with InvalidConfig.
// Example payload: Initialize(ctx, dao.InitArgs{Quorum: 50, ContributionDays: 1, VoteMinutes: 10})
func (e *Engine) Initialize(ctx context.Context, args dao.InitArgs) (*dao.GovernanceConfig, error) {
	if args.Quorum < 0 || args.Quorum > 100 {
		return nil, newError(KindInvalidConfig, "quorum %d outside [0,100]", args.Quorum)
	}
	if args.ContributionDays < 0 {
		return nil, newError(KindInvalidConfig, "negative contribution time")
	}
	if args.VoteMinutes < 0 {
		return nil, newError(KindInvalidConfig, "negative vote time")
	}
	// keep durations inside time.Duration
	const maxDays = math.MaxInt64 / int64(24*time.Hour)
	const maxMinutes = math.MaxInt64 / int64(time.Minute)
	if args.ContributionDays > maxDays || args.VoteMinutes > maxMinutes {
		return nil, newError(KindInvalidConfig, "time value out of range")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.loadConfigLocked(ctx)
	if err == nil {
		return nil, newError(KindInvalidConfig, "already initialized")
	}
	if !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}

	now := e.clock.Now()
	cfg := &dao.GovernanceConfig{
		ContributionEnds: now.Add(time.Duration(args.ContributionDays) * 24 * time.Hour),
		Quorum:           uint8(args.Quorum),
		VoteTime:         time.Duration(args.VoteMinutes) * time.Minute,
		NextProposalID:   0,
		InitializedAt:    now,
	}
	b := &Batch{}
	putConfig(b, cfg)
	if err := e.state.Commit(ctx, b); err != nil {
		return nil, err
	}
	e.metrics.observeConfig(cfg)
	e.emit(ctx, Event{Code: EventInitialized, Result: fmt.Sprintf("q:%d", cfg.Quorum), At: now})
	return cfg, nil
}

// GovernanceConfig returns a copy of the singleton.
func (e *Engine) GovernanceConfig(ctx context.Context) (*dao.GovernanceConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadConfigLocked(ctx)
}
