package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"okinoko_treasury/contract"
	"okinoko_treasury/contract/dao"
	"okinoko_treasury/internal/config"
	"okinoko_treasury/internal/journal"
	"okinoko_treasury/sdk"
)

// treasury bundles the engine with the resources it was opened on.
type treasury struct {
	engine  *contract.Engine
	ledger  *sdk.MemLedger
	state   contract.State
	journal *journal.Journal
}

func openState(ctx context.Context, cfg *config.Config, logger *slog.Logger) (contract.State, error) {
	switch cfg.StateBackend {
	case config.StateMemory:
		return contract.NewMemoryState(), nil
	case config.StateBadger:
		return contract.NewBadgerState(filepath.Join(cfg.DatabasePath, "state"), logger)
	case config.StateRedis:
		return contract.NewRedisState(ctx, cfg.RedisURL, cfg.RedisNamespace)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

// openTreasury opens state and journal and builds the engine on top.
// registry may be nil.
func openTreasury(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry prometheus.Registerer) (*treasury, error) {
	state, err := openState(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	j, err := journal.Open(cfg.JournalDSN, logger)
	if err != nil {
		state.Close()
		return nil, err
	}
	identity := sdk.Address(cfg.TreasuryIdentity)
	if !identity.IsValid() {
		state.Close()
		j.Close()
		return nil, fmt.Errorf("treasury identity %q is not an address", identity)
	}
	ledger := sdk.NewMemLedger(sdk.DefaultResolver{}.AccountOf(identity), sdk.Amount(cfg.LedgerFee))
	engine, err := contract.New(contract.Options{
		State:             state,
		Ledger:            ledger,
		Treasury:          identity,
		Logger:            logger,
		PromRegistry:      registry,
		Sink:              j,
		ReservationPeriod: cfg.ReservationPeriod,
	})
	if err != nil {
		state.Close()
		j.Close()
		return nil, err
	}
	return &treasury{engine: engine, ledger: ledger, state: state, journal: j}, nil
}

// ensureInitialized initializes the governance config from cfg unless the
// state already holds one.
func (t *treasury) ensureInitialized(ctx context.Context, gov config.Governance) (*dao.GovernanceConfig, bool, error) {
	current, err := t.engine.GovernanceConfig(ctx)
	if err == nil {
		return current, false, nil
	}
	if !errors.Is(err, contract.ErrNotConfigured) {
		return nil, false, err
	}
	created, err := t.engine.Initialize(ctx, dao.InitArgs{
		Quorum:           gov.Quorum,
		ContributionDays: gov.ContributionDays,
		VoteMinutes:      gov.VoteMinutes,
	})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (t *treasury) Close() error {
	t.engine.Close()
	return errors.Join(t.journal.Close(), t.state.Close())
}
