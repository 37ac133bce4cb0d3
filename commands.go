package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/CosmWasm/tinyjson"
	"github.com/spf13/cobra"

	"okinoko_treasury/contract"
	"okinoko_treasury/contract/dao"
	"okinoko_treasury/internal/api"
	"okinoko_treasury/internal/config"
	"okinoko_treasury/sdk"
)

// initCommand writes the governance config into the state and exits.
func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the treasury state from the governance config",
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
			logger := commonRun(cfg)
			t, err := openTreasury(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer t.Close()
			gov, created, err := t.ensureInitialized(cmd.Context(), cfg.Governance)
			if err != nil {
				if errors.Is(err, contract.ErrInvalidConfig) {
					return fmt.Errorf("invalid governance parameters: %w", err)
				}
				return err
			}
			if !created {
				logger.Info("treasury already initialized", "initialized_at", gov.InitializedAt)
			}
			return printJSON(gov)
		}),
	}
}

// statusCommand prints the governance config, the shareholders and any
// payout whose outcome is unknown.
func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print governance config and shareholders",
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
			logger := commonRun(cfg)
			t, err := openTreasury(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer t.Close()
			ctx := cmd.Context()
			gov, err := t.engine.GovernanceConfig(ctx)
			if err != nil {
				return err
			}
			holders, err := t.engine.Shareholders(ctx)
			if err != nil {
				return err
			}
			markers, err := t.engine.InFlightPayouts(ctx)
			if err != nil {
				return err
			}
			return errors.Join(
				printJSON(gov),
				printJSON(dao.ShareholderList(holders)),
				printJSON(dao.PayoutMarkerList(markers)),
			)
		}),
	}
}

// tokenCommand mints a bearer token for an identity, signed with the
// configured key.
// Example payload: treasury token --identity principal:alice --ttl 24h
func tokenCommand() *cobra.Command {
	var (
		identity string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for an identity",
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
			if cfg.JWTSecret == "" {
				return errors.New("jwtSecret must be set to mint tokens")
			}
			addr := sdk.Address(identity)
			if !addr.IsValid() {
				return fmt.Errorf("invalid identity %q", identity)
			}
			token, err := api.NewTokenService(cfg.JWTSecret, programName).Issue(addr, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		}),
	}
	cmd.Flags().StringVar(&identity, "identity", "", "identity the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func printJSON(v tinyjson.Marshaler) error {
	out, err := tinyjson.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
