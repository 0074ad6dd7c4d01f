package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
	"github.com/mihaimyh/rolebridge/pkg/config"
)

const ledgerCommandTimeout = 30 * time.Second

func ledgerCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and repair the subscription ledger",
		Long: `Inspect and repair the subscription ledger.

Only LEDGER_BACKEND and its connection settings are required. The in-memory
backend does not outlive the server process and cannot be used here.

Examples:
  rolebridge ledger get sub_1Nx...
  rolebridge ledger record sub_1Nx... --member 123456789012345678
  rolebridge ledger delete sub_1Nx...`,
	}
	cmd.AddCommand(ledgerGetCmd(root), ledgerRecordCmd(root), ledgerDeleteCmd(root))
	return cmd
}

func ledgerGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <subscription-id>",
		Short: "Print the ledger row for a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), root, func(ctx context.Context, ledger bridge.Ledger) error {
				row, err := ledger.FindBySubscriptionID(ctx, args[0])
				if errors.Is(err, bridge.ErrLedgerRowNotFound) {
					return fmt.Errorf("no ledger row for %s", args[0])
				}
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(row)
			})
		},
	}
}

// ledgerRecordCmd repairs a grant whose ledger write failed.
func ledgerRecordCmd(root *rootOptions) *cobra.Command {
	var memberID, customerID string
	cmd := &cobra.Command{
		Use:   "record <subscription-id>",
		Short: "Record a subscription that was granted without a ledger row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID = strings.TrimSpace(memberID)
			if _, err := strconv.ParseUint(memberID, 10, 64); err != nil {
				return fmt.Errorf("--member must be a numeric Discord user id")
			}
			return withLedger(cmd.Context(), root, func(ctx context.Context, ledger bridge.Ledger) error {
				err := ledger.Record(ctx, &bridge.LedgerRow{
					SubscriptionID: args[0],
					CustomerID:     customerID,
					MemberID:       memberID,
					CreatedAt:      time.Now().UTC(),
				})
				if errors.Is(err, bridge.ErrLedgerRowExists) {
					return fmt.Errorf("%s is already recorded", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for member %s\n", args[0], memberID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "Discord user id the subscription belongs to (required)")
	cmd.Flags().StringVar(&customerID, "customer", "", "Stripe customer id")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func ledgerDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <subscription-id>",
		Short: "Remove the ledger row for a subscription without touching roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), root, func(ctx context.Context, ledger bridge.Ledger) error {
				if err := ledger.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func withLedger(ctx context.Context, root *rootOptions, fn func(context.Context, bridge.Ledger) error) error {
	cfg, err := config.Load(root.envFile)
	if err != nil {
		return err
	}
	if err := cfg.ValidateLedger(); err != nil {
		return err
	}
	if cfg.LedgerBackend == config.BackendMemory {
		return fmt.Errorf("LEDGER_BACKEND=memory is not persistent; set a durable backend")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerCommandTimeout)
	defer cancel()

	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()
	return fn(ctx, ledger)
}
