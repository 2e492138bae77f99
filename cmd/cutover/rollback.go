package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/traffic"
	"github.com/nkefor/cutover/pkg/types"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Repoint traffic at a previously active environment",
	Long: `Rollback reverts the load balancer's default rule to the given color.
It is idempotent: if traffic already points at that color, nothing is
changed. The environment being rolled back away from is left running
for inspection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		reason, _ := cmd.Flags().GetString("reason")

		toColor := types.Color(to)
		if toColor != types.ColorBlue && toColor != types.ColorGreen {
			return fmt.Errorf("--to must be 'blue' or 'green', got %q", to)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr := traffic.NewRollbackManager(cfg, routing.NewHTTPClient(cfg.RoutingAPI), st)

		fmt.Printf("Rolling back service '%s' to %s...\n", cfg.Service, toColor)

		state, err := mgr.Rollback(ctx, toColor, reason)
		if err != nil {
			return fmt.Errorf("rollback failed, routing state is indeterminate: %w", err)
		}

		fmt.Printf("✓ Traffic now points at %s (%s)\n", state.ActiveColor, state.TargetGroupRef)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().String("to", "", "Color to roll back to (blue|green)")
	rollbackCmd.Flags().String("reason", "manual rollback", "Reason recorded in the audit trail")
	rollbackCmd.MarkFlagRequired("to")
}
