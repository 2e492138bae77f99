package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkefor/cutover/pkg/compute"
	"github.com/nkefor/cutover/pkg/resolver"
	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which environment is live and recent deployment history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res := resolver.New(cfg,
			routing.NewHTTPClient(cfg.RoutingAPI),
			compute.NewHTTPClient(cfg.ComputeAPI),
		)

		active, standby, err := res.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve environments: %w", err)
		}

		fmt.Printf("Service: %s\n\n", cfg.Service)
		printEnvironment("active ", active)
		printEnvironment("standby", standby)

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		deployments, err := st.ListDeployments(cfg.Service, 5)
		if err != nil {
			return fmt.Errorf("failed to list deployments: %w", err)
		}

		if len(deployments) > 0 {
			fmt.Println("\nRecent deployments:")
			for _, d := range deployments {
				fmt.Printf("  %s  %-10s  %-25s  %s\n",
					d.StartedAt.Format(time.RFC3339), d.Phase, d.ImageRef, d.ID)
			}
		}

		rollbacks, err := st.ListRollbacks(cfg.Service, 5)
		if err != nil {
			return fmt.Errorf("failed to list rollbacks: %w", err)
		}

		if len(rollbacks) > 0 {
			fmt.Println("\nRecent rollbacks:")
			for _, r := range rollbacks {
				outcome := "ok"
				if !r.Succeeded {
					outcome = "FAILED"
				}
				fmt.Printf("  %s  %s → %s  [%s]  %s\n",
					r.Timestamp.Format(time.RFC3339), r.FromColor, r.ToColor, outcome, r.Reason)
			}
		}

		return nil
	},
}

func printEnvironment(label string, env types.Environment) {
	fmt.Printf("  %s  %-5s  service=%s  targetGroup=%s  running=%d/%d\n",
		label, env.Color, env.ServiceID, env.TargetGroupRef, env.RunningCount, env.DesiredCount)
}
