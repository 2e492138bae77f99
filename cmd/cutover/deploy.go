package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkefor/cutover/pkg/compute"
	"github.com/nkefor/cutover/pkg/events"
	"github.com/nkefor/cutover/pkg/metrics"
	"github.com/nkefor/cutover/pkg/pipeline"
	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/types"
)

// Exit codes for CI pipelines: the caller can distinguish a clean rollback
// from a deployment that needs manual attention.
const (
	exitPromoted   = 0
	exitRolledBack = 1
	exitFailed     = 2
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy an image to the standby environment and switch traffic to it",
	Long: `Deploy runs the full blue/green pipeline: resolve which color is live,
roll the new image out to the standby environment, wait for it to
converge, gate on health, switch the load balancer's default rule, and
verify the new environment under real traffic.

Exit codes: 0 promoted, 1 rolled back, 2 failed (manual attention needed).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			go func() {
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
				}
			}()
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		sub := broker.Subscribe()
		go printProgress(sub)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Deploying %s to service '%s'\n\n", image, cfg.Service)

		ctrl := pipeline.New(cfg,
			compute.NewHTTPClient(cfg.ComputeAPI),
			routing.NewHTTPClient(cfg.RoutingAPI),
			pipeline.WithStore(st),
			pipeline.WithBroker(broker),
		)

		deployment, runErr := ctrl.Run(ctx, image)
		if errors.Is(runErr, pipeline.ErrDeploymentInProgress) {
			return runErr
		}

		printSummary(deployment, runErr)

		if deployment != nil && deployment.Phase != types.PhasePromoted {
			st.Close()
			if deployment.Phase == types.PhaseRolledBack {
				os.Exit(exitRolledBack)
			}
			os.Exit(exitFailed)
		}
		return nil
	},
}

func init() {
	deployCmd.Flags().String("image", "", "Image reference to deploy")
	deployCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while the pipeline runs")
	deployCmd.MarkFlagRequired("image")
}

func printProgress(sub events.Subscriber) {
	for event := range sub {
		switch event.Type {
		case events.EventPhaseChanged:
			fmt.Printf("  → %s\n", event.Phase)
		case events.EventRolledBack:
			fmt.Printf("  → rolled back: %s\n", event.Message)
		}
	}
}

func printSummary(deployment *types.Deployment, runErr error) {
	if deployment == nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", runErr)
		return
	}

	fmt.Println()
	fmt.Println("Deployment summary")
	fmt.Printf("  ID:       %s\n", deployment.ID)
	fmt.Printf("  Service:  %s\n", deployment.Service)
	fmt.Printf("  Image:    %s\n", deployment.ImageRef)
	if deployment.TargetColor != "" {
		fmt.Printf("  Target:   %s\n", deployment.TargetColor)
	}
	fmt.Printf("  Duration: %s\n", deployment.FinishedAt.Sub(deployment.StartedAt).Round(time.Millisecond))
	fmt.Println()

	for _, tr := range deployment.Transitions {
		line := fmt.Sprintf("  %s  %s", tr.At.Format(time.RFC3339), tr.Phase)
		if tr.Reason != "" {
			line += fmt.Sprintf("  (%s)", tr.Reason)
		}
		fmt.Println(line)
	}
	fmt.Println()

	switch deployment.Phase {
	case types.PhasePromoted:
		fmt.Printf("✓ Promoted: %s is now live\n", deployment.TargetColor)
	case types.PhaseRolledBack:
		fmt.Printf("✗ Rolled back: traffic restored to %s\n", deployment.TargetColor.Other())
		fmt.Printf("  Reason: %s\n", deployment.Reason)
	default:
		fmt.Printf("✗ Failed: %s\n", deployment.Reason)
		if deployment.TargetColor != "" {
			fmt.Printf("  If traffic state is in doubt, run: cutover rollback --config %s --to %s\n",
				configPath, deployment.TargetColor.Other())
		} else {
			fmt.Println("  Routing state could not be resolved; inspect the load balancer's default rule before retrying.")
		}
	}
}
