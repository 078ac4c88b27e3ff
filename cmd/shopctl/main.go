package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logging"
	"storefront/internal/models"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "shopctl",
		Short:        "Operator tooling for the storefront backend",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(indexesCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(orderStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp boots the full service graph, runs fn and tears it down again.
func withApp(timeout time.Duration, fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	logger := logging.New(cfg.AppName+"-shopctl", cfg.Env)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer a.Close(context.Background())

	return fn(ctx, a)
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create or verify MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(time.Minute, func(_ context.Context, a *app.App) error {
				if err := database.EnsureIndexes(a.DB, a.Logger); err != nil {
					return err
				}
				fmt.Println("indexes ok")
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [sessionId]",
		Short: "Fetch a checkout session from Stripe and create its order if missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return withApp(timeout, func(ctx context.Context, a *app.App) error {
				view, err := a.Checkout.ReconcileByID(ctx, args[0])
				if err != nil {
					return err
				}
				return printOrder(view)
			})
		},
	}

	cmd.Flags().Duration("timeout", 30*time.Second, "Overall deadline for the reconciliation")

	return cmd
}

func orderStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order-status [orderId] [status]",
		Short: "Move an order to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(15*time.Second, func(ctx context.Context, a *app.App) error {
				view, err := a.Orders.UpdateStatus(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printOrder(view)
			})
		},
	}
}

func printOrder(view *models.OrderView) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
