package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovenlight/expeditor/app"
	"github.com/ovenlight/expeditor/config"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Stock related commands",
}

var stockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print tracked stock levels",
	RunE:  runStockStatus,
}

var stockForecastCmd = &cobra.Command{
	Use:   "forecast <item-type>",
	Short: "Print the seven day usage projection for an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runStockForecast,
}

func init() {
	stockCmd.AddCommand(stockStatusCmd)
	stockCmd.AddCommand(stockForecastCmd)
	rootCmd.AddCommand(stockCmd)
}

func withService(fn func(ctx context.Context, svc *app.Service) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx, svc)
}

func runStockStatus(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		records, err := svc.Monitor.Status(ctx)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %8.1f / %-8.1f %-8s %s\n",
				r.ItemType, r.Current, r.Capacity, r.Unit, r.Level())
		}
		return nil
	})
}

func runStockForecast(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		fc, err := svc.Monitor.Forecast(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "item=%s avg_daily=%.2f trend=%s confidence=%.2f total_7d=%.1f\n",
			fc.ItemType, fc.AvgDailyUsage, fc.Trend, fc.Confidence, fc.Total)
		for i, q := range fc.Daily {
			fmt.Fprintf(cmd.OutOrStdout(), "  day+%d %.1f\n", i+1, q)
		}
		return nil
	})
}
