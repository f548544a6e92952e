package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ovenlight/expeditor/app"
	"github.com/ovenlight/expeditor/config"
	"github.com/ovenlight/expeditor/infra/logger"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single dispatch cycle and exit",
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	logg := logger.New("once")
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	res, err := svc.Dispatcher.TryDispatch(ctx)
	if err != nil {
		return fmt.Errorf("dispatch cycle: %w", err)
	}
	if res.Busy {
		return fmt.Errorf("another dispatch cycle is already running")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "orders=%d dispatched=%d assigned=%d issues=%d duration=%s\n",
		res.Orders, res.Dispatched, res.Assigned, res.Issues, res.Duration)
	return nil
}
