package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"trade_guard/internal/modules/config"
	"trade_guard/pkg/logger"
)

// exitCode asks main to exit with a specific status without printing.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Confluence scanner, risk sizer and trailing-stop guard for OKX swaps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $CONFIG_FILE or configs/values_local.yaml)")
	root.AddCommand(
		newScanCmd(),
		newPlanCmd(),
		newTrailCmd(),
		newJournalCmd(),
	)
	return root
}

func fxLogger(l *logger.Logger) fxevent.Logger {
	zl := &fxevent.ZapLogger{Logger: l.Logger}
	zl.UseLogLevel(zapcore.DebugLevel)
	return zl
}

// newApp builds the fx app for one command on top of the loaded config.
func newApp(cfg *config.Config, opts ...fx.Option) *fx.App {
	base := []fx.Option{
		config.Module(cfg),
		fx.WithLogger(fxLogger),
	}
	return fx.New(append(base, opts...)...)
}

// runOnce starts app, runs fn and always stops the app, which drains the
// notifier and closes connections.
func runOnce(ctx context.Context, app *fx.App, fn func(context.Context) error) error {
	if err := app.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
