// Package cmd implements the gridmarket command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmarket/app"
	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/infra/logger"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "gridmarket",
	Short: "Wholesale and retail energy market server",
	Long: `gridmarket runs one game: brokers trade energy in a periodic double
auction, publish retail tariffs and receive balancing control, all over MQTT.
Without a subcommand it serves the game until interrupted.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
