package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/ledger"
	_ "github.com/kilianp07/gridmarket/infra/ledger"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/pkg/export"
)

var (
	exportBroker string
	exportFormat string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Export committed postings from the configured ledger stores",
	RunE:  exportLedger,
}

func init() {
	ledgerCmd.Flags().StringVar(&exportBroker, "broker", "", "only export this broker's postings")
	ledgerCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	rootCmd.AddCommand(ledgerCmd)
}

func exportLedger(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("unsupported format %q", exportFormat)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	stores, err := ledger.NewStores(cfg.Ledger.Stores)
	if err != nil {
		return err
	}
	acc := ledger.NewAccounting(nil, logger.New("ledger"), stores...)
	defer func() { _ = acc.Close() }()

	postings, err := acc.Query(context.Background(), ledger.Query{Broker: exportBroker})
	if errors.Is(err, ledger.ErrWriteOnly) {
		return errors.New("no configured ledger store can be read back")
	}
	if err != nil {
		return err
	}
	if exportFormat == "json" {
		return export.WriteJSON(cmd.OutOrStdout(), postings)
	}
	return export.WriteCSV(cmd.OutOrStdout(), postings)
}
