package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmarket/qa/scenarios"
)

var replayCheck bool

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>",
	Short: "Replay a scripted session against an in-memory market",
	Args:  cobra.ExactArgs(1),
	RunE:  replay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayCheck, "check", false, "fail when the outcome differs from the expected section")
	rootCmd.AddCommand(replayCmd)
}

func replay(cmd *cobra.Command, args []string) error {
	sc, err := scenarios.Load(args[0])
	if err != nil {
		return err
	}
	res, err := scenarios.Replay(cmd.Context(), sc)
	if err != nil {
		return fmt.Errorf("replay %s: %w", sc.Name, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scenario %s\n", sc.Name)
	for _, ts := range res.TradedTimeslots() {
		tr := res.Trades[ts]
		fmt.Fprintf(out, "  timeslot %d: %.3f MWh at %.3f\n", ts, tr.ExecutionMWh, tr.ExecutionPrice)
	}
	ids := make([]int64, 0, len(res.Tariffs))
	for id := range res.Tariffs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(out, "  tariff %d: %s\n", id, res.Tariffs[id])
	}
	brokers := make([]string, 0, len(res.Balances))
	for b := range res.Balances {
		brokers = append(brokers, b)
	}
	sort.Strings(brokers)
	for _, b := range brokers {
		fmt.Fprintf(out, "  balance %s: %s\n", b, res.Balances[b].StringFixed(2))
	}
	fmt.Fprintf(out, "  rejected: %d\n", res.Rejected)

	if replayCheck {
		return res.Verify(sc.Expected)
	}
	return nil
}
