package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every pool published to the Redis status board",
		Long: `Read the Redis status board and print the latest status of every pool that
shares the configured key prefix. Requires --redis-addr or redis.addr.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close("")

	if a.board == nil {
		return errors.New("no status board configured: set --redis-addr or redis.addr")
	}

	entries, err := a.board.Snapshot(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No pools reporting")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tPOOL\tLIVE\tBUSY\tQUEUED\tMIN\tMAX\tCOMPLETED\tFAILED\tREJECTED\tUPDATED")
	for _, e := range entries {
		state := e.UpdatedAt.Format(time.TimeOnly)
		if e.ShuttingDown {
			state += " (shutting down)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d/%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			e.InstanceID, e.Pool,
			e.Live, e.Busy, e.Queued, e.Capacity,
			e.MinWorkers, e.MaxWorkers,
			e.Completed, e.Failed, e.Rejected,
			state)
	}
	return tw.Flush()
}
