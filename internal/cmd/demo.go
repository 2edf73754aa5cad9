package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/elasticpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/elasticpool/pkg/streaming/writer"
)

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Submit a burst of slow tasks and watch the pool scale",
		Long: `Submit a burst of tasks that each append a timestamped line and then sleep.
Every scaling decision is printed to stderr as the backlog grows and
drains.`,
		Example: `  elasticpool demo --max-workers 10 --min-workers 3 --queue-capacity 50
  elasticpool demo --tasks 20 --task-duration 200ms --manager-interval 100ms`,
		Args: cobra.NoArgs,
		RunE: runDemo,
	}

	cmd.Flags().Int("tasks", 100, "number of tasks to submit")
	cmd.Flags().Duration("task-duration", time.Second, "how long each task sleeps")
	cmd.Flags().StringP("output", "o", "", "append task lines to this file instead of stdout")
	return cmd
}

func runDemo(cmd *cobra.Command, _ []string) error {
	start := time.Now()

	tasks, _ := cmd.Flags().GetInt("tasks")
	taskDuration, _ := cmd.Flags().GetDuration("task-duration")
	outPath, _ := cmd.Flags().GetString("output")
	if tasks < 0 {
		return fmt.Errorf("--tasks must not be negative")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close(a.cfg.Pool.Name)

	var sink io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.OpenFile(outPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open output: %w", err)
		}
		defer f.Close()
		sink = f
	}
	out := writer.NewWithConfig(sink, a.cfg.Output.Writer("demo"))
	if mc := a.metricsConfig(); mc.Enabled {
		if err := out.EnableMetrics(mc); err != nil {
			_ = out.Close()
			return err
		}
	}

	errOut := cmd.ErrOrStderr()
	pool, err := a.newPool(func(cfg *workerpool.Config) {
		cfg.OnScale = func(d workerpool.Decision) {
			fmt.Fprintf(errOut, "[%s] %s %+d: %s\n", time.Now().Format("15:04:05.000"), d.Action, d.Delta, d.Reason)
		}
	})
	if err != nil {
		_ = out.Close()
		return err
	}

	runErr := a.run(cmd.Context(), func(ctx context.Context) error {
		for i := 0; i < tasks; i++ {
			id := i
			task := workerpool.TaskFunc(func(ctx context.Context) error {
				stamp := time.Now().Format("2006-01-02 15:04:05")
				if _, err := fmt.Fprintf(out, "write from id %d at %s\n", id, stamp); err != nil {
					return err
				}
				select {
				case <-time.After(taskDuration):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err := pool.SubmitWithContext(ctx, task); err != nil {
				return fmt.Errorf("submit task %d: %w", id, err)
			}
		}
		return pool.DrainAndShutdownContext(ctx)
	})
	pool.Shutdown()

	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}

	stats := pool.Stats()
	a.logger.Info("demo finished",
		"completed", stats.Completed,
		"failed", stats.Failed,
		"discarded", stats.Discarded)
	fmt.Fprintf(errOut, "[Time] Spent: %s\n", elapsed(time.Since(start)))
	return runErr
}
