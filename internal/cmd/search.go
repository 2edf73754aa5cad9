package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/elasticpool/internal/search"
	"github.com/vnykmshr/elasticpool/pkg/streaming/writer"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find files whose names match a regular expression",
		Long: `Walk a directory tree and print every regular file whose name matches an
extended regular expression. Each directory is listed by a pool task, so the
pool scales with the size of the tree.`,
		Example: `  elasticpool search --path /var/log --regex '\.log$'
  elasticpool search -p . -r '_test\.go$' -o results.txt`,
		Args: cobra.NoArgs,
		RunE: runSearch,
	}

	cmd.Flags().StringP("path", "p", ".", "directory to search")
	cmd.Flags().StringP("regex", "r", "", "extended regular expression matched against file names (required)")
	cmd.Flags().StringP("output", "o", "", "append matches to this file instead of stdout")
	_ = cmd.MarkFlagRequired("regex")
	return cmd
}

func runSearch(cmd *cobra.Command, _ []string) error {
	start := time.Now()

	root, _ := cmd.Flags().GetString("path")
	expr, _ := cmd.Flags().GetString("regex")
	outPath, _ := cmd.Flags().GetString("output")

	pattern, err := search.Compile(expr)
	if err != nil {
		return err
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

	out := writer.NewWithConfig(sink, a.cfg.Output.Writer("search"))
	if mc := a.metricsConfig(); mc.Enabled {
		if err := out.EnableMetrics(mc); err != nil {
			_ = out.Close()
			return err
		}
	}

	pool, err := a.newPool(nil)
	if err != nil {
		_ = out.Close()
		return err
	}

	s, err := search.New(pool, pattern, out, a.logger)
	if err != nil {
		pool.Shutdown()
		_ = out.Close()
		return err
	}

	var summary search.Summary
	runErr := a.run(cmd.Context(), func(ctx context.Context) error {
		var err error
		summary, err = s.Run(ctx, root)
		if drainErr := pool.DrainAndShutdownContext(ctx); drainErr != nil && err == nil {
			err = drainErr
		}
		return err
	})
	pool.Shutdown()

	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}

	a.logger.Info("search finished",
		"dirs", summary.Dirs,
		"files", summary.Files,
		"matches", summary.Matches,
		"errors", summary.Errors)
	fmt.Fprintf(cmd.OutOrStdout(), "[Time] Spent: %s\n", elapsed(time.Since(start)))
	return runErr
}
