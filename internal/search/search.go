// Package search walks a directory tree and reports files whose names match a
// regular expression, fanning the per-directory work out over a worker pool.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/elasticpool/pkg/common/validation"
	"github.com/vnykmshr/elasticpool/pkg/scheduling/workerpool"
)

// MatchPrefix starts every line written for a matching file.
const MatchPrefix = "Successfully matched the file: "

// Summary counts what one Run saw.
type Summary struct {
	Dirs    int64
	Files   int64
	Matches int64
	Errors  int64
	Elapsed time.Duration
}

// Searcher matches file names below a root directory. Directories are
// discovered on the calling goroutine; each one is listed by a pool task.
type Searcher struct {
	pool    workerpool.Pool
	pattern *regexp.Regexp
	out     io.Writer
	logger  *slog.Logger
}

// Compile parses an extended (POSIX ERE) regular expression.
func Compile(expr string) (*regexp.Regexp, error) {
	if err := validation.ValidateNotEmpty("search", "regex", expr); err != nil {
		return nil, err
	}
	re, err := regexp.CompilePOSIX(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex %q: %w", expr, err)
	}
	return re, nil
}

// New creates a Searcher. out receives one line per match and must be safe
// for concurrent use.
func New(pool workerpool.Pool, pattern *regexp.Regexp, out io.Writer, logger *slog.Logger) (*Searcher, error) {
	if pool == nil {
		return nil, validation.ValidateNotNil("search", "pool", nil)
	}
	if pattern == nil {
		return nil, validation.ValidateNotNil("search", "pattern", nil)
	}
	if out == nil {
		return nil, validation.ValidateNotNil("search", "output", nil)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Searcher{pool: pool, pattern: pattern, out: out, logger: logger}, nil
}

// Run walks root and waits until every directory it submitted has been
// listed, or until the pool shuts down and discards what was still queued.
// It stops submitting when ctx is done or the pool rejects a task and
// returns that error alongside the partial summary.
func (s *Searcher) Run(ctx context.Context, root string) (Summary, error) {
	start := time.Now()

	var (
		dirs    atomic.Int64
		files   atomic.Int64
		matches atomic.Int64
		errs    atomic.Int64
	)

	// pending counts submitted directories not yet listed, plus one held by
	// the walk itself until it returns.
	var pending atomic.Int64
	listed := make(chan struct{})
	release := func() {
		if pending.Add(-1) == 0 {
			close(listed)
		}
	}
	pending.Add(1)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs.Add(1)
			s.logger.Warn("cannot open dir", "path", path, "error", err)
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		dirs.Add(1)
		dir := path
		pending.Add(1)
		task := workerpool.TaskFunc(func(ctx context.Context) error {
			defer release()
			n, m, err := s.scan(ctx, dir)
			files.Add(n)
			matches.Add(m)
			if err != nil {
				errs.Add(1)
				s.logger.Warn("cannot open dir", "path", dir, "error", err)
			}
			return err
		})
		if err := s.pool.SubmitWithContext(ctx, task); err != nil {
			release()
			return fmt.Errorf("submit %s: %w", dir, err)
		}
		return nil
	})
	release()

	select {
	case <-listed:
	case <-s.pool.Done():
		select {
		case <-listed:
		default:
			s.logger.Warn("pool shut down before search finished", "root", root)
			if walkErr == nil {
				walkErr = workerpool.ErrShuttingDown
			}
		}
	}

	summary := Summary{
		Dirs:    dirs.Load(),
		Files:   files.Load(),
		Matches: matches.Load(),
		Errors:  errs.Load(),
		Elapsed: time.Since(start),
	}
	s.logger.Debug("search finished",
		"root", root,
		"dirs", summary.Dirs,
		"matches", summary.Matches,
		"errors", summary.Errors,
		"elapsed", summary.Elapsed)
	return summary, walkErr
}

// scan lists dir and writes a line for each regular file whose name matches.
// It returns the number of regular files seen and the number matched.
func (s *Searcher) scan(ctx context.Context, dir string) (files, matched int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}

	var writeErr error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		files++
		if !s.pattern.MatchString(entry.Name()) {
			continue
		}
		matched++
		if _, err := io.WriteString(s.out, MatchPrefix+dir+" : "+entry.Name()+"\n"); err != nil {
			writeErr = errors.Join(writeErr, err)
		}
	}
	return files, matched, writeErr
}
