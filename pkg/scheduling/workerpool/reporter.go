package workerpool

import (
	"context"
	"errors"
	"log/slog"
)

// Reporter publishes pool snapshots. The manager calls Report once per tick
// with a context bounded by Config.ReportTimeout. Report must not call back
// into the pool's Shutdown methods.
type Reporter interface {
	Report(ctx context.Context, stats Stats) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, stats Stats) error

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, stats Stats) error {
	return f(ctx, stats)
}

type multiReporter []Reporter

// MultiReporter fans a snapshot out to every non-nil reporter, joining
// their errors.
func MultiReporter(reporters ...Reporter) Reporter {
	var m multiReporter
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multiReporter) Report(ctx context.Context, stats Stats) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, stats); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogReporter logs each snapshot at the given level.
func LogReporter(logger *slog.Logger, level slog.Level) Reporter {
	return ReporterFunc(func(ctx context.Context, s Stats) error {
		logger.Log(ctx, level, "pool status",
			"live", s.Live,
			"busy", s.Busy,
			"queued", s.Queued,
			"capacity", s.Capacity,
			"submitted", s.Submitted,
			"completed", s.Completed)
		return nil
	})
}
