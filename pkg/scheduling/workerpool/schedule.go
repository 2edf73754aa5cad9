package workerpool

import (
	"time"

	"github.com/robfig/cron/v3"

	poolerrors "github.com/vnykmshr/elasticpool/pkg/common/errors"
)

// scheduleParser accepts standard five-field specs, an optional leading
// seconds field, and descriptors such as @hourly or @every 5s.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron spec for Config.ManagerSchedule.
// Note that "@every" durations are rounded down to whole seconds.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, poolerrors.NewValidationError("workerpool", "ManagerSchedule", spec, "cannot be empty")
	}
	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, poolerrors.NewValidationError("workerpool", "ManagerSchedule", spec, err.Error()).
			WithHint(`use a cron spec like "*/5 * * * * *" or "@every 3s"`)
	}
	return schedule, nil
}

// intervalSchedule fires every d. Unlike cron.Every it keeps sub-second
// precision.
type intervalSchedule time.Duration

// Every returns a cron.Schedule that fires at a fixed interval.
func Every(d time.Duration) cron.Schedule {
	return intervalSchedule(d)
}

// Next implements cron.Schedule.
func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(s))
}
