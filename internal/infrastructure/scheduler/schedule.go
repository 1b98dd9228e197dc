package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// ══════════════════════════════════════════════════════════════════════════════
// ONE-SHOT
// ══════════════════════════════════════════════════════════════════════════════

// OnceSchedule runs a job a single time at At. If At has already passed
// when the job is registered, it runs on the next scheduler tick.
//
// The scheduler removes the job after its run. A OnceSchedule must not be
// shared between jobs.
type OnceSchedule struct {
	At   time.Time
	used bool
}

// Once creates a one-shot schedule.
func Once(at time.Time) *OnceSchedule {
	return &OnceSchedule{At: at}
}

// Next returns At the first time it is called and the zero time after.
func (s *OnceSchedule) Next(time.Time) time.Time {
	if s.used {
		return time.Time{}
	}
	s.used = true
	return s.At
}

// String returns the string representation of the schedule.
func (s *OnceSchedule) String() string {
	return "@at " + s.At.Format(time.RFC3339)
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a standard 5-field cron schedule:
// minute hour day-of-month month day-of-week.
//
// Examples:
//   - "*/5 * * * *"  - every 5 minutes
//   - "0 21 * * *"   - every day at 21:00
//   - "0 0 * * 0"    - every Sunday at midnight
type CronExpression struct {
	raw      string
	minutes  uint64 // bits 0-59
	hours    uint64 // bits 0-23
	days     uint64 // bits 1-31
	months   uint64 // bits 1-12
	weekdays uint64 // bits 0-6, 0 = Sunday
}

var cronFields = []struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCronExpression parses a cron expression string.
// Each field accepts *, */n, n, n-m, n-m/s and comma-separated lists of those.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	masks := make([]uint64, len(fields))
	for i, f := range fields {
		def := cronFields[i]
		mask, err := parseCronField(f, def.min, def.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", def.name, err)
		}
		masks[i] = mask
	}

	return &CronExpression{
		raw:      expr,
		minutes:  masks[0],
		hours:    masks[1],
		days:     masks[2],
		months:   masks[3],
		weekdays: masks[4],
	}, nil
}

func parseCronField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parseCronRange(part, min, max)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	return mask, nil
}

func parseCronRange(part string, min, max int) (uint64, error) {
	step := 1
	if base, s, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", s)
		}
		step = n
		part = base
	}

	start, end := min, max
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		lo, hi, _ := strings.Cut(part, "-")
		var err error
		if start, err = strconv.Atoi(lo); err != nil {
			return 0, fmt.Errorf("invalid range start %q", lo)
		}
		if end, err = strconv.Atoi(hi); err != nil {
			return 0, fmt.Errorf("invalid range end %q", hi)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", part)
		}
		start = v
		if step == 1 {
			end = v
		}
	}

	if start < min || end > max || start > end {
		return 0, fmt.Errorf("value out of range [%d-%d]: %q", min, max, part)
	}

	var mask uint64
	for i := start; i <= end; i += step {
		mask |= 1 << uint(i)
	}
	return mask, nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, or the zero
// time if none exists within a year.
func (ce *CronExpression) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)

	const maxIterations = 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		if ce.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return has(ce.minutes, t.Minute()) &&
		has(ce.hours, t.Hour()) &&
		has(ce.days, t.Day()) &&
		has(ce.months, int(t.Month())) &&
		has(ce.weekdays, int(t.Weekday()))
}

func has(mask uint64, v int) bool {
	return mask&(1<<uint(v)) != 0
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING
// ══════════════════════════════════════════════════════════════════════════════

// ParseSchedule accepts a Go duration ("5m"), "@every <duration>" or a
// 5-field cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		spec = strings.TrimSpace(rest)
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule interval must be positive: %s", spec)
		}
		return NewIntervalSchedule(d), nil
	}

	return ParseCronExpression(spec)
}
