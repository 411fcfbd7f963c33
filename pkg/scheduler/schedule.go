package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions, an optional leading
// seconds field, and descriptors like "@every 30s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronSchedule is a calendar-based recurrence rule. The expression is parsed
// once at construction; a malformed expression is a construction-time error,
// never a per-tick one.
type CronSchedule struct {
	expr  string
	sched cron.Schedule
}

// NewCronSchedule parses expr and returns the schedule.
func NewCronSchedule(expr string) (*CronSchedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, sched: sched}, nil
}

// Expression returns the original cron expression text.
func (c *CronSchedule) Expression() string {
	return c.expr
}

// Next returns the earliest occurrence strictly after t, or false when the
// expression yields no further occurrence.
func (c *CronSchedule) Next(t time.Time) (time.Time, bool) {
	next := c.sched.Next(t)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// nextOccurrence computes the job's next firing strictly after t, or false
// when the schedule is exhausted. Interval jobs consult the remaining repeat
// budget. Callers must hold j.mu.
func (j *Job) nextOccurrence(t time.Time) (time.Time, bool) {
	if j.cron != nil {
		return j.cron.Next(t)
	}
	if !j.repeating && j.remaining == 0 {
		return time.Time{}, false
	}
	return t.Add(j.every), true
}

// NextOccurrence is the host-facing form of the schedule evaluator. It never
// returns an instant at or before t.
func (j *Job) NextOccurrence(t time.Time) (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextOccurrence(t)
}
