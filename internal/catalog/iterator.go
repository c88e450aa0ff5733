package catalog

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalIter produces the arithmetic progression of monotonic
// deadlines anchor+p, anchor+2p, ... for an interval schedule. Because
// each deadline is computed from the anchor rather than from "now",
// dispatch jitter never accumulates into drift.
type IntervalIter struct {
	anchor float64
	period float64
	n      int
}

// NewIntervalIter anchors a progression at the given monotonic instant.
// The period must be positive.
func NewIntervalIter(anchor, period float64) (*IntervalIter, error) {
	if period <= 0 {
		return nil, fmt.Errorf("interval period must be positive, got %v", period)
	}
	return &IntervalIter{anchor: anchor, period: period}, nil
}

// Next returns the following deadline. Each call advances exactly one
// period; a schedule that fell behind slips forward instead of
// bursting.
func (it *IntervalIter) Next() float64 {
	it.n++
	return it.anchor + float64(it.n)*it.period
}

func (it *IntervalIter) String() string {
	return fmt.Sprintf("every %gs", it.period)
}

// CronIter walks the wall-clock instants produced by a five-field cron
// expression.
type CronIter struct {
	expr   string
	sched  cron.Schedule
	cursor time.Time
}

// NewCronIter parses expr with the standard five-field grammar and
// positions the cursor so that the first Next may land exactly on
// wallNow when wallNow sits on a matching boundary. Callers apply the
// skip-past rule on that first value.
func NewCronIter(expr string, wallNow int64) (*CronIter, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return &CronIter{
		expr:   expr,
		sched:  sched,
		cursor: time.Unix(wallNow-1, 0).UTC(),
	}, nil
}

// Next advances the cursor to the following activation and returns it
// as unix seconds. Values are strictly increasing.
func (it *CronIter) Next() int64 {
	it.cursor = it.sched.Next(it.cursor)
	return it.cursor.Unix()
}

func (it *CronIter) String() string {
	return it.expr
}
