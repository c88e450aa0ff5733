// Package catalog holds the in-memory index of scheduled jobs: one map
// for interval schedules keyed by schedule hash, one for cron
// schedules. A hash lives in at most one of the two maps.
package catalog

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// RemovedFrom reports which map a Remove call hit.
type RemovedFrom int

const (
	RemovedNone RemovedFrom = iota
	RemovedInterval
	RemovedCron
)

func (r RemovedFrom) String() string {
	switch r {
	case RemovedInterval:
		return "interval"
	case RemovedCron:
		return "cron"
	default:
		return "none"
	}
}

// IntervalEntry is a schedule firing every N seconds on the monotonic
// clock.
type IntervalEntry struct {
	NextFireMono float64
	Payload      string
	Iter         *IntervalIter
	Queue        string
	// RunCount is the number of dispatches remaining; -1 means
	// infinite.
	RunCount int
}

// CronEntry is a schedule firing on wall-clock instants produced by a
// cron expression.
type CronEntry struct {
	NextFireWall int64
	Payload      string
	Iter         *CronIter
	Queue        string
}

// Catalog is the union of the two schedule maps. It is not safe for
// concurrent use; the dispatch loop is its only caller.
type Catalog struct {
	interval map[string]*IntervalEntry
	cron     map[string]*CronEntry
	logger   zerolog.Logger
}

// New returns an empty catalog.
func New(logger zerolog.Logger) *Catalog {
	return &Catalog{
		interval: make(map[string]*IntervalEntry),
		cron:     make(map[string]*CronEntry),
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
}

// UpsertInterval installs or replaces an interval entry. The first
// deadline is seeded one period past monoNow. A hash present in the
// cron map moves here atomically.
func (c *Catalog) UpsertInterval(hash, payload string, intervalSecs int, queue string, runCount int, monoNow float64) error {
	if intervalSecs <= 0 {
		return fmt.Errorf("interval must be positive, got %d", intervalSecs)
	}
	iter, err := NewIntervalIter(monoNow, float64(intervalSecs))
	if err != nil {
		return err
	}
	c.interval[hash] = &IntervalEntry{
		NextFireMono: iter.Next(),
		Payload:      payload,
		Iter:         iter,
		Queue:        queue,
		RunCount:     runCount,
	}
	delete(c.cron, hash)
	return nil
}

// UpsertCron installs or replaces a cron entry. When the iterator's
// first value is not after wallNow the iterator is advanced once more,
// so a schedule loaded late does not fire a catch-up storm. A hash
// present in the interval map moves here atomically.
func (c *Catalog) UpsertCron(hash, payload, cronExpr, queue string, wallNow int64) error {
	iter, err := NewCronIter(cronExpr, wallNow)
	if err != nil {
		return err
	}
	next := iter.Next()
	if next <= wallNow {
		next = iter.Next()
	}
	c.cron[hash] = &CronEntry{
		NextFireWall: next,
		Payload:      payload,
		Iter:         iter,
		Queue:        queue,
	}
	delete(c.interval, hash)
	return nil
}

// Remove drops a hash from whichever map holds it.
func (c *Catalog) Remove(hash string) RemovedFrom {
	if _, ok := c.interval[hash]; ok {
		delete(c.interval, hash)
		return RemovedInterval
	}
	if _, ok := c.cron[hash]; ok {
		delete(c.cron, hash)
		return RemovedCron
	}
	return RemovedNone
}

// Interval looks up an interval entry.
func (c *Catalog) Interval(hash string) (*IntervalEntry, bool) {
	e, ok := c.interval[hash]
	return e, ok
}

// Cron looks up a cron entry.
func (c *Catalog) Cron(hash string) (*CronEntry, bool) {
	e, ok := c.cron[hash]
	return e, ok
}

// DueInterval returns the hashes whose monotonic deadline has been
// reached. Order is stable for a given map state but otherwise
// unspecified.
func (c *Catalog) DueInterval(monoNow float64) []string {
	var due []string
	for hash, e := range c.interval {
		if e.NextFireMono <= monoNow {
			due = append(due, hash)
		}
	}
	sort.Strings(due)
	return due
}

// DueCron returns the hashes whose wall deadline has been reached.
func (c *Catalog) DueCron(wallNow int64) []string {
	var due []string
	for hash, e := range c.cron {
		if e.NextFireWall <= wallNow {
			due = append(due, hash)
		}
	}
	sort.Strings(due)
	return due
}

// AdvanceInterval moves an interval entry to its next deadline.
func (c *Catalog) AdvanceInterval(hash string) {
	if e, ok := c.interval[hash]; ok {
		e.NextFireMono = e.Iter.Next()
	}
}

// AdvanceCron moves a cron entry to its next deadline. The advanced
// value is written back into the entry so the schedule does not re-fire
// every tick.
func (c *Catalog) AdvanceCron(hash string) {
	if e, ok := c.cron[hash]; ok {
		e.NextFireWall = e.Iter.Next()
	}
}

// Sizes returns the entry counts of the interval and cron maps.
func (c *Catalog) Sizes() (int, int) {
	return len(c.interval), len(c.cron)
}

// IntervalSnapshot renders only the interval map in its positional
// layout. This is the view served to peer STATUS callers. The iterator
// slot is a human-readable description and carries no contract.
func (c *Catalog) IntervalSnapshot() map[string]any {
	intervalJobs := make(map[string]any, len(c.interval))
	for hash, e := range c.interval {
		intervalJobs[hash] = []any{e.NextFireMono, e.Payload, e.Iter.String(), e.Queue, e.RunCount}
	}
	return intervalJobs
}

// Snapshot renders the full catalog view served to administrative
// callers: both maps plus the device name.
func (c *Catalog) Snapshot(name string) map[string]any {
	cronJobs := make(map[string]any, len(c.cron))
	for hash, e := range c.cron {
		cronJobs[hash] = []any{e.NextFireWall, e.Payload, e.Iter.String(), e.Queue}
	}
	return map[string]any{
		"interval_jobs": c.IntervalSnapshot(),
		"cron_jobs":     cronJobs,
		"name":          name,
	}
}
