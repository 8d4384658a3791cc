// Package maintenance runs periodic housekeeping on the blend database.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shahjoyal/view-bunker/internal/logging"
)

// Store is the housekeeping surface of the database.
type Store interface {
	PruneBlends(cutoff time.Time) (int64, error)
	Checkpoint() error
}

// Result describes one maintenance run.
type Result struct {
	At     time.Time
	Pruned int64
	Err    error
}

// Scheduler prunes old blends and checkpoints the WAL on a cron schedule.
type Scheduler struct {
	store     Store
	schedule  string
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	last Result
	runs int
}

// New creates a scheduler. An empty schedule disables the job; a zero
// retention keeps every blend.
func New(st Store, schedule string, retention time.Duration) *Scheduler {
	return &Scheduler{
		store:     st,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
	}
}

// RunOnce performs one maintenance pass.
func (s *Scheduler) RunOnce() Result {
	log := logging.Get(logging.CategoryMaintenance)
	res := Result{At: s.now().UTC()}

	if s.retention > 0 {
		cutoff := res.At.Add(-s.retention)
		n, err := s.store.PruneBlends(cutoff)
		if err != nil {
			res.Err = fmt.Errorf("prune: %w", err)
		} else {
			res.Pruned = n
			if n > 0 {
				log.Info("pruned %d blends older than %s", n, cutoff.Format(time.RFC3339))
			}
		}
	}
	if err := s.store.Checkpoint(); err != nil && res.Err == nil {
		res.Err = fmt.Errorf("checkpoint: %w", err)
	}
	if res.Err != nil {
		log.Error("maintenance failed: %v", res.Err)
	}

	s.mu.Lock()
	s.last = res
	s.runs++
	s.mu.Unlock()
	return res
}

// Last returns the most recent result and the number of runs so far.
func (s *Scheduler) Last() (Result, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.runs
}

// Run schedules the job and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryMaintenance)
	if s.schedule == "" {
		log.Info("no maintenance schedule configured")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce() }); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", s.schedule, err)
	}
	c.Start()
	log.Info("maintenance scheduled: %s", s.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
