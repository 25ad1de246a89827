package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"chatrelay/pkg/logger"
)

// DefaultSweepSchedule runs the idle sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Janitor periodically evicts idle sessions from a Store.
type Janitor struct {
	store    *Store
	maxIdle  time.Duration
	schedule string

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewJanitor validates schedule and returns a stopped janitor. A
// non-positive maxIdle yields a janitor whose sweeps never evict.
func NewJanitor(store *Store, maxIdle time.Duration, schedule string) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	c := cron.New()
	j := &Janitor{
		store:    store,
		maxIdle:  maxIdle,
		schedule: schedule,
		cron:     c,
	}
	if _, err := c.AddFunc(schedule, func() { j.Sweep() }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins running sweeps in the background.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return errors.New("janitor already running")
	}
	j.cron.Start()
	j.running = true

	logger.Info().
		Str("schedule", j.schedule).
		Dur("max_idle", j.maxIdle).
		Msg("Session janitor started")
	return nil
}

// Stop halts the schedule. The returned context is done once a sweep in
// progress has finished.
func (j *Janitor) Stop() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	j.running = false
	return j.cron.Stop()
}

// Sweep evicts idle sessions once and returns how many were removed.
func (j *Janitor) Sweep() int {
	removed := j.store.EvictIdle(j.maxIdle)
	if removed > 0 {
		logger.Info().Int("evicted", removed).Int("remaining", j.store.Len()).Msg("Evicted idle sessions")
	} else {
		logger.Debug().Int("sessions", j.store.Len()).Msg("Idle sweep found nothing to evict")
	}
	return removed
}
