package spacetraveling

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eringen/spacetraveling/logger"
)

// Scheduler periodically regenerates stale pages so they are refreshed even
// when nobody requests them.
type Scheduler struct {
	cron    *cron.Cron
	cache   *PageCache
	log     logger.Logger
	timeout time.Duration
}

// NewScheduler parses spec (standard cron syntax or a descriptor such as
// "@every 5m") and prepares the job. Call Start to run it.
func NewScheduler(spec string, cache *PageCache, timeout time.Duration, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cache:   cache,
		log:     log,
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, &ConfigurationError{Field: "revalidate.schedule", Reason: err.Error()}
	}
	return s, nil
}

// Start runs the job in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce regenerates every stale page.
func (s *Scheduler) RunOnce() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout*time.Duration(max(1, len(s.cache.Keys()))))
	defer cancel()
	n := s.cache.RegenerateStale(ctx)
	if n > 0 {
		s.log.Info("scheduled regeneration finished",
			logger.Int("pages", n),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
}
