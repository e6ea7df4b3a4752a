package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Scheduler runs the unattended job on an in-process schedule, for
// deployments without an external cron trigger hitting /api/cron.
type Scheduler struct {
	Runner *JobRunner
	Spec   string
	Stop   chan struct{}

	last *time.Time
}

// Shutdown stops the due-check loop. Call at most once.
func (s *Scheduler) Shutdown() {
	close(s.Stop)
}

// Start begins the due-check loop.
func (s *Scheduler) Start() {
	logger := log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				if !isDue(s.Spec, s.last) {
					continue
				}
				now := time.Now()
				s.last = &now
				attempts, err := s.Runner.Run(context.Background())
				if err != nil {
					logger.Printf("scheduled run failed after %d attempts: %v", attempts, err)
					continue
				}
				logger.Printf("scheduled run succeeded (attempts=%d)", attempts)
			}
		}
	}()
}

// isDue determines whether a job with cronSpec should run now given its last
// run time. Supports "@daily", "@hourly", and standard cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Invalid spec degrades to @daily.
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
