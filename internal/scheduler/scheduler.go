// Package scheduler runs SleepAdvisor's periodic maintenance jobs.
//
// Jobs are registered with standard 5-field cron expressions or descriptors
// such as "@every 1m" and "@hourly".
package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// NewScheduler creates and starts a cron scheduler. A panicking job is logged
// and a job still running at its next tick is skipped.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := slogCronLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()
	return &Scheduler{cron: c, jobs: make(map[string]cron.EntryID)}
}

// AddJob schedules task under name. Names are unique; an invalid expression
// or a duplicate name is an error.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}
	id, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		task()
		slog.Debug("Scheduler job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", expr, name, err)
	}
	s.jobs[name] = id
	slog.Info("Scheduler job registered", "job", name, "schedule", expr)
	return nil
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// slogCronLogger routes cron's internal logging to slog.
type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
