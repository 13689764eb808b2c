package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAddJobRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("bad", "every now and then", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("invalid job registered: %v", s.Jobs())
	}
}

func TestAddJobRejectsDuplicateName(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("purge", "@hourly", func() {}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.AddJob("purge", "*/5 * * * *", func() {}); err == nil {
		t.Error("expected duplicate name error")
	}
	if err := s.AddJob("prune", "0 3 * * *", func() {}); err != nil {
		t.Fatalf("AddJob cron expression: %v", err)
	}
	jobs := s.Jobs()
	if len(jobs) != 2 || jobs[0] != "prune" || jobs[1] != "purge" {
		t.Errorf("Jobs = %v", jobs)
	}
}

func TestJobsRunAndSurvivePanics(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var runs atomic.Int32
	if err := s.AddJob("panics", "@every 1s", func() { panic("boom") }); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.AddJob("counts", "@every 1s", func() { runs.Add(1) }); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Errorf("counting job ran %d times, want at least 2", runs.Load())
	}
}
