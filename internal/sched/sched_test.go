// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sched

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nishisan-dev/nbeam/beam"
)

func newTestScheduler() *Scheduler {
	return New(slog.Default())
}

func TestRegister_DuplicateNameRejected(t *testing.T) {
	s := newTestScheduler()
	b := beam.NewBeam("sender", nil, "b-1", "tag", 0, time.Second, nil)
	entry := BeamEntry{Name: "check-1", Schedule: "@every 1h", Beam: b, Check: func(*beam.Beam) error { return nil }}

	if err := s.Register(entry); err != nil {
		t.Fatalf("unexpected error on first registration: %v", err)
	}
	if err := s.Register(entry); err == nil {
		t.Fatal("expected an error registering a duplicate name")
	}
}

func TestRegister_InvalidScheduleRejected(t *testing.T) {
	s := newTestScheduler()
	b := beam.NewBeam("sender", nil, "b-1", "tag", 0, time.Second, nil)
	entry := BeamEntry{Name: "check-1", Schedule: "not a cron expression", Beam: b, Check: func(*beam.Beam) error { return nil }}

	if err := s.Register(entry); err == nil {
		t.Fatal("expected an error for an invalid cron schedule")
	}
}

func TestEntries_ListsRegisteredNames(t *testing.T) {
	s := newTestScheduler()
	b := beam.NewBeam("sender", nil, "b-1", "tag", 0, time.Second, nil)
	s.Register(BeamEntry{Name: "a", Schedule: "@every 1h", Beam: b, Check: func(*beam.Beam) error { return nil }})
	s.Register(BeamEntry{Name: "b", Schedule: "@every 1h", Beam: b, Check: func(*beam.Beam) error { return nil }})

	names := s.Entries()
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(names))
	}
}

func TestUnregister_RemovesEntry(t *testing.T) {
	s := newTestScheduler()
	b := beam.NewBeam("sender", nil, "b-1", "tag", 0, time.Second, nil)
	s.Register(BeamEntry{Name: "a", Schedule: "@every 1h", Beam: b, Check: func(*beam.Beam) error { return nil }})

	s.Unregister("a")
	if len(s.Entries()) != 0 {
		t.Fatal("expected the entry to be gone after Unregister")
	}
}

func TestResult_UnknownEntryReturnsFalse(t *testing.T) {
	s := newTestScheduler()
	if _, ok := s.Result("missing"); ok {
		t.Fatal("expected ok=false for an unregistered entry")
	}
}

func TestResult_BeforeFirstRunReturnsFalse(t *testing.T) {
	s := newTestScheduler()
	b := beam.NewBeam("sender", nil, "b-1", "tag", 0, time.Second, nil)
	s.Register(BeamEntry{Name: "a", Schedule: "@every 1h", Beam: b, Check: func(*beam.Beam) error { return nil }})

	if _, ok := s.Result("a"); ok {
		t.Fatal("expected ok=false before the job has ever run")
	}
}

func TestRun_RecordsResultAndStats(t *testing.T) {
	s := newTestScheduler()
	b := beam.NewBeam("sender", nil, "b-1", "tag", 0, time.Second, nil)

	wantErr := errors.New("beam unhealthy")
	job := &registeredJob{entry: BeamEntry{
		Name: "a", Beam: b,
		Check: func(*beam.Beam) error { return wantErr },
	}}

	s.run(job)

	job.mu.Lock()
	got := job.result
	job.mu.Unlock()
	if got == nil {
		t.Fatal("expected a result to be recorded after run")
	}
	if got.Err != wantErr {
		t.Fatalf("expected recorded error %v, got %v", wantErr, got.Err)
	}
	if got.Name != "a" {
		t.Fatalf("expected name %q, got %q", "a", got.Name)
	}
}

func TestRun_SkipsOverlappingExecution(t *testing.T) {
	s := newTestScheduler()
	b := beam.NewBeam("sender", nil, "b-1", "tag", 0, time.Second, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	job := &registeredJob{entry: BeamEntry{
		Name: "a", Beam: b,
		Check: func(*beam.Beam) error {
			close(started)
			<-release
			return nil
		},
	}}

	go s.run(job)
	<-started

	// A second concurrent run must be skipped (CAS guard), not queued.
	s.run(job)

	close(release)
	time.Sleep(20 * time.Millisecond) // let the first run finish recording its result

	job.mu.Lock()
	result := job.result
	job.mu.Unlock()
	if result == nil {
		t.Fatal("expected the first run to eventually record a result")
	}
}
