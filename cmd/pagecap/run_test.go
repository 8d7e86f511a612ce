package main

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/pagecap/internal/jobs"
)

type fakeStopper struct {
	err      error
	released *bool
	stops    int
	// releasedFirst records whether the signal handler was released before Stop ran.
	releasedFirst bool
}

func (f *fakeStopper) Stop(ctx context.Context) (string, error) {
	f.stops++
	f.releasedFirst = *f.released
	return jobs.StatusStopFlagSet, f.err
}

func TestRequestStop(t *testing.T) {
	tests := []struct {
		name    string
		stopErr error
		wantErr bool
	}{
		{"running", nil, false},
		{"already idle", jobs.ErrNotRunning, false},
		{"controller gone", jobs.ErrControllerStopped, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			released := false
			s := &fakeStopper{err: tt.stopErr, released: &released}

			err := requestStop(context.Background(), s, func() { released = true })
			if (err != nil) != tt.wantErr {
				t.Fatalf("requestStop() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, tt.stopErr) {
				t.Errorf("error = %v, want %v", err, tt.stopErr)
			}
			if !released {
				t.Error("signal handler not released; a second Ctrl+C would be swallowed")
			}
			if s.stops != 1 || !s.releasedFirst {
				t.Errorf("stops = %d, released before stop = %v", s.stops, s.releasedFirst)
			}
		})
	}
}

func TestReport(t *testing.T) {
	if err := report(jobs.Session{CapturedPages: 3, TotalPages: 3}); err != nil {
		t.Errorf("report() = %v, want nil", err)
	}
	if err := report(jobs.Session{LastError: "recovery exhausted"}); err == nil || err.Error() != "recovery exhausted" {
		t.Errorf("report() = %v, want the run's last error", err)
	}
}
