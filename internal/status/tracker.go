package status

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tracker holds the in-memory phase of the batch runner and the last batch summary.
// It is safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	phase       Phase
	since       time.Time
	trigger     Trigger
	last        *BatchSummary
	persistence StatusPersistence
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithPersistence stores every finished batch summary through p
func WithPersistence(p StatusPersistence) TrackerOption {
	return func(t *Tracker) {
		t.persistence = p
	}
}

// NewTracker creates an idle Tracker. When persistence is configured, the
// previously stored summary is loaded as the last batch.
func NewTracker(ctx context.Context, opts ...TrackerOption) *Tracker {
	t := &Tracker{phase: PhaseIdle}
	for _, opt := range opts {
		opt(t)
	}

	if t.persistence != nil {
		last, err := t.persistence.LoadLastBatch(ctx)
		if err != nil {
			slog.Warn("Failed to load last batch summary", "error", err)
		}
		t.last = last
	}

	return t
}

// Begin moves the tracker to Running
func (t *Tracker) Begin(trigger Trigger, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phase = PhaseRunning
	t.since = at
	t.trigger = trigger
}

// End moves the tracker back to Idle and records the summary
func (t *Tracker) End(ctx context.Context, summary BatchSummary) {
	t.mu.Lock()
	t.phase = PhaseIdle
	t.since = time.Time{}
	t.trigger = ""
	t.last = &summary
	t.mu.Unlock()

	if t.persistence != nil {
		if err := t.persistence.SaveLastBatch(ctx, &summary); err != nil {
			slog.WarnContext(ctx, "Failed to persist last batch summary", "error", err)
		}
	}
}

// Snapshot returns a copy of the current state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{Phase: t.phase}
	if t.phase == PhaseRunning {
		since := t.since
		snap.RunningSince = &since
		snap.CurrentTrigger = t.trigger
	}
	if t.last != nil {
		last := *t.last
		snap.LastBatch = &last
	}
	return snap
}
