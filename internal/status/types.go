// Package status tracks the scheduler phase and the outcome of the last sync batch.
package status

import "time"

// Phase represents the current phase of the batch runner
type Phase string

const (
	// PhaseIdle means no batch is running
	PhaseIdle Phase = "Idle"

	// PhaseRunning means a batch is in progress
	PhaseRunning Phase = "Running"
)

// Trigger identifies what started a batch
type Trigger string

const (
	// TriggerScheduled is a batch started by the interval scheduler
	TriggerScheduled Trigger = "scheduled"

	// TriggerManual is a batch started through the API
	TriggerManual Trigger = "manual"
)

// Outcome is the final state of a batch
type Outcome string

const (
	// OutcomeCompleted means the batch ran to the end, possibly with per-repository errors
	OutcomeCompleted Outcome = "completed"

	// OutcomeFailed means the batch hit a fatal error
	OutcomeFailed Outcome = "failed"
)

// BatchSummary is the persisted summary of a finished batch
type BatchSummary struct {
	// Trigger is what started the batch
	Trigger Trigger `json:"trigger"`

	// Outcome is the final state of the batch
	Outcome Outcome `json:"outcome"`

	// Message provides additional information about the outcome
	Message string `json:"message,omitempty"`

	// StartedAt is when the batch started
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the batch finished
	FinishedAt time.Time `json:"finished_at"`

	// RepositoriesProcessed is the number of repositories attempted
	RepositoriesProcessed int `json:"repositories_processed"`

	// ContributionsFetched is the number of raw events returned by the provider
	ContributionsFetched int `json:"contributions_fetched"`

	// ContributionsUpserted is the number of newly inserted activity records
	ContributionsUpserted int `json:"contributions_upserted"`

	// ErrorCount is the number of per-repository errors recorded
	ErrorCount int `json:"error_count"`
}

// Snapshot is a point-in-time view of the batch runner
type Snapshot struct {
	// Phase is the current phase
	Phase Phase `json:"phase"`

	// RunningSince is set while a batch is in progress
	RunningSince *time.Time `json:"running_since,omitempty"`

	// CurrentTrigger is set while a batch is in progress
	CurrentTrigger Trigger `json:"current_trigger,omitempty"`

	// LastBatch is the summary of the most recently finished batch, if any
	LastBatch *BatchSummary `json:"last_batch,omitempty"`
}
