package domain

import "time"

// RunType is the kind of audit requested.
type RunType string

// Audit run types.
const (
	RunFull        RunType = "full"
	RunIncremental RunType = "incremental"
	RunEmergency   RunType = "emergency"
)

// Valid reports whether the run type is one of the known kinds.
func (t RunType) Valid() bool {
	return t == RunFull || t == RunIncremental || t == RunEmergency
}

// RunStatus is the lifecycle state of an audit run.
type RunStatus string

// Audit run statuses.
const (
	RunCreated   RunStatus = "created"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunSummary is the outcome of one audit run.
type RunSummary struct {
	LinksAudited   int `json:"links_audited"`
	LinksSkipped   int `json:"links_skipped"`
	LinksFailed    int `json:"links_failed"`
	IssuesOpened   int `json:"issues_opened"`
	IssuesResolved int `json:"issues_resolved"`
	Opportunities  int `json:"opportunities"`
}

// AuditRun is one complete pass over an owner's link set.
// Created at orchestration start, completed exactly once.
type AuditRun struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Type            RunType    `json:"type"`
	Status          RunStatus  `json:"status"`
	Force           bool       `json:"force"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Summary         RunSummary `json:"summary"`
	FailReason      string     `json:"fail_reason,omitempty"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
}
