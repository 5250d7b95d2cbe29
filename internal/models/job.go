package models

import (
	"encoding/json"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
)

// Job represents a generic unit of queued work in the jobs table.
// A job references exactly one TestRun through its payload; the TestRun is the
// user-visible projection while the Job tracks retry attempts and scheduling.
type Job struct {
	ID          string          `json:"id" db:"id"`
	Type        string          `json:"type" db:"type"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Status      types.JobStatus `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	MaxAttempts int             `json:"maxAttempts" db:"max_attempts"`
	RunAfter    time.Time       `json:"runAfter" db:"run_after"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
	Error       *string         `json:"error,omitempty" db:"error"`
}

// TestJobPayload is the payload carried by a performance-test job
type TestJobPayload struct {
	TestRunID string       `json:"testRunId"`
	URL       string       `json:"url"`
	Device    types.Device `json:"device"`
	Region    string       `json:"region"`
}
