package models

import (
	"encoding/json"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
)

// TestRun represents one performance test request and its outcome.
// Score and metric fields are populated only when Status is completed;
// ErrorMessage is populated only when Status is failed.
type TestRun struct {
	ID           string           `json:"id" db:"id"`
	UserID       string           `json:"userId" db:"user_id"`
	URL          string           `json:"url" db:"url"`
	Device       types.Device     `json:"device" db:"device"`
	Region       string           `json:"region" db:"region"`
	Status       types.TestStatus `json:"status" db:"status"`
	QueuedAt     time.Time        `json:"queuedAt" db:"queued_at"`
	StartedAt    *time.Time       `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty" db:"completed_at"`
	ErrorMessage *string          `json:"errorMessage,omitempty" db:"error_message"`

	// Category scores, 0-100 integers
	PerformanceScore   *int `json:"performanceScore,omitempty" db:"performance_score"`
	AccessibilityScore *int `json:"accessibilityScore,omitempty" db:"accessibility_score"`
	BestPracticesScore *int `json:"bestPracticesScore,omitempty" db:"best_practices_score"`
	SEOScore           *int `json:"seoScore,omitempty" db:"seo_score"`

	// Core Web Vitals, milliseconds except CLS which is a unitless ratio
	FirstContentfulPaint   *float64 `json:"firstContentfulPaint,omitempty" db:"first_contentful_paint"`
	LargestContentfulPaint *float64 `json:"largestContentfulPaint,omitempty" db:"largest_contentful_paint"`
	CumulativeLayoutShift  *float64 `json:"cumulativeLayoutShift,omitempty" db:"cumulative_layout_shift"`
	TotalBlockingTime      *float64 `json:"totalBlockingTime,omitempty" db:"total_blocking_time"`
	TimeToInteractive      *float64 `json:"timeToInteractive,omitempty" db:"time_to_interactive"`
	SpeedIndex             *float64 `json:"speedIndex,omitempty" db:"speed_index"`

	TotalRequests *int   `json:"totalRequests,omitempty" db:"total_requests"`
	TotalBytes    *int64 `json:"totalBytes,omitempty" db:"total_bytes"`

	// Full provider payload, kept for recommendation derivation and debugging
	RawResult json.RawMessage `json:"rawResult,omitempty" db:"raw_result"`
}

// TestResult holds the mapped fields written to a TestRun on successful completion
type TestResult struct {
	PerformanceScore       int
	AccessibilityScore     int
	BestPracticesScore     int
	SEOScore               int
	FirstContentfulPaint   float64
	LargestContentfulPaint float64
	CumulativeLayoutShift  float64
	TotalBlockingTime      float64
	TimeToInteractive      float64
	SpeedIndex             float64
	TotalRequests          int
	TotalBytes             int64
	RawResult              json.RawMessage
}
