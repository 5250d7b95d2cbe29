// Package types contains shared domain types for the probe point service.
package types

// Device represents the device profile a performance test runs against
type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// Valid reports whether the device value is one of the supported profiles
func (d Device) Valid() bool {
	return d == DeviceMobile || d == DeviceDesktop
}

// TestStatus represents the lifecycle state of a test run
type TestStatus string

const (
	TestStatusQueued    TestStatus = "queued"
	TestStatusRunning   TestStatus = "running"
	TestStatusCompleted TestStatus = "completed"
	TestStatusFailed    TestStatus = "failed"
)

// Terminal reports whether the status admits no further transitions
func (s TestStatus) Terminal() bool {
	return s == TestStatusCompleted || s == TestStatusFailed
}

// JobStatus represents the scheduling state of a queued job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the job status admits no further transitions
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobTypePerformanceTest is the job type tag for performance test executions
const JobTypePerformanceTest = "performance-test"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
