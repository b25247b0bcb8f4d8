package sse

// JobEventType represents the type of SSE event in a job progress stream.
type JobEventType string

const (
	// EventProgress carries the job's current counters; emitted whenever
	// they change.
	EventProgress JobEventType = "progress"

	// EventStatus is emitted when the job transitions between statuses.
	EventStatus JobEventType = "status"

	// EventError is emitted when streaming itself fails.
	EventError JobEventType = "error"

	// EventDone is the final event, sent once the job reaches a terminal
	// status.
	EventDone JobEventType = "done"
)

// ProgressEvent carries a job's aggregate counters.
type ProgressEvent struct {
	Type              string  `json:"type"`
	JobID             string  `json:"job_id"`
	Status            string  `json:"status"`
	TotalFiles        int     `json:"total_files"`
	ProcessedFiles    int     `json:"processed_files"`
	FailedFiles       int     `json:"failed_files"`
	SkippedFiles      int     `json:"skipped_files"`
	ProgressFraction  float64 `json:"progress_fraction"`
	LastProcessedFile string  `json:"last_processed_file,omitempty"`
}

// NewProgressEvent creates a progress event for the given job counters.
func NewProgressEvent(jobID, status string, total, processed, failed, skipped int, fraction float64, lastFile string) ProgressEvent {
	return ProgressEvent{
		Type:              string(EventProgress),
		JobID:             jobID,
		Status:            status,
		TotalFiles:        total,
		ProcessedFiles:    processed,
		FailedFiles:       failed,
		SkippedFiles:      skipped,
		ProgressFraction:  fraction,
		LastProcessedFile: lastFile,
	}
}

// StatusEvent is emitted when the job changes status.
type StatusEvent struct {
	Type   string `json:"type"`
	JobID  string `json:"job_id"`
	From   string `json:"from"`
	Status string `json:"status"`
}

// NewStatusEvent creates a status transition event.
func NewStatusEvent(jobID, from, to string) StatusEvent {
	return StatusEvent{
		Type:   string(EventStatus),
		JobID:  jobID,
		From:   from,
		Status: to,
	}
}

// ErrorEvent is emitted when an error occurs during streaming.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewErrorEvent creates a new error event.
func NewErrorEvent(errMsg string) ErrorEvent {
	return ErrorEvent{
		Type:  string(EventError),
		Error: errMsg,
	}
}

// DoneEvent is the final event signaling end of stream.
type DoneEvent struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// NewDoneEvent creates the final event carrying the job's terminal status.
func NewDoneEvent(status string) DoneEvent {
	return DoneEvent{
		Type:   string(EventDone),
		Status: status,
	}
}
