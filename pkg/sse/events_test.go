package sse

import (
	"testing"
)

func TestNewProgressEvent(t *testing.T) {
	tests := []struct {
		name      string
		jobID     string
		status    string
		total     int
		processed int
		failed    int
		skipped   int
		fraction  float64
		lastFile  string
	}{
		{
			name:      "mid-run counters",
			jobID:     "550e8400-e29b-41d4-a716-446655440000",
			status:    "running",
			total:     120,
			processed: 80,
			failed:    3,
			skipped:   7,
			fraction:  0.75,
			lastFile:  "internal/server/server.go",
		},
		{
			name:     "fresh job, no counters yet",
			jobID:    "job-1",
			status:   "pending",
			fraction: 0,
		},
		{
			name:      "completed job",
			jobID:     "job-2",
			status:    "completed",
			total:     10,
			processed: 10,
			fraction:  1,
			lastFile:  "README.md",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewProgressEvent(tt.jobID, tt.status, tt.total, tt.processed, tt.failed, tt.skipped, tt.fraction, tt.lastFile)

			if event.Type != string(EventProgress) {
				t.Errorf("Type = %q, want %q", event.Type, string(EventProgress))
			}
			if event.JobID != tt.jobID {
				t.Errorf("JobID = %q, want %q", event.JobID, tt.jobID)
			}
			if event.Status != tt.status {
				t.Errorf("Status = %q, want %q", event.Status, tt.status)
			}
			if event.TotalFiles != tt.total || event.ProcessedFiles != tt.processed ||
				event.FailedFiles != tt.failed || event.SkippedFiles != tt.skipped {
				t.Errorf("counters = %d/%d/%d/%d, want %d/%d/%d/%d",
					event.TotalFiles, event.ProcessedFiles, event.FailedFiles, event.SkippedFiles,
					tt.total, tt.processed, tt.failed, tt.skipped)
			}
			if event.ProgressFraction != tt.fraction {
				t.Errorf("ProgressFraction = %v, want %v", event.ProgressFraction, tt.fraction)
			}
			if event.LastProcessedFile != tt.lastFile {
				t.Errorf("LastProcessedFile = %q, want %q", event.LastProcessedFile, tt.lastFile)
			}
		})
	}
}

func TestNewStatusEvent(t *testing.T) {
	tests := []struct {
		name  string
		jobID string
		from  string
		to    string
	}{
		{"start", "job-1", "pending", "running"},
		{"pause", "job-1", "running", "paused"},
		{"resume", "job-1", "paused", "running"},
		{"finish", "job-1", "running", "completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewStatusEvent(tt.jobID, tt.from, tt.to)

			if event.Type != string(EventStatus) {
				t.Errorf("Type = %q, want %q", event.Type, string(EventStatus))
			}
			if event.From != tt.from {
				t.Errorf("From = %q, want %q", event.From, tt.from)
			}
			if event.Status != tt.to {
				t.Errorf("Status = %q, want %q", event.Status, tt.to)
			}
		})
	}
}

func TestNewErrorEvent(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
	}{
		{
			name:   "simple error message",
			errMsg: "something went wrong",
		},
		{
			name:   "empty error message",
			errMsg: "",
		},
		{
			name:   "detailed error message",
			errMsg: "error: database connection failed: timeout after 30s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewErrorEvent(tt.errMsg)

			if event.Type != string(EventError) {
				t.Errorf("Type = %q, want %q", event.Type, string(EventError))
			}
			if event.Error != tt.errMsg {
				t.Errorf("Error = %q, want %q", event.Error, tt.errMsg)
			}
		})
	}
}

func TestNewDoneEvent(t *testing.T) {
	event := NewDoneEvent("completed")

	if event.Type != string(EventDone) {
		t.Errorf("Type = %q, want %q", event.Type, string(EventDone))
	}
	if event.Status != "completed" {
		t.Errorf("Status = %q, want %q", event.Status, "completed")
	}
}

func TestJobEventTypeConstants(t *testing.T) {
	// Verify constants have expected wire values
	tests := []struct {
		name     string
		constant JobEventType
		expected string
	}{
		{"EventProgress", EventProgress, "progress"},
		{"EventStatus", EventStatus, "status"},
		{"EventError", EventError, "error"},
		{"EventDone", EventDone, "done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, string(tt.constant), tt.expected)
			}
		})
	}
}
