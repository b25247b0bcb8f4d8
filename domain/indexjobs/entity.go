package indexjobs

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Job statuses. Transitions are validated on every write; see CanTransition.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusPaused    = "PAUSED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Job types.
const (
	TypeFull        = "FULL"
	TypeIncremental = "INCREMENTAL"
	TypeSelective   = "SELECTIVE"
)

// File statuses.
const (
	FileStatusPending    = "PENDING"
	FileStatusProcessing = "PROCESSING"
	FileStatusCompleted  = "COMPLETED"
	FileStatusFailed     = "FAILED"
	FileStatusSkipped    = "SKIPPED"
)

// Pipeline stages recorded on file states and dead letters.
const (
	StageIngest = "INGEST"
	StageEmbed  = "EMBED"
	StageIndex  = "INDEX"
)

// Skip reasons.
const (
	SkipReasonNoParser         = "no_parser_for_file_type"
	SkipReasonContentUnchanged = "content_unchanged"
	SkipReasonTerminated       = "terminated_before_processed"
)

// ErrorFailureRateExceeded is the job error_message set when the abort rule
// trips.
const ErrorFailureRateExceeded = "failure_rate_exceeded"

// validTransitions lists the allowed job status edges.
var validTransitions = map[string][]string{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:  {StatusRunning, StatusCancelled},
}

// CanTransition reports whether a job may move from one status to another.
// Terminal statuses have no outgoing edges.
func CanTransition(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Checkpoint records durable resume state after each completed chunk. Index
// points at the last file of that chunk within the processing order, so a
// resumed run continues at Index+1. The JSON keys are read back inside SQL
// guards and must stay stable.
type Checkpoint struct {
	Timestamp     time.Time      `json:"timestamp"`
	Index         int            `json:"index_in_processing_order"`
	ChunkSize     int            `json:"chunk_size"`
	ChunkFailed   bool           `json:"chunk_failed"`
	StageCounters map[string]int `json:"stage_counters,omitempty"`
}

func (c *Checkpoint) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *Checkpoint) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported checkpoint scan type %T", value)
	}
	return json.Unmarshal(data, c)
}

// Job is one indexing run over a repository root.
type Job struct {
	bun.BaseModel `bun:"table:idx.jobs,alias:j"`

	ID              uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	RepositoryRoot  string    `bun:"repository_root,notnull" json:"repositoryRoot"`
	Type            string    `bun:"type,notnull,default:'FULL'" json:"type"`
	Status          string    `bun:"status,notnull,default:'PENDING'" json:"status"`
	IncludePatterns []string  `bun:"include_patterns,array,notnull,default:'{}'" json:"includePatterns"`
	ExcludePatterns []string  `bun:"exclude_patterns,array,notnull,default:'{}'" json:"excludePatterns"`
	ForceReindex    bool      `bun:"force_reindex,notnull,default:false" json:"forceReindex"`

	TotalFiles       int      `bun:"total_files,notnull,default:0" json:"totalFiles"`
	ProcessedFiles   int      `bun:"processed_files,notnull,default:0" json:"processedFiles"`
	FailedFiles      int      `bun:"failed_files,notnull,default:0" json:"failedFiles"`
	SkippedFiles     int      `bun:"skipped_files,notnull,default:0" json:"skippedFiles"`
	ProgressFraction float64  `bun:"progress_fraction,notnull,default:0" json:"progressFraction"`
	SuccessRate      *float64 `bun:"success_rate" json:"successRate"`

	// ProcessingOrder is written once after discovery and never changed;
	// checkpoints index into it.
	ProcessingOrder   []string    `bun:"processing_order,array" json:"-"`
	LastProcessedFile *string     `bun:"last_processed_file" json:"lastProcessedFile,omitempty"`
	Checkpoint        *Checkpoint `bun:"checkpoint,type:jsonb" json:"checkpoint,omitempty"`
	ErrorMessage      *string     `bun:"error_message" json:"errorMessage,omitempty"`

	CreatedAt       time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
	StartedAt       *time.Time `bun:"started_at" json:"startedAt,omitempty"`
	CompletedAt     *time.Time `bun:"completed_at" json:"completedAt,omitempty"`
	DurationSeconds *float64   `bun:"duration_seconds" json:"durationSeconds,omitempty"`
}

// IsTerminal reports whether the job reached a final status.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// FileState tracks one file within one job.
type FileState struct {
	bun.BaseModel `bun:"table:idx.file_states,alias:fs"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	JobID       uuid.UUID `bun:"job_id,type:uuid,notnull" json:"jobId"`
	Path        string    `bun:"path,notnull" json:"path"`
	Status      string    `bun:"status,notnull,default:'PENDING'" json:"status"`
	ContentHash *string   `bun:"content_hash" json:"contentHash,omitempty"`
	SizeBytes   int64     `bun:"size_bytes,notnull,default:0" json:"sizeBytes"`

	EntitiesExtracted         int      `bun:"entities_extracted,notnull,default:0" json:"entitiesExtracted"`
	EmbeddingsGenerated       int      `bun:"embeddings_generated,notnull,default:0" json:"embeddingsGenerated"`
	ProcessingDurationSeconds *float64 `bun:"processing_duration_seconds" json:"processingDurationSeconds,omitempty"`

	ErrorKind    *string `bun:"error_kind" json:"errorKind,omitempty"`
	ErrorMessage *string `bun:"error_message" json:"errorMessage,omitempty"`
	RetryCount   int     `bun:"retry_count,notnull,default:0" json:"retryCount"`
	SkipReason   *string `bun:"skip_reason" json:"skipReason,omitempty"`

	// LastStage and LastOffset form the stage cursor: the furthest pipeline
	// stage the file reached and the entity offset within it.
	LastStage  *string `bun:"last_stage" json:"lastStage,omitempty"`
	LastOffset int     `bun:"last_offset,notnull,default:0" json:"lastOffset"`

	StartedAt   *time.Time `bun:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time `bun:"completed_at" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// RetryAttempt is one recorded failure in a dead letter's history.
type RetryAttempt struct {
	RetryCount   int       `json:"retry_count"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	At           time.Time `json:"at"`
}

// RetryHistory is the JSONB list of failures that led to a dead letter.
type RetryHistory []RetryAttempt

func (h RetryHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

func (h *RetryHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported retry history scan type %T", value)
	}
	return json.Unmarshal(data, h)
}

// DeadLetter is a file that exhausted its retry budget across runs.
type DeadLetter struct {
	bun.BaseModel `bun:"table:idx.dead_letters,alias:dl"`

	ID           uuid.UUID    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	JobID        uuid.UUID    `bun:"job_id,type:uuid,notnull" json:"jobId"`
	Path         string       `bun:"path,notnull" json:"path"`
	Stage        string       `bun:"stage,notnull" json:"stage"`
	ErrorKind    string       `bun:"error_kind,notnull" json:"errorKind"`
	ErrorMessage *string      `bun:"error_message" json:"errorMessage,omitempty"`
	RetryHistory RetryHistory `bun:"retry_history,type:jsonb,notnull,default:'[]'::jsonb" json:"retryHistory"`
	Resolved     bool         `bun:"resolved,notnull,default:false" json:"resolved"`
	ResolvedAt   *time.Time   `bun:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt    time.Time    `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// LanguageCounts is the per-language file tally stored on snapshots.
type LanguageCounts map[string]int

func (lc LanguageCounts) Value() (driver.Value, error) {
	if lc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(lc)
}

func (lc *LanguageCounts) Scan(value interface{}) error {
	if value == nil {
		*lc = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported language counts scan type %T", value)
	}
	return json.Unmarshal(data, lc)
}

// Snapshot is the immutable summary written when a job finishes.
type Snapshot struct {
	bun.BaseModel `bun:"table:idx.repository_snapshots,alias:rs"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	JobID          uuid.UUID `bun:"job_id,type:uuid,notnull" json:"jobId"`
	RepositoryRoot string    `bun:"repository_root,notnull" json:"repositoryRoot"`

	TotalFiles     int `bun:"total_files,notnull,default:0" json:"totalFiles"`
	ProcessedFiles int `bun:"processed_files,notnull,default:0" json:"processedFiles"`
	FailedFiles    int `bun:"failed_files,notnull,default:0" json:"failedFiles"`
	SkippedFiles   int `bun:"skipped_files,notnull,default:0" json:"skippedFiles"`

	SuccessRate               *float64 `bun:"success_rate" json:"successRate,omitempty"`
	DurationSeconds           *float64 `bun:"duration_seconds" json:"durationSeconds,omitempty"`
	AvgEntitiesPerFile        *float64 `bun:"avg_entities_per_file" json:"avgEntitiesPerFile,omitempty"`
	AvgDurationPerFileSeconds *float64 `bun:"avg_duration_per_file_seconds" json:"avgDurationPerFileSeconds,omitempty"`

	LanguageDistribution LanguageCounts `bun:"language_distribution,type:jsonb,notnull,default:'{}'::jsonb" json:"languageDistribution"`
	CreatedAt            time.Time      `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// QueueEntry mirrors idx.index_queue rows; the queue machinery lives in
// internal/jobs, this model only reads claims back.
type QueueEntry struct {
	bun.BaseModel `bun:"table:idx.index_queue,alias:q"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	JobID        uuid.UUID  `bun:"job_id,type:uuid,notnull" json:"jobId"`
	Status       string     `bun:"status,notnull,default:'pending'" json:"status"`
	Priority     int        `bun:"priority,notnull,default:0" json:"priority"`
	AttemptCount int        `bun:"attempt_count,notnull,default:0" json:"attemptCount"`
	MaxAttempts  int        `bun:"max_attempts,notnull,default:3" json:"maxAttempts"`
	ScheduledAt  time.Time  `bun:"scheduled_at,notnull,default:now()" json:"scheduledAt"`
	StartedAt    *time.Time `bun:"started_at" json:"startedAt,omitempty"`
	CompletedAt  *time.Time `bun:"completed_at" json:"completedAt,omitempty"`
	LastError    *string    `bun:"last_error" json:"lastError,omitempty"`
	ClaimedBy    *string    `bun:"claimed_by" json:"claimedBy,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}
