package indexjobs

import "time"

// CreateJobRequest is the POST /jobs payload.
type CreateJobRequest struct {
	RepositoryRoot  string   `json:"repository_root"`
	Type            string   `json:"type"`
	IncludePatterns []string `json:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns"`
	ForceReindex    bool     `json:"force_reindex"`
}

// CreateJobResponse acknowledges a submission.
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// ControlResponse acknowledges pause/resume/cancel requests.
type ControlResponse struct {
	OK bool `json:"ok"`
}

// CheckpointSummary surfaces resume state without the processing order.
type CheckpointSummary struct {
	Timestamp   time.Time `json:"timestamp"`
	Index       int       `json:"index_in_processing_order"`
	ChunkSize   int       `json:"chunk_size"`
	ChunkFailed bool      `json:"chunk_failed"`
}

// JobResponse is the wire shape of a job.
type JobResponse struct {
	ID                string             `json:"id"`
	RepositoryRoot    string             `json:"repository_root"`
	Type              string             `json:"type"`
	Status            string             `json:"status"`
	IncludePatterns   []string           `json:"include_patterns"`
	ExcludePatterns   []string           `json:"exclude_patterns"`
	ForceReindex      bool               `json:"force_reindex"`
	TotalFiles        int                `json:"total_files"`
	ProcessedFiles    int                `json:"processed_files"`
	FailedFiles       int                `json:"failed_files"`
	SkippedFiles      int                `json:"skipped_files"`
	ProgressFraction  float64            `json:"progress_fraction"`
	SuccessRate       *float64           `json:"success_rate"`
	LastProcessedFile *string            `json:"last_processed_file,omitempty"`
	Checkpoint        *CheckpointSummary `json:"checkpoint,omitempty"`
	ErrorMessage      *string            `json:"error_message,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	StartedAt         *time.Time         `json:"started_at,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	DurationSeconds   *float64           `json:"duration_seconds,omitempty"`
}

func toJobResponse(j *Job) *JobResponse {
	resp := &JobResponse{
		ID:                j.ID.String(),
		RepositoryRoot:    j.RepositoryRoot,
		Type:              j.Type,
		Status:            j.Status,
		IncludePatterns:   j.IncludePatterns,
		ExcludePatterns:   j.ExcludePatterns,
		ForceReindex:      j.ForceReindex,
		TotalFiles:        j.TotalFiles,
		ProcessedFiles:    j.ProcessedFiles,
		FailedFiles:       j.FailedFiles,
		SkippedFiles:      j.SkippedFiles,
		ProgressFraction:  j.ProgressFraction,
		SuccessRate:       j.SuccessRate,
		LastProcessedFile: j.LastProcessedFile,
		ErrorMessage:      j.ErrorMessage,
		CreatedAt:         j.CreatedAt,
		StartedAt:         j.StartedAt,
		CompletedAt:       j.CompletedAt,
		DurationSeconds:   j.DurationSeconds,
	}
	if j.Checkpoint != nil {
		resp.Checkpoint = &CheckpointSummary{
			Timestamp:   j.Checkpoint.Timestamp,
			Index:       j.Checkpoint.Index,
			ChunkSize:   j.Checkpoint.ChunkSize,
			ChunkFailed: j.Checkpoint.ChunkFailed,
		}
	}
	return resp
}

// ListJobsResponse wraps the recent-jobs listing.
type ListJobsResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

// FileStateResponse is the wire shape of one file's state.
type FileStateResponse struct {
	Path                      string     `json:"path"`
	Status                    string     `json:"status"`
	ContentHash               *string    `json:"content_hash,omitempty"`
	SizeBytes                 int64      `json:"size_bytes"`
	EntitiesExtracted         int        `json:"entities_extracted"`
	EmbeddingsGenerated       int        `json:"embeddings_generated"`
	ProcessingDurationSeconds *float64   `json:"processing_duration_seconds,omitempty"`
	ErrorKind                 *string    `json:"error_kind,omitempty"`
	ErrorMessage              *string    `json:"error_message,omitempty"`
	RetryCount                int        `json:"retry_count"`
	SkipReason                *string    `json:"skip_reason,omitempty"`
	LastStage                 *string    `json:"last_stage,omitempty"`
	StartedAt                 *time.Time `json:"started_at,omitempty"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
}

func toFileStateResponse(f *FileState) *FileStateResponse {
	return &FileStateResponse{
		Path:                      f.Path,
		Status:                    f.Status,
		ContentHash:               f.ContentHash,
		SizeBytes:                 f.SizeBytes,
		EntitiesExtracted:         f.EntitiesExtracted,
		EmbeddingsGenerated:       f.EmbeddingsGenerated,
		ProcessingDurationSeconds: f.ProcessingDurationSeconds,
		ErrorKind:                 f.ErrorKind,
		ErrorMessage:              f.ErrorMessage,
		RetryCount:                f.RetryCount,
		SkipReason:                f.SkipReason,
		LastStage:                 f.LastStage,
		StartedAt:                 f.StartedAt,
		CompletedAt:               f.CompletedAt,
	}
}

// ListFilesResponse wraps a job's file listing.
type ListFilesResponse struct {
	Files []*FileStateResponse `json:"files"`
}

// ListSnapshotsResponse wraps the finished-job summaries.
type ListSnapshotsResponse struct {
	Snapshots []*Snapshot `json:"snapshots"`
}
