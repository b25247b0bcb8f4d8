package indexjobs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/parsers"
)

// memStore implements Store in memory with the same semantics as the SQL
// repository: write-once processing order, monotonic checkpoints, terminal
// file rows that never reopen.
type memStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*Job
	files       map[uuid.UUID]map[string]*FileState
	orderSet    map[uuid.UUID]bool
	snapshots   []uuid.UUID
	langs       map[uuid.UUID]map[string]int
	checkpoints int
	hashes      map[string]map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[uuid.UUID]*Job),
		files:    make(map[uuid.UUID]map[string]*FileState),
		orderSet: make(map[uuid.UUID]bool),
		langs:    make(map[uuid.UUID]map[string]int),
		hashes:   make(map[string]map[string]string),
	}
}

func (m *memStore) addJob(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	if m.files[job.ID] == nil {
		m.files[job.ID] = make(map[string]*FileState)
	}
}

func (m *memStore) setStatus(id uuid.UUID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = status
	if status == StatusCancelled {
		now := time.Now()
		m.jobs[id].CompletedAt = &now
	}
}

func (m *memStore) setFileStatus(jobID uuid.UUID, path, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[jobID] == nil {
		m.files[jobID] = make(map[string]*FileState)
	}
	row, ok := m.files[jobID][path]
	if !ok {
		row = &FileState{JobID: jobID, Path: path, Status: FileStatusPending}
		m.files[jobID][path] = row
	}
	if row.Status == FileStatusCompleted || row.Status == FileStatusSkipped {
		return
	}
	row.Status = status
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperror.NewNotFound("job", id.String())
	}
	cp := *j
	cp.ProcessingOrder = append([]string(nil), j.ProcessingOrder...)
	if j.Checkpoint != nil {
		c := *j.Checkpoint
		cp.Checkpoint = &c
	}
	return &cp, nil
}

func (m *memStore) TransitionJob(_ context.Context, id uuid.UUID, from, to string, patch TransitionPatch) (bool, error) {
	if !CanTransition(from, to) {
		return false, apperror.NewInvalidInput(fmt.Sprintf("illegal job transition %s -> %s", from, to))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}
	now := time.Now()
	j.Status = to
	j.UpdatedAt = now
	if patch.MarkStarted && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if patch.MarkCompleted {
		j.CompletedAt = &now
		if j.StartedAt != nil {
			d := now.Sub(*j.StartedAt).Seconds()
			j.DurationSeconds = &d
		}
	}
	if patch.SuccessRate != nil {
		j.SuccessRate = patch.SuccessRate
	}
	if patch.ErrorMessage != nil {
		j.ErrorMessage = patch.ErrorMessage
	}
	return true, nil
}

func (m *memStore) SetProcessingOrder(_ context.Context, id uuid.UUID, order []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderSet[id] {
		return nil
	}
	j := m.jobs[id]
	j.ProcessingOrder = append([]string(nil), order...)
	j.TotalFiles = len(order)
	m.orderSet[id] = true
	return nil
}

func (m *memStore) SeedFileStates(_ context.Context, jobID uuid.UUID, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[jobID] == nil {
		m.files[jobID] = make(map[string]*FileState)
	}
	for _, p := range paths {
		if _, ok := m.files[jobID][p]; !ok {
			m.files[jobID][p] = &FileState{JobID: jobID, Path: p, Status: FileStatusPending}
		}
	}
	return nil
}

func (m *memStore) SaveCheckpoint(_ context.Context, id uuid.UUID, cp Checkpoint, lastFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j.Checkpoint != nil && j.Checkpoint.Index > cp.Index {
		return apperror.NewConflict(fmt.Sprintf("checkpoint index %d would regress", cp.Index))
	}
	c := cp
	j.Checkpoint = &c
	lf := lastFile
	j.LastProcessedFile = &lf
	j.UpdatedAt = time.Now()
	m.checkpoints++
	return nil
}

func (m *memStore) UpdateProgress(_ context.Context, id uuid.UUID) (*Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperror.NewNotFound("job", id.String())
	}
	p := &Progress{Total: j.TotalFiles}
	for _, f := range m.files[id] {
		switch f.Status {
		case FileStatusCompleted:
			p.Processed++
		case FileStatusFailed:
			p.Failed++
		case FileStatusSkipped:
			p.Skipped++
		}
	}
	j.ProcessedFiles = p.Processed
	j.FailedFiles = p.Failed
	j.SkippedFiles = p.Skipped
	if p.Total > 0 {
		frac := float64(p.Processed+p.Failed+p.Skipped) / float64(p.Total)
		if frac > 1.0 {
			frac = 1.0
		}
		j.ProgressFraction = frac
	} else {
		j.ProgressFraction = 1.0
	}
	j.UpdatedAt = time.Now()
	return p, nil
}

func (m *memStore) MarkNonTerminalFilesSkipped(_ context.Context, jobID uuid.UUID, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, f := range m.files[jobID] {
		if f.Status == FileStatusPending || f.Status == FileStatusProcessing {
			f.Status = FileStatusSkipped
			r := reason
			f.SkipReason = &r
			n++
		}
	}
	return n, nil
}

func (m *memStore) WriteSnapshot(_ context.Context, jobID uuid.UUID, languages map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, jobID)
	m.langs[jobID] = languages
	return nil
}

func (m *memStore) CompletedHashesForRepo(_ context.Context, repoRoot string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[repoRoot]))
	for k, v := range m.hashes[repoRoot] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) snapshotCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.snapshots {
		if s == id {
			n++
		}
	}
	return n
}

func (m *memStore) fileStatusCounts(id uuid.UUID) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, f := range m.files[id] {
		counts[f.Status]++
	}
	return counts
}

// fakeIndexer records calls and writes file outcomes straight into the
// store, the way the real pipeline does through the repository.
type fakeIndexer struct {
	store  *memStore
	mu     sync.Mutex
	calls  []string
	fail   map[string]bool
	skip   map[string]bool
	onCall func(n int)
}

func (f *fakeIndexer) IndexFile(_ context.Context, job *Job, path string) (FileOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	n := len(f.calls)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(n)
	}

	status, stage := FileStatusCompleted, StageIndex
	if f.skip[path] {
		status, stage = FileStatusSkipped, StageIngest
	}
	if f.fail[path] {
		status, stage = FileStatusFailed, StageEmbed
	}
	f.store.setFileStatus(job.ID, path, status)
	return FileOutcome{Path: path, Status: status, Stage: stage}, nil
}

func (f *fakeIndexer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeIndexer) callsCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testIndexingConfig() config.IndexingConfig {
	return config.IndexingConfig{
		MaxFilesPerChunk:    50,
		MaxBytesPerChunk:    10 * 1024 * 1024,
		MaxConcurrentChunks: 1,
		AbortFailureRate:    0.5,
		AbortMinSamples:     10,
		MaxFileRetries:      3,
		MaxFileSizeBytes:    1024 * 1024,
	}
}

func newTestOrchestrator(store *memStore, idx *fakeIndexer, cfg config.IndexingConfig) *Orchestrator {
	return NewOrchestrator(store, idx, parsers.NewRegistry(), cfg, testLogger())
}

// abstractOrder fabricates a pre-set processing order for jobs that resume
// without touching the filesystem.
func abstractOrder(n int) []string {
	order := make([]string, n)
	for i := range order {
		order[i] = fmt.Sprintf("/repo/file_%03d.go", i)
	}
	return order
}

func seedRunningJob(store *memStore, order []string) *Job {
	now := time.Now()
	job := &Job{
		ID:              uuid.New(),
		RepositoryRoot:  "/repo",
		Type:            TypeFull,
		Status:          StatusRunning,
		ProcessingOrder: order,
		TotalFiles:      len(order),
		StartedAt:       &now,
	}
	store.addJob(job)
	store.orderSet[job.ID] = true
	return job
}

func TestRunFullJobLifecycle(t *testing.T) {
	root := t.TempDir()
	var names []string
	for i := 0; i < 120; i++ {
		names = append(names, fmt.Sprintf("file_%03d.go", i))
	}
	writeTree(t, root, names)

	store := newMemStore()
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := &Job{ID: uuid.New(), RepositoryRoot: root, Type: TypeFull, Status: StatusPending}
	store.addJob(job)

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.TotalFiles != 120 || got.ProcessedFiles != 120 {
		t.Errorf("counters = %d/%d, want 120/120", got.ProcessedFiles, got.TotalFiles)
	}
	if got.ProgressFraction != 1.0 {
		t.Errorf("progress fraction = %v, want 1.0", got.ProgressFraction)
	}
	if got.SuccessRate == nil || *got.SuccessRate != 1.0 {
		t.Errorf("success rate = %v, want 1.0", got.SuccessRate)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("expected started_at and completed_at to be stamped")
	}

	// 120 files at 50 per chunk: three checkpoints, the last covering the
	// final 20 files.
	if store.checkpoints != 3 {
		t.Errorf("checkpoints = %d, want 3", store.checkpoints)
	}
	if got.Checkpoint == nil || got.Checkpoint.Index != 119 || got.Checkpoint.ChunkSize != 20 {
		t.Fatalf("final checkpoint = %+v, want index 119 chunk 20", got.Checkpoint)
	}
	if got.Checkpoint.StageCounters[StageIndex] != 20 {
		t.Errorf("stage counters = %v, want 20 at %s", got.Checkpoint.StageCounters, StageIndex)
	}

	// Sequential concurrency processes files in exactly the stored order.
	calls := idx.callsCopy()
	if len(calls) != 120 {
		t.Fatalf("indexed %d files, want 120", len(calls))
	}
	for i, p := range got.ProcessingOrder {
		if calls[i] != p {
			t.Fatalf("call %d = %s, want %s", i, calls[i], p)
		}
	}

	if store.snapshotCount(job.ID) != 1 {
		t.Errorf("snapshots = %d, want 1", store.snapshotCount(job.ID))
	}
	if store.langs[job.ID]["go"] != 120 {
		t.Errorf("language distribution = %v, want 120 go files", store.langs[job.ID])
	}
}

func TestRunResumesAfterCheckpoint(t *testing.T) {
	order := abstractOrder(120)
	store := newMemStore()
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := seedRunningJob(store, order)
	job.LastProcessedFile = &order[99]
	job.Checkpoint = &Checkpoint{Timestamp: time.Now(), Index: 99, ChunkSize: 50}
	store.SeedFileStates(context.Background(), job.ID, order)
	for _, p := range order[:100] {
		store.setFileStatus(job.ID, p, FileStatusCompleted)
	}

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := idx.callsCopy()
	if len(calls) != 20 {
		t.Fatalf("indexed %d files after resume, want 20", len(calls))
	}
	for i, p := range order[100:] {
		if calls[i] != p {
			t.Fatalf("resume call %d = %s, want %s", i, calls[i], p)
		}
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted || got.ProcessedFiles != 120 {
		t.Errorf("status=%s processed=%d, want COMPLETED/120", got.Status, got.ProcessedFiles)
	}
}

func TestRunResumeWithUnknownLastFileStartsOver(t *testing.T) {
	order := abstractOrder(20)
	store := newMemStore()
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := seedRunningJob(store, order)
	gone := "/repo/no_longer_in_order.go"
	job.LastProcessedFile = &gone
	job.Checkpoint = &Checkpoint{Timestamp: time.Now(), Index: 7}

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := idx.callCount(); n != 20 {
		t.Errorf("indexed %d files, want all 20 from the beginning", n)
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
}

func TestRunAbortsWhenFailureRateExceeded(t *testing.T) {
	order := abstractOrder(20)
	store := newMemStore()
	idx := &fakeIndexer{store: store, fail: map[string]bool{}}
	for _, p := range order[:6] {
		idx.fail[p] = true
	}
	cfg := testIndexingConfig()
	cfg.MaxFilesPerChunk = 10
	orch := newTestOrchestrator(store, idx, cfg)

	job := seedRunningJob(store, order)

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 6 of the first 10 failed: 0.6 > 0.5 with the minimum sample met, so
	// the second chunk never runs.
	if n := idx.callCount(); n != 10 {
		t.Errorf("indexed %d files, want 10 before the abort", n)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != ErrorFailureRateExceeded {
		t.Errorf("error message = %v, want %q", got.ErrorMessage, ErrorFailureRateExceeded)
	}
	if got.SuccessRate == nil || *got.SuccessRate != 0.4 {
		t.Errorf("success rate = %v, want 0.4", got.SuccessRate)
	}

	counts := store.fileStatusCounts(job.ID)
	if counts[FileStatusSkipped] != 10 {
		t.Errorf("swept files = %d, want the 10 unattempted ones", counts[FileStatusSkipped])
	}
	if counts[FileStatusCompleted]+counts[FileStatusFailed]+counts[FileStatusSkipped] != 20 {
		t.Errorf("terminal file counts %v do not cover all 20 files", counts)
	}
	if store.snapshotCount(job.ID) != 1 {
		t.Errorf("snapshots = %d, want 1 for an aborted job", store.snapshotCount(job.ID))
	}
}

func TestRunDoesNotAbortAtExactThreshold(t *testing.T) {
	order := abstractOrder(10)
	store := newMemStore()
	idx := &fakeIndexer{store: store, fail: map[string]bool{}}
	for _, p := range order[:5] {
		idx.fail[p] = true
	}
	cfg := testIndexingConfig()
	cfg.MaxFilesPerChunk = 10
	orch := newTestOrchestrator(store, idx, cfg)

	job := seedRunningJob(store, order)
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED: a failure rate of exactly 0.5 must not abort", got.Status)
	}
	if got.SuccessRate == nil || *got.SuccessRate != 0.5 {
		t.Errorf("success rate = %v, want 0.5", got.SuccessRate)
	}
}

func TestRunBelowMinimumSamplesNeverAborts(t *testing.T) {
	order := abstractOrder(8)
	store := newMemStore()
	idx := &fakeIndexer{store: store, fail: map[string]bool{}}
	for _, p := range order[:6] {
		idx.fail[p] = true
	}
	cfg := testIndexingConfig()
	cfg.MaxFilesPerChunk = 4
	orch := newTestOrchestrator(store, idx, cfg)

	job := seedRunningJob(store, order)
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED below the minimum sample count", got.Status)
	}
	if got.SuccessRate != nil {
		t.Errorf("success rate = %v, want null with only 8 attempts", *got.SuccessRate)
	}
}

func TestRunObservesPauseAtChunkBoundary(t *testing.T) {
	order := abstractOrder(20)
	store := newMemStore()
	idx := &fakeIndexer{store: store}
	cfg := testIndexingConfig()
	cfg.MaxFilesPerChunk = 10
	orch := newTestOrchestrator(store, idx, cfg)

	job := seedRunningJob(store, order)
	idx.onCall = func(n int) {
		if n == 5 {
			store.setStatus(job.ID, StatusPaused)
		}
	}

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The pause lands mid-chunk but the chunk finishes before it is seen.
	if n := idx.callCount(); n != 10 {
		t.Errorf("indexed %d files, want 10: pause observed at the chunk boundary", n)
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusPaused {
		t.Fatalf("status = %s, want PAUSED", got.Status)
	}
	if got.Checkpoint == nil || got.Checkpoint.Index != 9 {
		t.Errorf("checkpoint = %+v, want index 9", got.Checkpoint)
	}
	counts := store.fileStatusCounts(job.ID)
	if counts[FileStatusPending] != 10 {
		t.Errorf("pending files = %d, want 10 left for the resume", counts[FileStatusPending])
	}

	// Resume picks up the second chunk, and no file runs twice.
	idx.onCall = nil
	store.setStatus(job.ID, StatusRunning)
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	calls := idx.callsCopy()
	if len(calls) != 20 {
		t.Fatalf("total calls = %d, want 20 across both sessions", len(calls))
	}
	seen := make(map[string]int)
	for _, p := range calls {
		seen[p]++
	}
	for p, n := range seen {
		if n != 1 {
			t.Errorf("file %s attempted %d times, want exactly once", p, n)
		}
	}
	got, _ = store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status after resume = %s, want COMPLETED", got.Status)
	}
}

func TestRunObservesCancellationAndSweeps(t *testing.T) {
	order := abstractOrder(20)
	store := newMemStore()
	idx := &fakeIndexer{store: store}
	cfg := testIndexingConfig()
	cfg.MaxFilesPerChunk = 10
	orch := newTestOrchestrator(store, idx, cfg)

	job := seedRunningJob(store, order)
	idx.onCall = func(n int) {
		if n == 3 {
			store.setStatus(job.ID, StatusCancelled)
		}
	}

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := idx.callCount(); n != 10 {
		t.Errorf("indexed %d files, want 10 before cancellation was seen", n)
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}
	counts := store.fileStatusCounts(job.ID)
	if counts[FileStatusSkipped] != 10 {
		t.Errorf("swept files = %d, want 10", counts[FileStatusSkipped])
	}
	if got.ProgressFraction != 1.0 {
		t.Errorf("progress fraction = %v, want 1.0 once every file is accounted for", got.ProgressFraction)
	}
	if store.snapshotCount(job.ID) != 0 {
		t.Errorf("snapshots = %d, want none for a cancelled job", store.snapshotCount(job.ID))
	}
}

func TestRunEmptyRepositoryCompletes(t *testing.T) {
	root := t.TempDir()
	store := newMemStore()
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := &Job{ID: uuid.New(), RepositoryRoot: root, Type: TypeFull, Status: StatusPending}
	store.addJob(job)

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.TotalFiles != 0 || got.ProcessedFiles != 0 {
		t.Errorf("counters = %d/%d, want 0/0", got.ProcessedFiles, got.TotalFiles)
	}
	if got.ProgressFraction != 1.0 {
		t.Errorf("progress fraction = %v, want 1.0 for an empty repository", got.ProgressFraction)
	}
	if got.SuccessRate != nil {
		t.Errorf("success rate = %v, want null with zero attempts", *got.SuccessRate)
	}
	if store.snapshotCount(job.ID) != 1 {
		t.Errorf("snapshots = %d, want 1", store.snapshotCount(job.ID))
	}
}

func TestRunAllFilesSkipped(t *testing.T) {
	order := abstractOrder(5)
	store := newMemStore()
	idx := &fakeIndexer{store: store, skip: map[string]bool{}}
	for _, p := range order {
		idx.skip[p] = true
	}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := seedRunningJob(store, order)
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.SkippedFiles != 5 || got.ProcessedFiles != 0 {
		t.Errorf("counters = processed %d skipped %d, want 0/5", got.ProcessedFiles, got.SkippedFiles)
	}
	if got.SuccessRate != nil {
		t.Errorf("success rate = %v, want null when nothing was attempted", *got.SuccessRate)
	}
}

func TestRunIncrementalOmitsCompletedPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, []string{"a.go", "b.go", "c.go", "d.go"})

	store := newMemStore()
	store.hashes[root] = map[string]string{
		filepath.Join(root, "a.go"): "hash-a",
		filepath.Join(root, "c.go"): "hash-c",
	}
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := &Job{ID: uuid.New(), RepositoryRoot: root, Type: TypeIncremental, Status: StatusPending}
	store.addJob(job)

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.TotalFiles != 2 {
		t.Fatalf("total files = %d, want 2 after omitting completed paths", got.TotalFiles)
	}
	for _, p := range got.ProcessingOrder {
		if p == filepath.Join(root, "a.go") || p == filepath.Join(root, "c.go") {
			t.Errorf("completed path %s should not be in the order", p)
		}
	}
}

func TestRunIncrementalForceReindexKeepsEverything(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, []string{"a.go", "b.go"})

	store := newMemStore()
	store.hashes[root] = map[string]string{filepath.Join(root, "a.go"): "hash-a"}
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := &Job{ID: uuid.New(), RepositoryRoot: root, Type: TypeIncremental, ForceReindex: true, Status: StatusPending}
	store.addJob(job)

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.TotalFiles != 2 {
		t.Errorf("total files = %d, want 2 with force_reindex", got.TotalFiles)
	}
}

func TestRunTerminalAndPausedJobsAreNoOps(t *testing.T) {
	store := newMemStore()
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	for _, status := range []string{StatusCompleted, StatusFailed, StatusCancelled, StatusPaused} {
		job := &Job{ID: uuid.New(), RepositoryRoot: "/repo", Type: TypeFull, Status: status}
		store.addJob(job)
		if err := orch.Run(context.Background(), job.ID); err != nil {
			t.Fatalf("Run(%s): %v", status, err)
		}
		got, _ := store.GetJob(context.Background(), job.ID)
		if got.Status != status {
			t.Errorf("status changed from %s to %s", status, got.Status)
		}
	}
	if n := idx.callCount(); n != 0 {
		t.Errorf("indexed %d files, want none", n)
	}
}

func TestRunDiscoveryFailureFailsJob(t *testing.T) {
	store := newMemStore()
	idx := &fakeIndexer{store: store}
	orch := newTestOrchestrator(store, idx, testIndexingConfig())

	job := &Job{ID: uuid.New(), RepositoryRoot: "/nonexistent/repo/path", Type: TypeFull, Status: StatusPending}
	store.addJob(job)

	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run should record the failure, not return it: %v", err)
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage == nil {
		t.Error("expected a discovery error message")
	}
}

func TestResumeIndex(t *testing.T) {
	order := []string{"/r/a", "/r/b", "/r/c"}
	last := "/r/b"
	unknown := "/r/zzz"

	tests := []struct {
		name string
		last *string
		want int
	}{
		{"nil resumes from start", nil, 0},
		{"known file resumes after it", &last, 2},
		{"unknown file resumes from start", &unknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resumeIndex(order, tt.last); got != tt.want {
				t.Errorf("resumeIndex = %d, want %d", got, tt.want)
			}
		})
	}
}
