package e2e

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/domain/monitoring"
	"github.com/repolens/repolens/internal/testutil"
)

// JobLifecycleTestSuite runs jobs end to end: submission through the queue
// worker, discovery, per-file processing with noop embeddings, and the
// terminal snapshot. The worker commits its own claims, so this suite runs
// over the base database and truncates between tests instead of using
// per-test transactions.
type JobLifecycleTestSuite struct {
	suite.Suite
	ctx    context.Context
	testDB *testutil.TestDB
	server *testutil.TestServer
	client *testutil.HTTPClient
}

func TestJobLifecycleSuite(t *testing.T) {
	suite.Run(t, new(JobLifecycleTestSuite))
}

func (s *JobLifecycleTestSuite) SetupSuite() {
	if testutil.IsExternalServerMode() {
		s.T().Skip("lifecycle tests drive the in-process queue worker")
	}
	s.ctx = context.Background()

	testDB, err := testutil.SetupTestDB(s.ctx, "lifecycle")
	if err != nil {
		s.T().Skipf("postgres unavailable, skipping suite: %v", err)
	}
	s.testDB = testDB

	s.server = testutil.NewTestServer(testDB)
	s.Require().NoError(s.server.StartWorker(s.ctx))
	s.client = testutil.NewHTTPClient(s.server.Echo)
}

func (s *JobLifecycleTestSuite) TearDownSuite() {
	if s.server != nil {
		_ = s.server.StopWorker(s.ctx)
	}
	if s.testDB != nil {
		s.testDB.Close()
	}
}

func (s *JobLifecycleTestSuite) SetupTest() {
	s.Require().NoError(testutil.TruncateTables(s.ctx, s.testDB.DB))
}

// submit creates a job and returns its ID.
func (s *JobLifecycleTestSuite) submit(body map[string]any) string {
	resp := s.client.POST("/jobs", testutil.WithJSONBody(body))
	s.Require().Equal(http.StatusCreated, resp.StatusCode,
		"submit failed: %d %s", resp.StatusCode, resp.String())

	var created indexjobs.CreateJobResponse
	s.Require().NoError(resp.JSON(&created))
	return created.JobID
}

// waitForJob polls until the job reaches a terminal status.
func (s *JobLifecycleTestSuite) waitForJob(id string) *indexjobs.JobResponse {
	deadline := time.Now().Add(30 * time.Second)
	for {
		resp := s.client.GET("/jobs/" + id)
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		var job indexjobs.JobResponse
		s.Require().NoError(resp.JSON(&job))

		switch job.Status {
		case indexjobs.StatusCompleted, indexjobs.StatusFailed, indexjobs.StatusCancelled:
			return &job
		}
		if time.Now().After(deadline) {
			s.T().Fatalf("job %s did not finish: status=%s files=%d/%d",
				id, job.Status, job.ProcessedFiles, job.TotalFiles)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// listFiles fetches a job's file states.
func (s *JobLifecycleTestSuite) listFiles(id string) []*indexjobs.FileStateResponse {
	resp := s.client.GET("/jobs/" + id + "/files?limit=100")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var list indexjobs.ListFilesResponse
	s.Require().NoError(resp.JSON(&list))
	return list.Files
}

// documentCount counts search documents written for a repository root.
func (s *JobLifecycleTestSuite) documentCount(root string) int {
	var count int
	err := s.testDB.DB.NewRaw(
		"SELECT COUNT(*) FROM idx.search_documents WHERE repo_id = ?", root).
		Scan(s.ctx, &count)
	s.Require().NoError(err)
	return count
}

// =============================================================================
// Test: Full run over the fixture tree
// =============================================================================

func (s *JobLifecycleTestSuite) TestFullRun_IndexesFixtureTree() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	id := s.submit(map[string]any{"repository_root": root})
	job := s.waitForJob(id)

	s.Equal(indexjobs.StatusCompleted, job.Status)
	s.Equal(6, job.TotalFiles)
	s.Equal(5, job.ProcessedFiles)
	s.Equal(0, job.FailedFiles)
	s.Equal(1, job.SkippedFiles) // config.yaml has no parser
	s.InDelta(1.0, job.ProgressFraction, 0.001)
	s.NotNil(job.StartedAt)
	s.NotNil(job.CompletedAt)
	s.NotNil(job.DurationSeconds)
	// Five attempted files are below the minimum sample count for a
	// meaningful rate.
	s.Nil(job.SuccessRate)

	s.Require().NotNil(job.Checkpoint)
	s.Equal(5, job.Checkpoint.Index)
	s.Equal(6, job.Checkpoint.ChunkSize)
	s.False(job.Checkpoint.ChunkFailed)
	s.Require().NotNil(job.LastProcessedFile)
	s.Equal(filepath.Join(root, "web", "app.ts"), *job.LastProcessedFile)

	files := s.listFiles(id)
	s.Require().Len(files, 6)

	totalEntities := 0
	for _, f := range files {
		switch filepath.Base(f.Path) {
		case "config.yaml":
			s.Equal(indexjobs.FileStatusSkipped, f.Status)
			s.Require().NotNil(f.SkipReason)
			s.Equal(indexjobs.SkipReasonNoParser, *f.SkipReason)
			s.Nil(f.ContentHash)
			s.Equal(0, f.EntitiesExtracted)
		default:
			s.Equal(indexjobs.FileStatusCompleted, f.Status, "file %s", f.Path)
			s.Greater(f.EntitiesExtracted, 0, "file %s", f.Path)
			s.Equal(0, f.EmbeddingsGenerated, "noop provider generates no vectors")
			s.Require().NotNil(f.LastStage)
			s.Equal(indexjobs.StageIndex, *f.LastStage)
			s.NotNil(f.ContentHash)
			s.NotNil(f.CompletedAt)
			s.NotNil(f.ProcessingDurationSeconds)
		}
		totalEntities += f.EntitiesExtracted

		if filepath.Base(f.Path) == "main.go" {
			// main and greet.
			s.Equal(2, f.EntitiesExtracted)
		}
	}

	// Every extracted entity landed as one search document.
	s.Equal(totalEntities, s.documentCount(root))
}

func (s *JobLifecycleTestSuite) TestFullRun_WritesSnapshot() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	id := s.submit(map[string]any{"repository_root": root})
	s.waitForJob(id)

	resp := s.client.GET("/jobs/snapshots?repository_root=" + root)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var list indexjobs.ListSnapshotsResponse
	s.Require().NoError(resp.JSON(&list))
	s.Require().Len(list.Snapshots, 1)

	snap := list.Snapshots[0]
	s.Equal(id, snap.JobID.String())
	s.Equal(root, snap.RepositoryRoot)
	s.Equal(6, snap.TotalFiles)
	s.Equal(5, snap.ProcessedFiles)
	s.Equal(0, snap.FailedFiles)
	s.Equal(1, snap.SkippedFiles)
	s.NotNil(snap.DurationSeconds)
	s.NotNil(snap.AvgEntitiesPerFile)
	s.Equal(indexjobs.LanguageCounts{
		"go":         2,
		"python":     1,
		"javascript": 1,
		"markdown":   1,
		"other":      1,
	}, snap.LanguageDistribution)
}

// =============================================================================
// Test: Re-runs, incremental jobs and force reindex
// =============================================================================

func (s *JobLifecycleTestSuite) TestSecondRun_SkipsUnchangedReprocessesModified() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	first := s.submit(map[string]any{"repository_root": root})
	s.waitForJob(first)
	docsBefore := s.documentCount(root)

	// Touch one file; everything else is byte-identical.
	changed := filepath.Join(root, "cmd", "app", "main.go")
	s.Require().NoError(os.WriteFile(changed, []byte(
		"package main\n\nfunc main() {\n\tprintln(\"changed\")\n}\n"), 0o644))

	second := s.submit(map[string]any{"repository_root": root})
	job := s.waitForJob(second)

	s.Equal(indexjobs.StatusCompleted, job.Status)
	s.Equal(6, job.TotalFiles)
	s.Equal(1, job.ProcessedFiles)
	s.Equal(5, job.SkippedFiles)

	reasons := map[string]int{}
	for _, f := range s.listFiles(second) {
		if f.SkipReason != nil {
			reasons[*f.SkipReason]++
		}
		if f.Path == changed {
			s.Equal(indexjobs.FileStatusCompleted, f.Status)
		}
	}
	s.Equal(4, reasons[indexjobs.SkipReasonContentUnchanged])
	s.Equal(1, reasons[indexjobs.SkipReasonNoParser])

	// The changed file's old documents stay keyed by content, the new main
	// lands alongside; the index only ever grows or overwrites.
	s.GreaterOrEqual(s.documentCount(root), docsBefore)
}

func (s *JobLifecycleTestSuite) TestIncrementalRun_PicksUpNewFilesOnly() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	first := s.submit(map[string]any{"repository_root": root})
	s.waitForJob(first)

	s.Require().NoError(os.WriteFile(filepath.Join(root, "NOTES.md"), []byte(
		"# Notes\n\nFresh file added after the first run.\n"), 0o644))

	second := s.submit(map[string]any{"repository_root": root, "type": "INCREMENTAL"})
	job := s.waitForJob(second)

	s.Equal(indexjobs.StatusCompleted, job.Status)
	// Completed paths are omitted from discovery entirely; only the new
	// markdown file and the parserless yaml remain.
	s.Equal(2, job.TotalFiles)
	s.Equal(1, job.ProcessedFiles)
	s.Equal(1, job.SkippedFiles)

	for _, f := range s.listFiles(second) {
		if filepath.Base(f.Path) == "NOTES.md" {
			s.Equal(indexjobs.FileStatusCompleted, f.Status)
			s.Greater(f.EntitiesExtracted, 0)
		}
	}
}

func (s *JobLifecycleTestSuite) TestForceReindex_ReprocessesUnchangedFiles() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	first := s.submit(map[string]any{"repository_root": root})
	s.waitForJob(first)

	second := s.submit(map[string]any{"repository_root": root, "force_reindex": true})
	job := s.waitForJob(second)

	s.Equal(indexjobs.StatusCompleted, job.Status)
	s.Equal(6, job.TotalFiles)
	s.Equal(5, job.ProcessedFiles, "force bypasses the unchanged-content skip")
	s.Equal(1, job.SkippedFiles)
}

func (s *JobLifecycleTestSuite) TestSelectiveRun_HonorsPatterns() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	id := s.submit(map[string]any{
		"repository_root":  root,
		"type":             "SELECTIVE",
		"include_patterns": []string{"**/*.go"},
		"exclude_patterns": []string{"internal/**"},
	})
	job := s.waitForJob(id)

	s.Equal(indexjobs.StatusCompleted, job.Status)
	s.Equal(1, job.TotalFiles)
	s.Equal(1, job.ProcessedFiles)

	files := s.listFiles(id)
	s.Require().Len(files, 1)
	s.Equal(filepath.Join(root, "cmd", "app", "main.go"), files[0].Path)
}

// =============================================================================
// Test: Event stream and post-run admin stats
// =============================================================================

func (s *JobLifecycleTestSuite) TestEventStream_FinishedJob() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	id := s.submit(map[string]any{"repository_root": root})
	s.waitForJob(id)

	resp := s.server.GetSSE("/jobs/" + id + "/events")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(testutil.IsSSEContentType(resp.ContentType), "got %q", resp.ContentType)

	s.Require().True(resp.HasEvent("progress"), "raw body: %s", resp.RawBody)
	progress := resp.GetEventsByType("progress")[0]
	var prog map[string]any
	s.Require().NoError(progress.ParseSSEJSON(&prog))
	s.Equal(id, prog["job_id"])
	s.Equal(float64(6), prog["total_files"])

	last := resp.GetLastEvent()
	s.Require().NotNil(last)
	s.Equal("done", last.Event)
	var done map[string]any
	s.Require().NoError(last.ParseSSEJSON(&done))
	s.Equal(indexjobs.StatusCompleted, done["status"])
}

func (s *JobLifecycleTestSuite) TestAdminStats_AfterRun() {
	root := testutil.WriteSourceTree(s.T(), testutil.SampleRepo())

	id := s.submit(map[string]any{"repository_root": root})
	s.waitForJob(id)

	// The queue row closes just after the job row turns terminal; give the
	// worker a moment to settle its claim.
	var stats monitoring.StatsResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := s.client.GET("/admin/stats")
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Require().NoError(resp.JSON(&stats))
		if stats.Queue != nil && stats.Queue.Completed > 0 {
			break
		}
		if time.Now().After(deadline) {
			s.T().Fatalf("queue claim never closed: %+v", stats.Queue)
		}
		time.Sleep(100 * time.Millisecond)
	}

	s.Require().NotNil(stats.Jobs)
	s.Equal(int64(1), stats.Jobs.Completed)
	s.Equal(int64(0), stats.Jobs.Running)
	s.Equal(int64(0), stats.Jobs.UnresolvedDeadLetters)

	s.Require().NotNil(stats.Queue)
	s.Equal(int64(1), stats.Queue.Completed)
	s.Equal(int64(0), stats.Queue.Pending)

	s.Require().NotNil(stats.Index)
	s.Greater(stats.Index.Documents, int64(0))
	s.Equal(int64(1), stats.Index.Repositories)
	s.Equal(int64(0), stats.Index.WithEmbeddings)

	s.False(stats.Embeddings.Enabled)
	s.Equal("disabled", stats.Cache.HotTier)
	s.NotEmpty(stats.Languages)
}
