package testutil

import (
	"context"
	"os"

	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun"
)

// BaseSuite provides common test infrastructure. Embed it to get:
//   - An isolated per-suite test database (template-cloned, auto-dropped)
//   - Per-test transaction isolation with rollback (fast cleanup)
//   - A unified HTTP client for in-process or external servers
//
// Environment variables:
//   - TEST_SERVER_URL: external server URL (e.g. "http://localhost:8080").
//     If not set, an in-process server over a fresh test database is used.
//   - POSTGRES_*: connection settings for the test database. Suites skip
//     when Postgres is unreachable, so plain `go test ./...` stays green on
//     machines without one.
//
// Usage:
//
//	type MySuite struct {
//	    testutil.BaseSuite
//	}
//
//	func (s *MySuite) TestSomething() {
//	    resp := s.Client.GET("/jobs")
//	    s.Equal(200, resp.StatusCode)
//	}
type BaseSuite struct {
	suite.Suite
	TestDB *TestDB
	Server *TestServer
	Client *HTTPClient
	Ctx    context.Context

	// dbSuffix is used to create unique database names
	dbSuffix string

	// externalServer indicates if we're using an external server
	externalServer bool
}

// SetDBSuffix sets the database name suffix. Call this in your suite's
// SetupSuite before calling BaseSuite.SetupSuite.
func (s *BaseSuite) SetDBSuffix(suffix string) {
	s.dbSuffix = suffix
}

// SetupSuite creates the test database and server.
// If you override this, call s.BaseSuite.SetupSuite() first.
func (s *BaseSuite) SetupSuite() {
	s.Ctx = context.Background()

	if serverURL := os.Getenv("TEST_SERVER_URL"); serverURL != "" {
		s.T().Logf("Using external server: %s", serverURL)
		s.externalServer = true
		s.Client = NewExternalHTTPClient(serverURL)
		return
	}

	suffix := s.dbSuffix
	if suffix == "" {
		suffix = "test"
	}

	testDB, err := SetupTestDB(s.Ctx, suffix)
	if err != nil {
		s.T().Skipf("postgres unavailable, skipping suite: %v", err)
	}
	s.TestDB = testDB

	s.Server = NewTestServer(testDB)
	s.Client = NewHTTPClient(s.Server.Echo)
}

// TearDownSuite closes the test database.
// If you override this, call s.BaseSuite.TearDownSuite() at the end.
func (s *BaseSuite) TearDownSuite() {
	if s.TestDB != nil {
		s.TestDB.Close()
	}
}

// SetupTest starts a transaction and rebuilds the server over it. All
// changes within a test are rolled back in TearDownTest.
// If you override this, call s.BaseSuite.SetupTest() first.
func (s *BaseSuite) SetupTest() {
	if s.externalServer {
		return
	}

	err := s.TestDB.BeginTestTx(s.Ctx)
	s.Require().NoError(err, "Failed to begin test transaction")

	s.Server = newTestServerWithDB(s.TestDB, s.TestDB.GetDB())
	s.Client = NewHTTPClient(s.Server.Echo)
}

// TearDownTest rolls back the transaction, discarding all test changes.
// This is much faster than TRUNCATE.
func (s *BaseSuite) TearDownTest() {
	if s.externalServer {
		return
	}
	_ = s.TestDB.RollbackTestTx()
}

// DB returns the current database connection (transaction if active,
// otherwise base DB). Returns nil if using an external server.
func (s *BaseSuite) DB() bun.IDB {
	if s.externalServer {
		return nil
	}
	return s.TestDB.GetDB()
}

// IsExternal returns true if using an external server
func (s *BaseSuite) IsExternal() bool {
	return s.externalServer
}

// SkipIfExternalServer skips the test if running against an external server.
// Use this for tests that seed rows directly or read internal state.
func (s *BaseSuite) SkipIfExternalServer(reason string) {
	if s.externalServer {
		s.T().Skipf("Skipping in external server mode: %s", reason)
	}
}

// IsExternalServerMode returns true if TEST_SERVER_URL is set, indicating
// tests should run against an external server rather than in-process.
func IsExternalServerMode() bool {
	return os.Getenv("TEST_SERVER_URL") != ""
}
