package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/domain/monitoring"
)

// apiClient is a thin JSON client for the server's control surface.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends one request and decodes the success body into out (when non-nil).
// Error responses carry the server's {"error":{"code","message"}} envelope;
// that becomes the returned error text.
func (c *apiClient) do(method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&envelope) == nil && envelope.Error.Code != "" {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) CreateJob(req *indexjobs.CreateJobRequest) (string, error) {
	var resp indexjobs.CreateJobResponse
	if err := c.do(http.MethodPost, "/jobs", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func (c *apiClient) GetJob(id string) (*indexjobs.JobResponse, error) {
	var job indexjobs.JobResponse
	if err := c.do(http.MethodGet, "/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) ListJobs(limit int) ([]*indexjobs.JobResponse, error) {
	path := "/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp indexjobs.ListJobsResponse
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Control issues a pause, resume or cancel request.
func (c *apiClient) Control(id, action string) error {
	return c.do(http.MethodPost, "/jobs/"+id+"/"+action, nil, nil)
}

func (c *apiClient) ListFiles(id, status string, limit int) ([]*indexjobs.FileStateResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/jobs/" + id + "/files"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp indexjobs.ListFilesResponse
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *apiClient) ListSnapshots(root string, limit int) ([]*indexjobs.Snapshot, error) {
	q := url.Values{}
	if root != "" {
		q.Set("repository_root", root)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/jobs/snapshots"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp indexjobs.ListSnapshotsResponse
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

func (c *apiClient) Stats() (*monitoring.StatsResponse, error) {
	var stats monitoring.StatsResponse
	if err := c.do(http.MethodGet, "/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
