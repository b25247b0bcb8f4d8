package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/repolens/repolens/domain/indexjobs"
)

// jobFile is the YAML shape of a job submission file.
type jobFile struct {
	RepositoryRoot  string   `yaml:"repository_root"`
	Type            string   `yaml:"type"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	ForceReindex    bool     `yaml:"force_reindex"`
}

// runSubmit executes the 'submit' command. The job spec comes from a YAML
// file, from flags, or both; a flag set explicitly wins over the file.
func runSubmit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	root := fs.String("root", "", "Repository root to index")
	jobType := fs.String("type", "full", "Job type: full, incremental or selective")
	include := fs.StringSlice("include", nil, "Include glob pattern (repeatable)")
	exclude := fs.StringSlice("exclude", nil, "Exclude glob pattern (repeatable)")
	force := fs.Bool("force", false, "Re-index files even when their content is unchanged")
	watch := fs.BoolP("watch", "w", false, "Follow the job's progress after submitting")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repolens submit [job.yaml] [options]

Description:
  Submit an indexing job to the server. The job specification can come
  from a YAML file, from flags, or both; a flag given explicitly takes
  precedence over the file.

  Job file format:

    repository_root: /srv/checkouts/myrepo
    type: full                 # full | incremental | selective
    include_patterns:
      - "**/*.go"
    exclude_patterns:
      - "vendor/**"
    force_reindex: false

Options:
`)
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)

	req := &indexjobs.CreateJobRequest{}
	if fs.NArg() > 0 {
		jf, err := loadJobFile(fs.Arg(0))
		if err != nil {
			fatal("%v", err)
		}
		req.RepositoryRoot = jf.RepositoryRoot
		req.Type = jf.Type
		req.IncludePatterns = jf.IncludePatterns
		req.ExcludePatterns = jf.ExcludePatterns
		req.ForceReindex = jf.ForceReindex
	}

	if fs.Changed("root") || req.RepositoryRoot == "" {
		req.RepositoryRoot = *root
	}
	if fs.Changed("type") || req.Type == "" {
		req.Type = *jobType
	}
	if fs.Changed("include") {
		req.IncludePatterns = *include
	}
	if fs.Changed("exclude") {
		req.ExcludePatterns = *exclude
	}
	if fs.Changed("force") {
		req.ForceReindex = *force
	}
	req.Type = strings.ToUpper(req.Type)

	if req.RepositoryRoot == "" {
		fatal("repository root required: pass a job file or --root")
	}
	// The server resolves paths on its own filesystem; make relative roots
	// unambiguous before they leave this machine.
	if abs, err := filepath.Abs(req.RepositoryRoot); err == nil {
		req.RepositoryRoot = abs
	}

	client := newAPIClient(globals.Server)
	jobID, err := client.CreateJob(req)
	if err != nil {
		fatal("submit failed: %v", err)
	}

	if globals.JSON {
		out, _ := json.Marshal(indexjobs.CreateJobResponse{JobID: jobID})
		fmt.Println(string(out))
	} else {
		successColor.Printf("Job submitted: %s\n", jobID)
		if !*watch && !globals.Quiet {
			fmt.Printf("Follow it with: repolens watch %s\n", jobID)
		}
	}

	if *watch {
		watchJob(client, jobID, time.Second, globals)
	}
}

func loadJobFile(path string) (*jobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read job file: %w", err)
	}
	jf := &jobFile{}
	if err := yaml.Unmarshal(data, jf); err != nil {
		return nil, fmt.Errorf("cannot parse job file %s: %w", path, err)
	}
	return jf, nil
}
