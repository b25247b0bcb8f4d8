package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/repolens/repolens/domain/indexjobs"
)

// runList executes the 'list' command: recent jobs, newest first.
func runList(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of jobs to show")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: repolens list [--limit N] [--json]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)

	client := newAPIClient(globals.Server)
	jobs, err := client.ListJobs(*limit)
	if err != nil {
		fatal("%v", err)
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(indexjobs.ListJobsResponse{Jobs: jobs}, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs yet. Submit one with: repolens submit job.yaml")
		return
	}

	// Plain status text here: ANSI escapes would throw off the column widths.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tPROGRESS\tFILES\tREPOSITORY\tCREATED")
	for _, j := range jobs {
		attempted := j.ProcessedFiles + j.FailedFiles + j.SkippedFiles
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%d/%d\t%s\t%s\n",
			j.ID, j.Status, j.Type,
			j.ProgressFraction*100,
			attempted, j.TotalFiles,
			j.RepositoryRoot,
			j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
