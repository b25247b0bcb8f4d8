package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/repolens/repolens/domain/indexjobs"
)

// runSnapshots executes the 'snapshots' command: summaries of finished runs.
func runSnapshots(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	root := fs.String("root", "", "Only snapshots for this repository root")
	limit := fs.Int("limit", 20, "Maximum number of snapshots to show")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: repolens snapshots [--root /srv/checkout] [--limit N] [--json]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)

	client := newAPIClient(globals.Server)
	snaps, err := client.ListSnapshots(*root, *limit)
	if err != nil {
		fatal("%v", err)
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(indexjobs.ListSnapshotsResponse{Snapshots: snaps}, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(snaps) == 0 {
		fmt.Println("No snapshots yet; one is written each time a job completes.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tREPOSITORY\tFILES\tFAILED\tSUCCESS\tDURATION\tCREATED")
	for _, s := range snaps {
		success := "-"
		if s.SuccessRate != nil {
			success = fmt.Sprintf("%.1f%%", *s.SuccessRate*100)
		}
		duration := "-"
		if s.DurationSeconds != nil {
			duration = fmt.Sprintf("%.1fs", *s.DurationSeconds)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			s.JobID, s.RepositoryRoot, s.TotalFiles, s.FailedFiles,
			success, duration,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
