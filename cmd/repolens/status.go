package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/repolens/repolens/domain/indexjobs"
)

// runStatus executes the 'status' command: one job in detail.
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: repolens status <job-id> [--json]\n")
	}

	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	client := newAPIClient(globals.Server)
	job, err := client.GetJob(fs.Arg(0))
	if err != nil {
		fatal("%v", err)
	}
	printJobSummary(job, globals)
}

func printJobSummary(job *indexjobs.JobResponse, globals GlobalFlags) {
	if globals.JSON {
		out, _ := json.MarshalIndent(job, "", "  ")
		fmt.Println(string(out))
		return
	}

	header("Job " + job.ID)
	fmt.Printf("%s      %s\n", label("Status:"), statusText(job.Status))
	fmt.Printf("%s        %s\n", label("Type:"), job.Type)
	fmt.Printf("%s  %s\n", label("Repository:"), dim(job.RepositoryRoot))
	fmt.Println()
	fmt.Printf("  Total files:   %d\n", job.TotalFiles)
	fmt.Printf("  Processed:     %d\n", job.ProcessedFiles)
	fmt.Printf("  Failed:        %d\n", job.FailedFiles)
	fmt.Printf("  Skipped:       %d\n", job.SkippedFiles)
	fmt.Printf("  Progress:      %.1f%%\n", job.ProgressFraction*100)
	if job.SuccessRate != nil {
		fmt.Printf("  Success rate:  %.1f%%\n", *job.SuccessRate*100)
	}
	if job.DurationSeconds != nil {
		fmt.Printf("  Duration:      %.1fs\n", *job.DurationSeconds)
	}
	if job.Checkpoint != nil {
		fmt.Printf("  Checkpoint:    file %d of %d (%s)\n",
			job.Checkpoint.Index+1, job.TotalFiles,
			job.Checkpoint.Timestamp.Format(time.RFC3339))
	}
	if job.LastProcessedFile != nil {
		fmt.Printf("  Last file:     %s\n", dim(*job.LastProcessedFile))
	}
	if job.ErrorMessage != nil {
		fmt.Println()
		errorColor.Printf("Error: %s\n", *job.ErrorMessage)
	}
}
