package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/repolens/repolens/domain/indexjobs"
)

// runWatch executes the 'watch' command: poll a job until it stops moving.
func runWatch(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", time.Second, "Poll interval")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repolens watch <job-id> [options]

Description:
  Follow a job's progress with a live progress bar until it completes,
  fails, is cancelled, or pauses. Exits non-zero when the job ends in
  any state other than COMPLETED.

Options:
`)
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	client := newAPIClient(globals.Server)
	watchJob(client, fs.Arg(0), *interval, globals)
}

// watchJob polls one job and renders its progress. Quiet mode skips the bar
// and prints only the final summary.
func watchJob(client *apiClient, id string, interval time.Duration, globals GlobalFlags) {
	var bar *progressbar.ProgressBar

	for {
		job, err := client.GetJob(id)
		if err != nil {
			fatal("%v", err)
		}

		attempted := int64(job.ProcessedFiles + job.FailedFiles + job.SkippedFiles)
		if !globals.Quiet && job.TotalFiles > 0 {
			if bar == nil {
				bar = newProgressBar(int64(job.TotalFiles), "Indexing "+shortID(id))
			}
			_ = bar.Set64(attempted)
		}

		switch job.Status {
		case indexjobs.StatusCompleted, indexjobs.StatusFailed, indexjobs.StatusCancelled:
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
			}
			printJobSummary(job, globals)
			if job.Status != indexjobs.StatusCompleted {
				os.Exit(1)
			}
			return
		case indexjobs.StatusPaused:
			if bar != nil {
				fmt.Fprintln(os.Stderr)
			}
			warnColor.Printf("Job paused at %d/%d files. Resume with: repolens resume %s\n",
				attempted, job.TotalFiles, id)
			return
		}

		time.Sleep(interval)
	}
}

func newProgressBar(total int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer: "=", SaucerHead: ">", SaucerPadding: " ", BarStart: "[", BarEnd: "]",
		}),
	)
}

// shortID trims a UUID for progress-bar labels; full IDs stay in tables so
// they can be copied back into commands.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
