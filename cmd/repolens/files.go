package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/repolens/repolens/domain/indexjobs"
)

// runFiles executes the 'files' command: a job's per-file outcomes.
func runFiles(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (pending, processing, completed, failed, skipped)")
	limit := fs.Int("limit", 100, "Maximum number of files to show")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: repolens files <job-id> [--status failed] [--limit N] [--json]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	client := newAPIClient(globals.Server)
	files, err := client.ListFiles(fs.Arg(0), strings.ToUpper(*status), *limit)
	if err != nil {
		fatal("%v", err)
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(indexjobs.ListFilesResponse{Files: files}, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(files) == 0 {
		fmt.Println("No files recorded for this job.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSTATUS\tENTITIES\tEMBEDDINGS\tDETAIL")
	for _, f := range files {
		detail := ""
		switch {
		case f.ErrorKind != nil && f.ErrorMessage != nil:
			detail = *f.ErrorKind + ": " + *f.ErrorMessage
		case f.ErrorKind != nil:
			detail = *f.ErrorKind
		case f.SkipReason != nil:
			detail = *f.SkipReason
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			f.Path, f.Status, f.EntitiesExtracted, f.EmbeddingsGenerated, detail)
	}
	w.Flush()
}
