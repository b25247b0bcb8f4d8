// Package main implements the repolens CLI for submitting and controlling
// indexing jobs against a running RepoLens server.
//
// Usage:
//
//	repolens submit [job.yaml]    Submit an indexing job
//	repolens list                 List recent jobs
//	repolens status <job-id>      Show one job in detail
//	repolens watch <job-id>       Follow a job's progress until it finishes
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/repolens/repolens/internal/version"
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	Server string // Base URL of the RepoLens server
	JSON   bool   // Output in JSON format (for applicable commands)
	Quiet  bool   // Suppress non-essential output (progress, info messages)
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		server      = flag.StringP("server", "s", "", "Server base URL (default: $REPOLENS_SERVER or http://localhost:8080)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output (respects NO_COLOR env var)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand flags like "submit --watch" reach the subcommand parser.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `repolens - fault-tolerant repository indexing

Usage:
  repolens <command> [options]

Commands:
  submit      Submit an indexing job (from a YAML file or flags)
  list        List recent jobs
  status      Show one job in detail
  watch       Follow a job's progress until it finishes
  files       List a job's per-file results
  pause       Pause a running job at its next chunk boundary
  resume      Resume a paused job from its checkpoint
  cancel      Cancel a job
  snapshots   List summaries of finished runs
  stats       Show queue, cache and index statistics

Global Options:
  -s, --server      Server base URL (default: $REPOLENS_SERVER or http://localhost:8080)
      --json        Output in JSON format (for applicable commands)
      --no-color    Disable color output (respects NO_COLOR env var)
  -q, --quiet       Suppress non-essential output
  -V, --version     Show version and exit

Examples:
  repolens submit job.yaml --watch
  repolens submit --root /srv/checkout --include '**/*.go' --exclude 'vendor/**'
  repolens list
  repolens status 4e6a7c9e-...
  repolens files 4e6a7c9e-... --status failed
  repolens stats

For detailed command help: repolens <command> --help
`)
	}

	flag.Parse()

	if *showVersion {
		info := version.Info()
		fmt.Printf("repolens version %s\n", info.Version)
		fmt.Printf("commit: %s\n", info.GitCommit)
		fmt.Printf("built: %s\n", info.BuildTime)
		os.Exit(0)
	}

	// Check NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	// JSON mode auto-enables quiet to prevent progress bars corrupting JSON output
	if *jsonOutput {
		*quiet = true
	}

	baseURL := *server
	if baseURL == "" {
		baseURL = os.Getenv("REPOLENS_SERVER")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	globals := GlobalFlags{
		Server: baseURL,
		JSON:   *jsonOutput,
		Quiet:  *quiet,
	}

	initColors(*noColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "submit":
		runSubmit(cmdArgs, globals)
	case "list":
		runList(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "watch":
		runWatch(cmdArgs, globals)
	case "files":
		runFiles(cmdArgs, globals)
	case "pause":
		runControl("pause", cmdArgs, globals)
	case "resume":
		runControl("resume", cmdArgs, globals)
	case "cancel":
		runControl("cancel", cmdArgs, globals)
	case "snapshots":
		runSnapshots(cmdArgs, globals)
	case "stats":
		runStats(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// fatal prints an error and exits. Errors always reach stderr even in quiet
// mode; quiet only mutes progress and informational chatter.
func fatal(format string, args ...any) {
	errorColor.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
