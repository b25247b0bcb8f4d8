package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// runStats executes the 'stats' command: queue, cache and index statistics.
func runStats(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: repolens stats [--json]\n")
	}

	_ = fs.Parse(args)

	client := newAPIClient(globals.Server)
	stats, err := client.Stats()
	if err != nil {
		fatal("%v", err)
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
		return
	}

	if stats.Jobs != nil {
		headerColor.Println("Jobs")
		fmt.Printf("  Pending:    %d\n", stats.Jobs.Pending)
		fmt.Printf("  Running:    %d\n", stats.Jobs.Running)
		fmt.Printf("  Paused:     %d\n", stats.Jobs.Paused)
		fmt.Printf("  Completed:  %d\n", stats.Jobs.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Jobs.Failed)
		fmt.Printf("  Cancelled:  %d\n", stats.Jobs.Cancelled)
		if stats.Jobs.UnresolvedDeadLetters > 0 {
			warnColor.Printf("  Unresolved dead letters: %d\n", stats.Jobs.UnresolvedDeadLetters)
		}
		fmt.Println()
	}

	if stats.Queue != nil {
		headerColor.Println("Queue")
		fmt.Printf("  Pending:     %d\n", stats.Queue.Pending)
		fmt.Printf("  Processing:  %d\n", stats.Queue.Processing)
		fmt.Printf("  Completed:   %d\n", stats.Queue.Completed)
		fmt.Printf("  Failed:      %d\n", stats.Queue.Failed)
		fmt.Printf("  Dead letter: %d\n", stats.Queue.DeadLetter)
		fmt.Println()
	}

	headerColor.Println("Embedding cache")
	fmt.Printf("  Hot tier:     %s\n", stats.Cache.HotTier)
	fmt.Printf("  Cold entries: %d\n", stats.Cache.EntriesCold)
	fmt.Printf("  Hits:         %d\n", stats.Cache.Hits)
	fmt.Printf("  Misses:       %d\n", stats.Cache.Misses)
	if stats.Cache.HitRate != nil {
		fmt.Printf("  Hit rate:     %.1f%%\n", *stats.Cache.HitRate*100)
	}
	fmt.Println()

	headerColor.Println("Embeddings")
	if stats.Embeddings.Enabled {
		fmt.Printf("  Model:    %s\n", stats.Embeddings.Model)
		fmt.Printf("  Breaker:  %s\n", stats.Embeddings.Breaker)
	} else {
		fmt.Println("  " + dim("disabled"))
	}
	fmt.Println()

	if stats.Index != nil {
		headerColor.Println("Index")
		fmt.Printf("  Documents:       %d\n", stats.Index.Documents)
		fmt.Printf("  Repositories:    %d\n", stats.Index.Repositories)
		fmt.Printf("  With embeddings: %d\n", stats.Index.WithEmbeddings)
	}

	if len(stats.Languages) > 0 {
		fmt.Println()
		headerColor.Println("Languages")
		for _, lc := range stats.Languages {
			fmt.Printf("  %-12s %d\n", lc.Lang, lc.Count)
		}
	}
}
