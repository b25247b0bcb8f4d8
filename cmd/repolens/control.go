package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/repolens/repolens/domain/indexjobs"
)

// runControl executes pause, resume and cancel, which share a wire shape.
func runControl(action string, args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: repolens %s <job-id>\n", action)
	}

	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	client := newAPIClient(globals.Server)
	if err := client.Control(fs.Arg(0), action); err != nil {
		fatal("%v", err)
	}

	if globals.JSON {
		out, _ := json.Marshal(indexjobs.ControlResponse{OK: true})
		fmt.Println(string(out))
		return
	}

	switch action {
	case "pause":
		fmt.Println("Pause requested; the job stops at its next chunk boundary.")
	case "resume":
		successColor.Println("Job resumed from its checkpoint.")
	case "cancel":
		fmt.Println("Job cancelled.")
	}
}
