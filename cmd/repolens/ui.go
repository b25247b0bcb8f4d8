package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/repolens/repolens/domain/indexjobs"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
)

func initColors(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

func header(text string) {
	headerColor.Println(text)
	fmt.Println()
}

func label(text string) string {
	return labelColor.Sprint(text)
}

func dim(text string) string {
	return dimColor.Sprint(text)
}

// statusText colors a job or file status for terminal output.
func statusText(status string) string {
	switch status {
	case indexjobs.StatusCompleted:
		return successColor.Sprint(status)
	case indexjobs.StatusFailed, indexjobs.StatusCancelled:
		return errorColor.Sprint(status)
	case indexjobs.StatusRunning, indexjobs.FileStatusProcessing:
		return headerColor.Sprint(status)
	case indexjobs.StatusPaused, indexjobs.StatusPending:
		return warnColor.Sprint(status)
	case indexjobs.FileStatusSkipped:
		return dimColor.Sprint(status)
	default:
		return status
	}
}
