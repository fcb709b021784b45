package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jward/migr8"
)

// CLIResult is the envelope every command marshals in JSON mode.
type CLIResult struct {
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
	Results any    `json:"results,omitempty"`
}

// CLIBuildStats mirrors migr8.BuildStats with JSON-friendly fields.
type CLIBuildStats struct {
	Discovered  int    `json:"discovered"`
	Skipped     int    `json:"skipped"`
	Processed   int    `json:"processed"`
	Imports     int    `json:"imports"`
	JSXUsages   int    `json:"jsxUsages"`
	Incremental bool   `json:"incremental"`
	SnapshotID  string `json:"snapshotId,omitempty"`
	DurationMS  int64  `json:"durationMs"`
	Errors      int    `json:"errors"`
	Warnings    int    `json:"warnings"`
}

// CLIChange is one manifest line of a migration run.
type CLIChange struct {
	File      string `json:"file"`
	Component string `json:"component"`
	Line      uint32 `json:"line"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// CLIMigrateSummary aggregates a migration run for output.
type CLIMigrateSummary struct {
	Patched  int         `json:"patched"`
	Replaced int         `json:"replaced"`
	Skipped  int         `json:"skipped"`
	Written  int         `json:"filesWritten"`
	DryRun   bool        `json:"dryRun"`
	Changes  []CLIChange `json:"changes,omitempty"`
	Errors   []string    `json:"errors,omitempty"`
}

// CLIStatus describes the cache state for the status command.
type CLIStatus struct {
	SnapshotID  string    `json:"snapshotId,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
	FileCount   int       `json:"fileCount"`
	DurationMS  int64     `json:"durationMs"`
	MemoryBytes uint64    `json:"memoryBytes"`
	Updates     int       `json:"pendingUpdates"`
	Cold        bool      `json:"cold"`
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error goes to stdout as a
// CLIResult envelope; in text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{Command: command, Error: err.Error()}
	if encErr := outputResult(result); encErr != nil {
		return encErr
	}
	return err
}

func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)
	switch v := result.Results.(type) {
	case CLIBuildStats:
		formatBuildStatsText(w, v)
	case CLIMigrateSummary:
		formatMigrateText(w, v)
	case CLIStatus:
		formatStatusText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func formatBuildStatsText(w io.Writer, s CLIBuildStats) {
	mode := "full"
	if s.Incremental {
		mode = "incremental"
	}
	fmt.Fprintf(w, "Build (%s): %d files processed, %d skipped of %d discovered\n",
		mode, s.Processed, s.Skipped, s.Discovered)
	fmt.Fprintf(w, "Graph: %d imports, %d JSX usages\n", s.Imports, s.JSXUsages)
	if s.SnapshotID != "" {
		fmt.Fprintf(w, "Snapshot: %s\n", s.SnapshotID)
	}
	if s.Errors > 0 || s.Warnings > 0 {
		fmt.Fprintf(w, "Problems: %d file errors, %d warnings\n", s.Errors, s.Warnings)
	}
	fmt.Fprintf(w, "Completed in %s\n", (time.Duration(s.DurationMS) * time.Millisecond).Round(time.Millisecond))
}

func formatMigrateText(w io.Writer, s CLIMigrateSummary) {
	if len(s.Changes) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tLINE\tCOMPONENT\tSTATUS\tREASON")
		for _, c := range s.Changes {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", c.File, c.Line, c.Component, c.Status, c.Reason)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Migrated: %d patched, %d replaced, %d skipped\n", s.Patched, s.Replaced, s.Skipped)
	if s.DryRun {
		fmt.Fprintln(w, "Dry run: no files written (pass --write to apply)")
	} else {
		fmt.Fprintf(w, "Files written: %d\n", s.Written)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
}

func formatStatusText(w io.Writer, s CLIStatus) {
	if s.Cold {
		fmt.Fprintln(w, "No snapshot: next build will be a full build")
		return
	}
	fmt.Fprintf(w, "Snapshot: %s\n", s.SnapshotID)
	fmt.Fprintf(w, "Created: %s\n", s.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Files: %d\n", s.FileCount)
	fmt.Fprintf(w, "Build time: %s\n", (time.Duration(s.DurationMS) * time.Millisecond).Round(time.Millisecond))
	fmt.Fprintf(w, "Peak heap: %.1f MB\n", float64(s.MemoryBytes)/(1<<20))
	fmt.Fprintf(w, "Pending incremental updates: %d\n", s.Updates)
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

func buildStatsToCLI(res *migr8.BuildResult) CLIBuildStats {
	return CLIBuildStats{
		Discovered:  res.Stats.Discovered,
		Skipped:     res.Stats.Skipped,
		Processed:   res.Stats.Processed,
		Imports:     res.Graph.TotalImports,
		JSXUsages:   res.Graph.TotalJSX,
		Incremental: res.Stats.Incremental,
		SnapshotID:  res.Stats.SnapshotID,
		DurationMS:  res.Stats.Duration.Milliseconds(),
		Errors:      len(res.Errors),
		Warnings:    len(res.Warnings),
	}
}
