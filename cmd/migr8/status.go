package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the snapshot cache state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("status", err)
	}

	engine, err := newEngine(root)
	if err != nil {
		return outputError("status", err)
	}
	defer engine.Close()

	snap := engine.CurrentSnapshot()
	if snap == nil {
		return outputResult(CLIResult{Command: "status", Results: CLIStatus{Cold: true}})
	}
	return outputResult(CLIResult{Command: "status", Results: CLIStatus{
		SnapshotID:  snap.ID,
		Timestamp:   snap.Timestamp,
		FileCount:   snap.Meta.FileCount,
		DurationMS:  snap.Meta.Duration.Milliseconds(),
		MemoryBytes: snap.Meta.MemoryBytes,
		Updates:     len(engine.UpdateLog()),
	}})
}
