package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/migr8"
)

var (
	flagRules string
	flagWrite bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [path]",
	Short: "Apply a migration rule file to the codebase",
	Long:  "Builds the project graph, matches every JSX usage against the rule file, and rewrites matching usages. Without --write the rewritten output stays in memory and only the manifest is reported.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&flagRules, "rules", "", "migration rule file (JSON, required)")
	migrateCmd.Flags().BoolVar(&flagWrite, "write", false, "write rewritten files back to disk")
	_ = migrateCmd.MarkFlagRequired("rules")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("migrate", err)
	}

	engine, err := newEngine(root)
	if err != nil {
		return outputError("migrate", err)
	}
	defer engine.Close()

	res, err := engine.Migrate(context.Background(), flagRules, migr8.MigrateOptions{Write: flagWrite})
	if err != nil {
		return outputError("migrate", err)
	}

	summary := CLIMigrateSummary{
		Patched:  res.Patched,
		Replaced: res.Replaced,
		Skipped:  res.Skipped,
		DryRun:   !flagWrite,
	}
	for _, fc := range res.Files {
		if fc.Written {
			summary.Written++
		}
	}
	for _, c := range res.Manifest {
		summary.Changes = append(summary.Changes, CLIChange{
			File:      c.File,
			Component: c.Component,
			Line:      c.Line,
			Status:    c.Status.String(),
			Reason:    c.Reason,
		})
	}
	for _, fe := range res.Errors {
		summary.Errors = append(summary.Errors, fe.Error())
	}
	if err := outputResult(CLIResult{Command: "migrate", Results: summary}); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		// The summary already lists each failure; the error sets the exit code.
		return fmt.Errorf("%d files failed", len(res.Errors))
	}
	return nil
}
