package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jward/migr8"
)

var flagFull bool

var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Build the project graph",
	Long:  "Discovers JS/TS/JSX files, extracts import and JSX usage facts with tree-sitter, and writes a snapshot to the cache. When a snapshot exists and few files changed, only the delta is re-extracted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&flagFull, "full", false, "ignore the cached snapshot and rebuild from scratch")
}

func runBuild(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("build", err)
	}

	var opts []migr8.Option
	if flagFull {
		opts = append(opts, migr8.WithIncremental(false))
	}
	engine, err := newEngine(root, opts...)
	if err != nil {
		return outputError("build", err)
	}
	defer engine.Close()

	res, err := engine.Build(context.Background())
	if err != nil {
		return outputError("build", err)
	}
	return outputResult(CLIResult{Command: "build", Results: buildStatsToCLI(res)})
}
