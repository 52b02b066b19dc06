package main

import (
	"github.com/spf13/cobra"
)

// buildPipelineCmd creates the "pipeline" command group.
func buildPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run Pipeline Runner graphs",
	}
	cmd.AddCommand(buildPipelineRunCmd())
	return cmd
}

// buildPipelineRunCmd creates the "pipeline run" command that drives a
// DOT graph through the Pipeline Runner to a terminal node.
func buildPipelineRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run <graph.dot>",
		Short: "Run a DOT pipeline graph to completion",
		Long: `Parse the given DOT graph, validate it, and walk it node by node
through the Pipeline Runner: Codergen stages hand off to a Session
Engine instance, Tool stages dispatch through the same Tool Registry a
session would use, Wait-Human stages prompt on the terminal, and
Parallel/Conditional stages route per the graph's attributes.`,
		Example: `  forge pipeline run --config forge.yaml graph.dot`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: forge.yaml)")
	return cmd
}
