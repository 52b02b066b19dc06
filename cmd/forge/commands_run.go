package main

import (
	"strings"

	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command that submits one input to a
// fresh Session Engine instance.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "run [input...]",
		Short: "Submit one input to a fresh session",
		Long: `Start a Session Engine instance, submit the given input, drive the
round loop to completion, and print the assistant's final reply.`,
		Example: `  # Ask a one-off question
  forge run "summarize internal/session/engine.go"

  # Pick a non-default provider/model
  forge run --provider openai --model gpt-4o "review this diff"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInput(cmd.Context(), configPath, provider, model, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: forge.yaml)")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider override (default: session.default_provider)")
	cmd.Flags().StringVar(&model, "model", "", "Model override (default: session.default_model)")

	return cmd
}
