package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/forgehq/forge/internal/env"
	"github.com/forgehq/forge/internal/tooling"
)

// runCommandSchema is the JSON Schema for the run_command tool's
// arguments.
var runCommandSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {"type": "string"},
		"args": {"type": "array", "items": {"type": "string"}},
		"working_dir": {"type": "string"}
	},
	"required": ["command"]
}`)

type runCommandArgs struct {
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	WorkingDir string   `json:"working_dir"`
}

// newRunCommandTool wraps an ExecutionEnvironment as the run_command
// tool, the reference shell-command tool a bare Forge deployment
// offers the Session Engine.
func newRunCommandTool(environment env.ExecutionEnvironment, defaultTimeout time.Duration) tooling.Tool {
	return tooling.NewFuncTool("run_command", "Run a shell command in the workspace.", runCommandSchema,
		func(ctx context.Context, raw json.RawMessage) (tooling.Result, error) {
			var args runCommandArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return tooling.Result{Content: err.Error(), IsError: true}, nil
			}
			res, err := environment.Run(ctx, args.Command, args.Args, args.WorkingDir, defaultTimeout)
			if err != nil {
				return tooling.Result{Content: err.Error(), IsError: true}, nil
			}
			content := res.Stdout
			if res.Stderr != "" {
				content += "\n--- stderr ---\n" + res.Stderr
			}
			return tooling.Result{Content: content, IsError: res.ExitCode != 0}, nil
		})
}
