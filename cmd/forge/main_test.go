package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "pipeline", "serve"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildPipelineCmdIncludesRun(t *testing.T) {
	cmd := buildPipelineCmd()
	for _, sub := range cmd.Commands() {
		if sub.Name() == "run" {
			return
		}
	}
	t.Fatal("expected pipeline run subcommand to be registered")
}
