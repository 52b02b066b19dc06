package env

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalExecutionEnvironmentRun(t *testing.T) {
	e := NewLocalExecutionEnvironment()
	res, err := e.Run(context.Background(), "echo", []string{"hello"}, t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Fatalf("Stdout = %q, want it to contain %q", res.Stdout, "hello")
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestLocalExecutionEnvironmentRunRejectsUnsafeCommand(t *testing.T) {
	e := NewLocalExecutionEnvironment()
	_, err := e.Run(context.Background(), "echo hi; rm -rf /", nil, t.TempDir(), time.Second)
	if err == nil {
		t.Fatalf("expected an error for a shell-metacharacter command")
	}
}

func TestScopedExecutionEnvironmentRejectsEscape(t *testing.T) {
	root := t.TempDir()
	inner := NewLocalExecutionEnvironment()
	scoped, err := NewScopedExecutionEnvironment(inner, root, ".")
	if err != nil {
		t.Fatalf("NewScopedExecutionEnvironment() error = %v", err)
	}
	_, err = scoped.Run(context.Background(), "echo", nil, "/", time.Second)
	if err == nil {
		t.Fatalf("expected an error for a working_dir escaping the scoped root")
	}
}
