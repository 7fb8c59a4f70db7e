package provision

import (
	"context"
	"os/exec"
	"strings"
)

// Runner abstracts external tool invocation so reconciliation is testable
// without a railway login.
type Runner interface {
	LookPath(name string) (string, error)
	// Run executes name with args and returns its combined output.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
