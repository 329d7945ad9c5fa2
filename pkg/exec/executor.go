// Package exec provides an injectable abstraction for running external
// CLI tools, so provider adapters that shell out (the 1Password `op`
// binary) can be tested without the real tool installed.
package exec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
)

// CommandExecutor runs a command and returns its stdout, stderr, and
// error. Implementations must not echo the command line anywhere a
// secret-bearing argument could leak.
type CommandExecutor interface {
	Execute(ctx context.Context, env []string, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor is the production implementation backed by
// os/exec. The child environment is the current process environment,
// scrubbed of shell-tracing variables, merged with the extra env entries.
type RealCommandExecutor struct{}

// Execute runs the command. Extra env entries take the usual
// last-wins precedence over inherited ones.
func (r *RealCommandExecutor) Execute(ctx context.Context, env []string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(scrubTracing(os.Environ()), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// scrubTracing removes variables that cause child shells to echo
// commands (and therefore any secret material in them) to stderr.
func scrubTracing(environ []string) []string {
	out := environ[:0:0]
	for _, entry := range environ {
		key, _, _ := strings.Cut(entry, "=")
		switch key {
		case "PS4", "SHELLOPTS", "BASH_XTRACEFD":
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Default returns the standard production executor.
func Default() CommandExecutor {
	return &RealCommandExecutor{}
}
