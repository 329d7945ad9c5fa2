// Package opref implements the 1Password reference convention: any
// environment variable named OP_<NAME>_REF declares that <NAME> should
// be populated from the op:// reference it holds, and OP_<NAME>_FILE_REF
// declares that the fetched content goes to a tmpfs file whose path is
// exported as <NAME>.
//
// The pass runs on every container start, not only first boot, because
// restarted workloads need their variables re-populated. Resolution is
// best-effort: a failed lookup is skipped with a warning, never fatal,
// and a target variable that is already set is left untouched.
package opref

import (
	"context"
	"sort"
	"strings"

	"github.com/systmms/secretboot/internal/envsink"
	"github.com/systmms/secretboot/internal/logging"
	sbexec "github.com/systmms/secretboot/pkg/exec"
)

const (
	refPrefix     = "OP_"
	refSuffix     = "_REF"
	fileRefSuffix = "_FILE_REF"
)

// Binding is one declared mapping from a convention variable to its
// target.
type Binding struct {
	// Target is the variable to export, e.g. GITHUB_TOKEN for
	// OP_GITHUB_TOKEN_REF.
	Target string

	// Reference is the op:// secret reference.
	Reference string

	// File marks a _FILE_REF binding: the fetched content is written to
	// a tmpfs file and Target is exported as the file path.
	File bool
}

// Scan extracts the convention bindings from an environment listing, as
// produced by os.Environ. It is a pure transformation: no lookups, no
// ordering dependence on the input. Bindings come back sorted by target
// name so the apply pass is deterministic.
func Scan(environ []string) []Binding {
	var bindings []Binding
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" {
			continue
		}
		if !strings.HasPrefix(key, refPrefix) {
			continue
		}
		if !strings.HasPrefix(value, "op://") {
			continue
		}

		// _FILE_REF must be checked first; its names also end in _REF.
		if strings.HasSuffix(key, fileRefSuffix) {
			target := key[len(refPrefix) : len(key)-len(fileRefSuffix)]
			if target != "" {
				bindings = append(bindings, Binding{Target: target, Reference: value, File: true})
			}
			continue
		}
		if strings.HasSuffix(key, refSuffix) {
			target := key[len(refPrefix) : len(key)-len(refSuffix)]
			if target != "" {
				bindings = append(bindings, Binding{Target: target, Reference: value})
			}
		}
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Target < bindings[j].Target })
	return bindings
}

// Resolver applies scanned bindings through the op CLI.
type Resolver struct {
	executor sbexec.CommandExecutor
	sink     envsink.Sink
	files    *envsink.FileWriter
	logger   *logging.Logger
}

// NewResolver creates a resolver. Pass a fake executor in tests; nil
// selects the real CLI.
func NewResolver(executor sbexec.CommandExecutor, sink envsink.Sink, files *envsink.FileWriter, logger *logging.Logger) *Resolver {
	if executor == nil {
		executor = sbexec.Default()
	}
	return &Resolver{executor: executor, sink: sink, files: files, logger: logger}
}

// Apply resolves each binding and exports its target, skipping targets
// that are already set. Returns the number of variables exported.
// Failures are logged and skipped; Apply never returns an error.
func (r *Resolver) Apply(ctx context.Context, bindings []Binding) int {
	exported := 0
	for _, b := range bindings {
		if _, set := r.sink.Lookup(b.Target); set {
			r.logger.Debug("opref: %s already set, skipping", b.Target)
			continue
		}

		stdout, stderr, err := r.executor.Execute(ctx, nil, "op", "read", "-n", b.Reference)
		if err != nil {
			r.logger.Warn("opref: could not resolve %s: %s", b.Target, strings.TrimSpace(string(stderr)))
			continue
		}
		value := strings.TrimRight(string(stdout), "\n")

		if b.File {
			path, err := r.files.Write(b.Target, value)
			if err != nil {
				r.logger.Warn("opref: could not write file for %s: %v", b.Target, err)
				continue
			}
			if _, err := r.sink.Set(b.Target, path, false); err != nil {
				r.logger.Warn("opref: could not export %s: %v", b.Target, err)
				continue
			}
			r.logger.Info("opref: %s -> %s", b.Target, path)
			exported++
			continue
		}

		if _, err := r.sink.Set(b.Target, value, false); err != nil {
			r.logger.Warn("opref: could not export %s: %v", b.Target, err)
			continue
		}
		r.logger.Info("opref: exported %s", b.Target)
		exported++
	}
	return exported
}
