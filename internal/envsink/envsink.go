// Package envsink abstracts the process environment table as an explicit
// sink. The skip-if-set versus always-overwrite decision is a parameter
// on Set instead of implicit shell behavior, which also lets tests
// capture exports without touching the real environment.
package envsink

import (
	"os"
	"sort"
)

// Sink receives resolved secrets as environment variables.
type Sink interface {
	// Set exports name=value. When overwrite is false and the variable
	// is already present (even empty), the existing value is kept and
	// Set reports false. Returns true when the value was written.
	Set(name, value string, overwrite bool) (bool, error)

	// Lookup reports the current value of a variable.
	Lookup(name string) (string, bool)
}

// ProcessSink writes to the real process environment. Exported variables
// are inherited by every child process for the container's lifetime.
type ProcessSink struct{}

// NewProcessSink returns the production sink.
func NewProcessSink() *ProcessSink { return &ProcessSink{} }

func (s *ProcessSink) Set(name, value string, overwrite bool) (bool, error) {
	if !overwrite {
		if _, exists := os.LookupEnv(name); exists {
			return false, nil
		}
	}
	if err := os.Setenv(name, value); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ProcessSink) Lookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// MapSink is an in-memory sink for tests.
type MapSink struct {
	Values map[string]string
}

// NewMapSink returns an empty in-memory sink.
func NewMapSink() *MapSink { return &MapSink{Values: make(map[string]string)} }

func (s *MapSink) Set(name, value string, overwrite bool) (bool, error) {
	if !overwrite {
		if _, exists := s.Values[name]; exists {
			return false, nil
		}
	}
	s.Values[name] = value
	return true, nil
}

func (s *MapSink) Lookup(name string) (string, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Names returns the exported variable names in sorted order.
func (s *MapSink) Names() []string {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
