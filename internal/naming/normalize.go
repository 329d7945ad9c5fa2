// Package naming converts provider-supplied secret labels into valid
// environment variable names.
package naming

import "strings"

// Normalize converts a secret label into an environment variable name:
// the prefix is prepended, spaces and hyphens become underscores, any
// remaining character outside [A-Za-z0-9_] is stripped, and the result
// is upper-cased. The output always matches ^[A-Z_][A-Z0-9_]*$ for
// non-empty input; a label that normalizes to a leading digit gains a
// leading underscore.
//
// Normalize is deterministic and pure. Two distinct labels that
// normalize to the same name are a configuration error on the provider
// side, not something this function resolves.
func Normalize(prefix, label string) string {
	return normalize(prefix, label, true)
}

// NormalizeKeepCase is Normalize without the upper-casing step, for
// providers whose uppercase toggle is off. Character stripping and the
// leading-digit rule still apply, so the result is always a valid
// environment variable name.
func NormalizeKeepCase(prefix, label string) string {
	return normalize(prefix, label, false)
}

func normalize(prefix, label string, upper bool) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(label) + 1)

	write := func(s string) {
		for _, r := range s {
			switch {
			case r == ' ' || r == '-':
				b.WriteByte('_')
			case r >= 'a' && r <= 'z':
				if upper {
					b.WriteByte(byte(r - 'a' + 'A'))
				} else {
					b.WriteByte(byte(r))
				}
			case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_':
				b.WriteByte(byte(r))
			}
		}
	}

	write(prefix)
	write(label)

	out := b.String()
	if out == "" {
		return out
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
