// Package shared provides common utility functions used across multiple
// packages in the vorpal codebase.
package shared

import "strings"

// BindingName turns a package name into the script variable it is bound
// to: every character outside [A-Za-z0-9_] becomes an underscore, so
// "rust-std" is exposed as $rust_std.
func BindingName(value string) string {
	trimmed := strings.TrimSpace(value)
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
