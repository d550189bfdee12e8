// Package logsanitize cleans untrusted values before they reach structured
// logs. The callback listener logs pieces of attacker-reachable input
// (request paths, error query parameters), which must not be able to forge
// log records or flood them.
package logsanitize

import "strings"

// maxFieldLen caps logged field values; callback parameters have no
// server-enforced length.
const maxFieldLen = 256

// Sanitize removes control characters from a log field value to reduce the
// risk of log injection (CWE-117), and truncates it to a bounded length.
//
// Stripped ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	if len(s) > maxFieldLen {
		s = s[:maxFieldLen]
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)
}
