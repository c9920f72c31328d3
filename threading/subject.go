package threading

import "strings"

// NormalizeSubject reduces a subject to its threading key: lowercase,
// trimmed, with leading reply/forward tokens and bracketed list tags
// stripped repeatedly until nothing changes. "Re: [List] Fwd: Hello"
// normalizes to "hello".
func NormalizeSubject(subject string) string {
	norm := strings.ToLower(strings.TrimSpace(subject))

	for {
		before := norm

		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			if strings.HasPrefix(norm, prefix) {
				norm = strings.TrimSpace(norm[len(prefix):])
			}
		}

		if strings.HasPrefix(norm, "[") {
			if end := strings.Index(norm, "]"); end >= 0 {
				norm = strings.TrimSpace(norm[end+1:])
			}
		}

		if norm == before {
			break
		}
	}

	return norm
}
