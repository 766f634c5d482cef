// Package redact keeps taxpayer identifiers out of responses, logs and audit rows.
package redact

import "strings"

const maskToken = "****"

// LastFour returns the last four characters of value, or all of it when shorter.
func LastFour(value string) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= 4 {
		return string(runes)
	}
	return string(runes[len(runes)-4:])
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

var piiKeys = map[string]struct{}{
	"ssn":           {},
	"tin":           {},
	"taxpayer_id":   {},
	"first_name":    {},
	"last_name":     {},
	"full_name":     {},
	"taxpayer_name": {},
}

// StripPII returns a copy of value with taxpayer identity keys removed at any depth.
func StripPII(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(cast))
		for key, item := range cast {
			if _, drop := piiKeys[strings.ToLower(strings.TrimSpace(key))]; drop {
				continue
			}
			out[key] = StripPII(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, StripPII(item))
		}
		return out
	default:
		return value
	}
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
