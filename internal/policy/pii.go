package policy

import (
	"encoding/json"
	"regexp"
	"strings"
)

type piiRule struct {
	pattern *regexp.Regexp
	replace func(string) string
}

var piiRules = []piiRule{
	{
		pattern: regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`),
		replace: func(string) string { return "[email]" },
	},
	{
		pattern: regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}\-?\d{2}\b`),
		replace: func(string) string { return "[tax_id]" },
	},
	{
		pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
		replace: maskCardNumber,
	},
	{
		pattern: regexp.MustCompile(`(?:\+?\d[\d()\-\s.]{7,}\d)`),
		replace: func(string) string { return "[phone]" },
	},
}

// MaskPIIString replaces emails, tax ids, card numbers and phone numbers.
func MaskPIIString(value string) string {
	masked := value
	for _, rule := range piiRules {
		masked = rule.pattern.ReplaceAllStringFunc(masked, rule.replace)
	}
	return masked
}

// MaskPIIJSON masks every string leaf of a JSON document. Non-JSON input is
// masked as plain text.
func MaskPIIJSON(payload json.RawMessage) json.RawMessage {
	if strings.TrimSpace(string(payload)) == "" {
		return append(json.RawMessage(nil), payload...)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return json.RawMessage(MaskPIIString(string(payload)))
	}
	encoded, err := json.Marshal(maskValue(decoded))
	if err != nil {
		return append(json.RawMessage(nil), payload...)
	}
	return encoded
}

func maskValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(typed))
		for key, child := range typed {
			cloned[key] = maskValue(child)
		}
		return cloned
	case []any:
		cloned := make([]any, len(typed))
		for index, child := range typed {
			cloned[index] = maskValue(child)
		}
		return cloned
	case string:
		return MaskPIIString(typed)
	default:
		return value
	}
}

func maskCardNumber(value string) string {
	digits := make([]rune, 0, len(value))
	for _, char := range value {
		if char >= '0' && char <= '9' {
			digits = append(digits, char)
		}
	}
	if len(digits) < 8 {
		return "[card]"
	}
	return "[card ****" + string(digits[len(digits)-4:]) + "]"
}
