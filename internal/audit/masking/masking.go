package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose values identify a payment instrument.
var SensitiveKeys = []string{"cheque_no", "transaction_id"}

// MaskSecret redacts a value while keeping the last four characters so a
// cashier can still match it against the paper trail.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of metadata with the string values under keys
// masked. Nested maps are walked.
func MaskFields(metadata map[string]any, keys ...string) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[key] = struct{}{}
	}
	return maskMap(metadata, sensitive)
}

func maskMap(input map[string]any, sensitive map[string]struct{}) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		switch cast := value.(type) {
		case string:
			if _, ok := sensitive[trimmedKey]; ok {
				out[trimmedKey] = MaskSecret(cast)
				continue
			}
			out[trimmedKey] = cast
		case map[string]any:
			out[trimmedKey] = maskMap(cast, sensitive)
		default:
			out[trimmedKey] = value
		}
	}
	return out
}
