package masking

import "strings"

const maskToken = "****"

var sensitiveKeyParts = []string{"token", "secret", "password", "api_key"}

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

// MaskSensitive returns a copy of metadata with string values under secret-looking keys masked.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if isSensitiveKey(trimmedKey) {
			out[trimmedKey] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[trimmedKey] = MaskSensitive(nested)
			continue
		}
		out[trimmedKey] = value
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case map[string]any:
		masked := make(map[string]any, len(cast))
		for k, v := range cast {
			masked[k] = maskValue(v)
		}
		return masked
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item))
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
