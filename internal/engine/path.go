package engine

import (
	"strings"
)

// Join builds a document path from its segments: Join("USERS", "u1") is
// "/USERS/u1".
func Join(segments ...string) string {
	return "/" + strings.Join(segments, "/")
}

// splitPath turns "/A/b" into ["A", "b"]. The root ("/" or "") has no segments.
func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" {
			return nil, ErrInvalidPath
		}
	}
	return parts, nil
}

// deepCopy clones a JSON tree made of maps, slices and scalars.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
