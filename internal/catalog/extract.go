package catalog

import (
	"fmt"
	"strconv"
)

// ExtractURL walks decoded JSON along a dot-separated path and returns the
// string value at the end. Numeric segments index into arrays, the rest into
// objects, e.g. "images.0.url" or "video.url".
func ExtractURL(doc any, dotPath string) (string, error) {
	current := doc
	start := 0
	for start <= len(dotPath) {
		end := start
		for end < len(dotPath) && dotPath[end] != '.' {
			end++
		}
		segment := dotPath[start:end]
		start = end + 1

		if idx, err := strconv.Atoi(segment); err == nil {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return "", fmt.Errorf("array index %d not found in path %q", idx, dotPath)
			}
			current = arr[idx]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("key %q not found in path %q", segment, dotPath)
		}
		current, ok = obj[segment]
		if !ok {
			return "", fmt.Errorf("key %q not found in path %q", segment, dotPath)
		}
	}

	s, ok := current.(string)
	if !ok {
		return "", fmt.Errorf("value at path %q is not a string", dotPath)
	}
	return s, nil
}
