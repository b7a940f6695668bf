package secrets

import (
	"fmt"
	"strings"
)

// ParseList parses the action's comma-separated "KEY=VALUE" input into an
// ordered list of entries. Segments are trimmed of surrounding whitespace and
// empty segments are discarded. A segment without an "=" yields an entry with
// an empty value.
//
// Validation is all-or-nothing: if any segment yields an empty key after
// trimming, or the same key appears twice, ParseList returns an error and no
// entries, so callers never make a remote call for a partially valid list.
// Rejecting duplicates keeps each key to at most one new version per run.
func ParseList(raw string) ([]Entry, error) {
	segments := strings.Split(raw, ",")
	entries := make([]Entry, 0, len(segments))
	seen := make(map[string]struct{}, len(segments))

	for i, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		key, value, _ := strings.Cut(segment, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if key == "" {
			return nil, fmt.Errorf("secret pair %d (%q) has an empty key", i+1, segment)
		}
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("secret key %q is declared more than once", key)
		}
		seen[key] = struct{}{}
		entries = append(entries, Entry{Key: key, Value: value})
	}

	return entries, nil
}
