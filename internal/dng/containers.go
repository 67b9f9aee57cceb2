package dng

import (
	"encoding/json"
	"fmt"
)

// Candidate container keys, consulted in order. DNG servers disagree on where
// a list lives, so the first key present in the response wins.
var (
	projectAreaKeys = []string{"project_areas", "items", "members"}
	requirementKeys = []string{"requirements", "items", "members"}
)

// unwrapList returns the list held by the first of keys present in body.
// A present key holding null, or no key at all, yields an empty list.
// A present key holding anything other than an array is an error.
func unwrapList(body map[string]json.RawMessage, keys []string) ([]json.RawMessage, error) {
	for _, key := range keys {
		raw, ok := body[key]
		if !ok {
			continue
		}

		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("container %q is not a list: %w", key, err)
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		return items, nil
	}

	return []json.RawMessage{}, nil
}
