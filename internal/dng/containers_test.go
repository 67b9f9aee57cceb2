package dng

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		keys    []string
		want    []string
		wantErr bool
	}{
		{
			name: "first key",
			body: `{"project_areas": [1, 2]}`,
			keys: projectAreaKeys,
			want: []string{`1`, `2`},
		},
		{
			name: "priority order ignores field order",
			body: `{"members": [3], "items": [2], "project_areas": [1]}`,
			keys: projectAreaKeys,
			want: []string{`1`},
		},
		{
			name: "present empty key still wins",
			body: `{"requirements": [], "items": [1]}`,
			keys: requirementKeys,
			want: []string{},
		},
		{
			name: "present null key yields empty",
			body: `{"requirements": null, "items": [1]}`,
			keys: requirementKeys,
			want: []string{},
		},
		{
			name: "fallback to last key",
			body: `{"members": [{"id": "m"}]}`,
			keys: requirementKeys,
			want: []string{`{"id": "m"}`},
		},
		{
			name: "no key",
			body: `{"project_areas": [1]}`,
			keys: requirementKeys,
			want: []string{},
		},
		{
			name:    "not a list",
			body:    `{"items": "x"}`,
			keys:    requirementKeys,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var body map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(tt.body), &body))

			got, err := unwrapList(body, tt.keys)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)

			gotStrings := make([]string, 0, len(got))
			for _, raw := range got {
				gotStrings = append(gotStrings, string(raw))
			}
			assert.Equal(t, tt.want, gotStrings)
		})
	}
}
