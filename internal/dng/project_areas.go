package dng

import (
	"context"
	"encoding/json"
)

// ListProjectAreas returns the project areas visible to the configured account.
// Each element is the upstream object, unmodified.
func (c *Client) ListProjectAreas(ctx context.Context) ([]json.RawMessage, error) {
	target := c.baseURL + "/publish/project_areas"

	resp, err := c.getJSON(ctx, target)
	if err != nil {
		return nil, err
	}

	fields, err := decodeObject(target, resp.body)
	if err != nil {
		return nil, err
	}

	areas, err := unwrapList(fields, projectAreaKeys)
	if err != nil {
		return nil, newAPIError(target, err)
	}

	return areas, nil
}
