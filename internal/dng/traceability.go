package dng

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// knownLinkKeys are OSLC properties DNG uses for traceability.
var knownLinkKeys = map[string]struct{}{
	"links":                           {},
	"oslc_cm:relatedChangeManagement": {},
	"oslc_rm:validatedBy":             {},
	"oslc_qm:validatedByTestCase":     {},
	"oslc_am:tracksRequirement":       {},
	"dcterms:relation":                {},
}

// IsLinkField reports whether a requirement field name carries traceability
// links: a known OSLC link property, any "oslc:" property, or any name
// containing "Link".
func IsLinkField(key string) bool {
	if _, ok := knownLinkKeys[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "oslc:") || strings.Contains(key, "Link")
}

// LinkSource tells where a TraceabilityLinks value came from.
type LinkSource int

const (
	// LinkSourceNone means no links were found.
	LinkSourceNone LinkSource = iota
	// LinkSourceDetails means links were picked from the requirement detail fields.
	LinkSourceDetails
	// LinkSourceEndpoint means links came verbatim from the dedicated links endpoint.
	LinkSourceEndpoint
)

// TraceabilityLinks is the union of the shapes a traceability lookup can
// produce. It encodes as a field mapping, the raw endpoint payload, or an
// empty list, depending on Source.
type TraceabilityLinks struct {
	Source LinkSource
	// Fields maps link field names to their values when Source is LinkSourceDetails.
	Fields map[string]json.RawMessage
	// Raw is the links endpoint body when Source is LinkSourceEndpoint.
	Raw json.RawMessage
}

// Empty reports whether no links were found.
func (t TraceabilityLinks) Empty() bool {
	switch t.Source {
	case LinkSourceDetails:
		return len(t.Fields) == 0
	case LinkSourceEndpoint:
		return !truthy(t.Raw)
	default:
		return true
	}
}

// MarshalJSON implements json.Marshaler.
func (t TraceabilityLinks) MarshalJSON() ([]byte, error) {
	switch t.Source {
	case LinkSourceDetails:
		return json.Marshal(t.Fields)
	case LinkSourceEndpoint:
		return t.Raw, nil
	default:
		return []byte("[]"), nil
	}
}

// GetRequirementTraceability returns the traceability links of a requirement.
//
// Links embedded in the requirement detail win. Only if the detail has none is
// the dedicated links endpoint queried; a 404 there means the requirement has
// no links rather than that it is missing, since the detail lookup already
// found it.
func (c *Client) GetRequirementTraceability(ctx context.Context, requirementID string) (TraceabilityLinks, error) {
	detail, err := c.GetRequirementDetails(ctx, requirementID)
	if err != nil {
		return TraceabilityLinks{}, fmt.Errorf("fetching traceability for requirement %s: %w", requirementID, err)
	}

	fields, err := decodeObject(c.requirementURL(requirementID), detail)
	if err != nil {
		return TraceabilityLinks{}, fmt.Errorf("fetching traceability for requirement %s: %w", requirementID, err)
	}

	if found := linkFields(fields); len(found) > 0 {
		return TraceabilityLinks{Source: LinkSourceDetails, Fields: found}, nil
	}

	target := c.requirementURL(requirementID) + "/links"
	resp, err := c.getJSON(ctx, target)
	if errors.Is(err, ErrNotFound) {
		c.logger.DebugContext(ctx, "links endpoint not found, treating as no links", "requirement_id", requirementID)
		return TraceabilityLinks{}, nil
	}
	if err != nil {
		return TraceabilityLinks{}, fmt.Errorf("fetching links for requirement %s: %w", requirementID, err)
	}

	if !truthy(resp.body) {
		return TraceabilityLinks{}, nil
	}
	return TraceabilityLinks{Source: LinkSourceEndpoint, Raw: resp.body}, nil
}

// linkFields keeps the link fields of a requirement that hold a truthy value.
func linkFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	found := make(map[string]json.RawMessage)
	for key, value := range fields {
		if IsLinkField(key) && truthy(value) {
			found[key] = value
		}
	}
	return found
}

// truthy reports whether a JSON value carries data: null, false, 0, "", [] and {}
// do not.
func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}

	switch v[0] {
	case 'n', 'f':
		return false
	case 't':
		return true
	case '"':
		var s string
		return json.Unmarshal(v, &s) == nil && s != ""
	case '[':
		var items []json.RawMessage
		return json.Unmarshal(v, &items) == nil && len(items) > 0
	case '{':
		var obj map[string]json.RawMessage
		return json.Unmarshal(v, &obj) == nil && len(obj) > 0
	default:
		n, err := strconv.ParseFloat(string(v), 64)
		return err == nil && n != 0
	}
}
