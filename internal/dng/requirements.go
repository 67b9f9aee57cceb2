package dng

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tomnomnom/linkheader"
)

// DefaultPageSize is requested when ListRequirementsOptions.PageSize is not set.
const DefaultPageSize = 100

// RequirementSummary is the narrowed form of a listed requirement.
// Fields absent upstream encode as null; present values keep their upstream JSON type.
type RequirementSummary struct {
	ID    json.RawMessage `json:"id"`
	Title json.RawMessage `json:"title"`
}

// ListRequirementsOptions controls pagination of ListRequirements.
type ListRequirementsOptions struct {
	// PageSize is sent as pageSize and decides whether a page counts as full.
	// Values <= 0 select DefaultPageSize.
	PageSize int
	// MaxPages stops the listing after this many upstream calls. Zero means unbounded.
	MaxPages int
}

// pageCursor is the pagination state of a single ListRequirements call.
type pageCursor struct {
	// nextURL is the next page to fetch; empty ends the listing.
	nextURL string
	// fetched counts pages fetched so far, which is also the 1-indexed number
	// of the last page. It only feeds the synthesized page parameter and MaxPages.
	fetched int
}

// requirementsPage is one fetched page of a listing.
type requirementsPage struct {
	url   string
	items []RequirementSummary
	// next is the continuation announced by the server via nextPageUrl or a
	// Link rel="next" header, resolved against url. Empty if none was announced.
	next string
}

// ListRequirements returns the {id, title} of every requirement in a project,
// following pagination until the server stops announcing pages, a short page
// arrives, or MaxPages pages were fetched. Any failing page fails the whole
// call; partial results are never returned.
func (c *Client) ListRequirements(ctx context.Context, projectID string, opts ListRequirementsOptions) ([]RequirementSummary, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	synthesize := func(page int) string {
		return c.requirementsURL(projectID, pageSize, page)
	}

	requirements := []RequirementSummary{}
	cursor := pageCursor{nextURL: synthesize(0)}

	for cursor.nextURL != "" && !cursor.exhausted(opts.MaxPages) {
		page, err := c.fetchRequirementsPage(ctx, cursor.nextURL)
		if err != nil {
			return nil, err
		}
		requirements = append(requirements, page.items...)
		cursor = cursor.advance(page, pageSize, synthesize)

		if page.next != "" && page.next == page.url {
			c.logger.DebugContext(ctx, "stopping listing, next page is the current page",
				"project_id", projectID,
				"url", page.url,
				"max_pages", opts.MaxPages,
			)
		}

		c.logger.DebugContext(ctx, "fetched requirements page",
			"project_id", projectID,
			"page", cursor.fetched,
			"items", len(page.items),
			"next", cursor.nextURL,
		)
	}

	return requirements, nil
}

// exhausted reports whether maxPages pages have been fetched. Zero is unbounded.
func (p pageCursor) exhausted(maxPages int) bool {
	return maxPages > 0 && p.fetched >= maxPages
}

// advance computes the cursor after page was fetched. The continuation is, in
// order: the server-announced next URL, a synthesized page URL when the page
// was full, or nothing.
func (p pageCursor) advance(page requirementsPage, pageSize int, synthesize func(page int) string) pageCursor {
	next := pageCursor{fetched: p.fetched + 1}

	switch {
	case page.next != "" && page.next != page.url:
		next.nextURL = page.next
	case page.next == "" && len(page.items) == pageSize:
		next.nextURL = synthesize(next.fetched + 1)
	}

	return next
}

// fetchRequirementsPage fetches and narrows a single page.
func (c *Client) fetchRequirementsPage(ctx context.Context, target string) (requirementsPage, error) {
	resp, err := c.getJSON(ctx, target)
	if err != nil {
		return requirementsPage{}, err
	}

	fields, err := decodeObject(target, resp.body)
	if err != nil {
		return requirementsPage{}, err
	}

	raws, err := unwrapList(fields, requirementKeys)
	if err != nil {
		return requirementsPage{}, newAPIError(target, err)
	}

	items := make([]RequirementSummary, 0, len(raws))
	for i, raw := range raws {
		summary, err := narrowRequirement(raw)
		if err != nil {
			return requirementsPage{}, newAPIError(target, fmt.Errorf("requirement %d: %w", i, err))
		}
		items = append(items, summary)
	}

	next, err := continuationURL(target, fields, resp.header)
	if err != nil {
		return requirementsPage{}, newAPIError(target, err)
	}

	return requirementsPage{url: target, items: items, next: next}, nil
}

// narrowRequirement keeps only the "id" and "title" members of a listed
// requirement. Keys match exactly; "ID" or "Title" are not the same member.
func narrowRequirement(raw json.RawMessage) (RequirementSummary, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return RequirementSummary{}, err
	}
	if fields == nil {
		return RequirementSummary{}, fmt.Errorf("requirement is null")
	}
	return RequirementSummary{ID: fields["id"], Title: fields["title"]}, nil
}

// continuationURL returns the next page announced by the server: the
// nextPageUrl body field first, then a Link header with rel="next".
// Relative URLs are resolved against current.
func continuationURL(current string, fields map[string]json.RawMessage, header http.Header) (string, error) {
	var next string

	if raw, ok := fields["nextPageUrl"]; ok {
		var s string
		// non-string values carry no usable URL
		if json.Unmarshal(raw, &s) == nil {
			next = strings.TrimSpace(s)
		}
	}

	if next == "" {
		if links := linkheader.ParseMultiple(header.Values("Link")).FilterByRel("next"); len(links) > 0 {
			next = strings.TrimSpace(links[0].URL)
		}
	}

	if next == "" {
		return "", nil
	}

	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parsing page URL: %w", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parsing next page URL %q: %w", next, err)
	}

	return base.ResolveReference(ref).String(), nil
}

// requirementsURL builds the listing URL. page <= 0 omits the page parameter.
func (c *Client) requirementsURL(projectID string, pageSize, page int) string {
	target := fmt.Sprintf("%s/publish/projects/%s/requirements?pageSize=%d",
		c.baseURL, url.PathEscape(projectID), pageSize)
	if page > 0 {
		target += "&page=" + strconv.Itoa(page)
	}
	return target
}

// GetRequirementDetails returns the full upstream representation of a requirement.
func (c *Client) GetRequirementDetails(ctx context.Context, requirementID string) (json.RawMessage, error) {
	resp, err := c.getJSON(ctx, c.requirementURL(requirementID))
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

func (c *Client) requirementURL(requirementID string) string {
	return c.baseURL + "/publish/requirements/" + url.PathEscape(requirementID)
}
