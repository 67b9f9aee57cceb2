// Package dng provides a read-only client for the IBM DOORS Next Generation
// (DNG) publish API.
//
// A Client wraps a single authenticated HTTP session (Basic auth plus the
// OSLC headers DNG expects) and exposes four operations:
//
//	client, err := dng.NewClient(creds, dng.WithTimeout(30*time.Second))
//	areas, err := client.ListProjectAreas(ctx)
//	reqs, err := client.ListRequirements(ctx, projectID, dng.ListRequirementsOptions{PageSize: 50})
//	detail, err := client.GetRequirementDetails(ctx, requirementID)
//	links, err := client.GetRequirementTraceability(ctx, requirementID)
//
// # Errors
//
// Every failure is classified at the point of occurrence. Callers match the
// kind with errors.Is against ErrAuthentication (HTTP 401/403), ErrNotFound
// (HTTP 404) or ErrAPI (any other status, transport failures and malformed
// bodies). The concrete *Error carries the URL, status code and a truncated
// response body.
//
// # Response shapes
//
// DNG responses vary between servers and versions. Lists are unwrapped from
// the first present container key of an ordered candidate list, pagination
// follows nextPageUrl, then a Link rel="next" header, then a synthesized page
// parameter, and traceability links are picked out of the requirement detail
// by key name before falling back to the dedicated links endpoint.
package dng
