package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/florianilch/dng-proxy/internal/dng"
	"github.com/florianilch/dng-proxy/internal/observability/middleware"
)

const (
	configurationMessage = "DNG server configuration is incomplete. " +
		"Please set DNG_BASE_URL, DNG_USERNAME, and DNG_API_KEY environment variables."
	noLinksMessage         = "No traceability links found for this requirement."
	unexpectedErrorMessage = "An unexpected error occurred."

	invalidPageSizeMessage = "page_size must be a positive integer."
	invalidMaxPagesMessage = "max_pages must be a positive integer if provided."
	nonIntegerQueryMessage = "page_size and max_pages must be integers."
)

var validate = validator.New()

// noLinksResponse is returned when a requirement has no traceability links.
type noLinksResponse struct {
	Message string `json:"message"`
	Links   []any  `json:"links"`
}

// dngHandler adapts a client call to the common handler template: check the
// configuration, build a client, call, then write data or a classified error.
func (p *Proxy) dngHandler(call func(r *http.Request, client *dng.Client) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := p.creds.Validate(); err != nil {
			slog.WarnContext(ctx, "rejecting request, DNG credentials incomplete", "error", err)
			writeJSONError(ctx, w, ErrorKindConfiguration, configurationMessage)
			return
		}

		client, err := p.newClient()
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		data, err := call(r, client)
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		writeJSON(ctx, w, data, http.StatusOK)
	}
}

func (p *Proxy) listProjectAreasHandler() http.HandlerFunc {
	return p.dngHandler(func(r *http.Request, client *dng.Client) (any, error) {
		areas, err := client.ListProjectAreas(r.Context())
		if err != nil {
			return nil, err
		}
		middleware.SetLogAttrs(r.Context(), slog.Int("dng.project_areas", len(areas)))
		return areas, nil
	})
}

func (p *Proxy) requirementDetailsHandler() http.HandlerFunc {
	return p.dngHandler(func(r *http.Request, client *dng.Client) (any, error) {
		requirementID, err := pathParam(r, "requirement_id")
		if err != nil {
			return nil, err
		}
		middleware.SetLogAttrs(r.Context(), slog.String("dng.requirement_id", requirementID))

		detail, err := client.GetRequirementDetails(r.Context(), requirementID)
		if err != nil {
			return nil, err
		}
		return detail, nil
	})
}

func (p *Proxy) requirementTraceabilityHandler() http.HandlerFunc {
	return p.dngHandler(func(r *http.Request, client *dng.Client) (any, error) {
		requirementID, err := pathParam(r, "requirement_id")
		if err != nil {
			return nil, err
		}
		middleware.SetLogAttrs(r.Context(), slog.String("dng.requirement_id", requirementID))

		links, err := client.GetRequirementTraceability(r.Context(), requirementID)
		if err != nil {
			return nil, err
		}
		if links.Empty() {
			return noLinksResponse{Message: noLinksMessage, Links: []any{}}, nil
		}
		return links, nil
	})
}

func (p *Proxy) listRequirementsHandler() http.HandlerFunc {
	return p.dngHandler(func(r *http.Request, client *dng.Client) (any, error) {
		projectID, err := pathParam(r, "project_id")
		if err != nil {
			return nil, err
		}
		middleware.SetLogAttrs(r.Context(), slog.String("dng.project_id", projectID))

		opts, err := parseListRequirementsQuery(r)
		if err != nil {
			return nil, err
		}

		requirements, err := client.ListRequirements(r.Context(), projectID, opts)
		if err != nil {
			return nil, err
		}
		middleware.SetLogAttrs(r.Context(), slog.Int("dng.requirements", len(requirements)))
		return requirements, nil
	})
}

// pathParam returns the decoded value of a route parameter. chi matches on
// the escaped path when the request carries one (an encoded "/" for example),
// and then yields still-escaped values.
func pathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, nil
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", &invalidInputError{fmt.Sprintf("%s is not a valid path segment.", name)}
	}
	return decoded, nil
}

// parseListRequirementsQuery reads page_size and max_pages. Checks run in
// order, so the first offending parameter determines the message.
func parseListRequirementsQuery(r *http.Request) (dng.ListRequirementsOptions, error) {
	query := r.URL.Query()
	opts := dng.ListRequirementsOptions{PageSize: dng.DefaultPageSize}

	if query.Has("page_size") {
		pageSize, err := strconv.Atoi(query.Get("page_size"))
		if err != nil {
			return opts, &invalidInputError{nonIntegerQueryMessage}
		}
		opts.PageSize = pageSize
	}
	if validate.Var(opts.PageSize, "gt=0") != nil {
		return opts, &invalidInputError{invalidPageSizeMessage}
	}

	if query.Has("max_pages") {
		maxPages, err := strconv.Atoi(query.Get("max_pages"))
		if err != nil {
			return opts, &invalidInputError{nonIntegerQueryMessage}
		}
		if validate.Var(maxPages, "gt=0") != nil {
			return opts, &invalidInputError{invalidMaxPagesMessage}
		}
		opts.MaxPages = maxPages
	}

	return opts, nil
}

func notFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(r.Context(), w, ErrorKindNotFound, "no route for "+r.URL.Path)
	}
}

func methodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, ErrorResponse{
			Error:   ErrorKindInvalidInput,
			Message: r.Method + " is not allowed on " + r.URL.Path,
		}, http.StatusMethodNotAllowed)
	}
}
