package dng

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient starts an httptest server with handler and returns a client for it.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Credentials{
		BaseURL:  server.URL + "/rm/",
		Username: "user",
		APIKey:   "pass",
	})
	require.NoError(t, err)

	return client, server
}

// writeJSONBody writes v as a JSON response body.
func writeJSONBody(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{
			name:  "complete",
			creds: Credentials{BaseURL: "https://dng.example.com/rm", Username: "user", APIKey: "key"},
		},
		{
			name:    "missing base URL",
			creds:   Credentials{Username: "user", APIKey: "key"},
			wantErr: true,
		},
		{
			name:    "relative base URL",
			creds:   Credentials{BaseURL: "dng.example.com", Username: "user", APIKey: "key"},
			wantErr: true,
		},
		{
			name:    "missing username",
			creds:   Credentials{BaseURL: "https://dng.example.com/rm", APIKey: "key"},
			wantErr: true,
		},
		{
			name:    "missing API key",
			creds:   Credentials{BaseURL: "https://dng.example.com/rm", Username: "user"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tt.creds)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrIncompleteCredentials)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://dng.example.com/rm", client.baseURL)
		})
	}
}

func TestNewClient_Options(t *testing.T) {
	t.Parallel()

	creds := Credentials{BaseURL: "https://dng.example.com/rm", Username: "user", APIKey: "key"}

	client, err := NewClient(creds)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)

	client, err = NewClient(creds, WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)

	_, err = NewClient(creds, WithTransport(nil))
	require.Error(t, err)
}

func TestClient_SessionHeaders(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "pass", pass)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "2.0", r.Header.Get("OSLC-Core-Version"))
		assert.Equal(t, "/rm/publish/project_areas", r.URL.Path)

		writeJSONBody(t, w, map[string]any{"project_areas": []any{}})
	}))

	// The same session serves repeated calls.
	for range 2 {
		_, err := client.ListProjectAreas(context.Background())
		require.NoError(t, err)
	}
}

func TestListProjectAreas_ContainerKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "project_areas key",
			body: `{"project_areas": [{"id": "pa1", "name": "Project Alpha"}]}`,
			want: `[{"id": "pa1", "name": "Project Alpha"}]`,
		},
		{
			name: "items key",
			body: `{"items": [{"id": "pa2", "name": "Project Beta"}]}`,
			want: `[{"id": "pa2", "name": "Project Beta"}]`,
		},
		{
			name: "members key",
			body: `{"members": [{"id": "pa3", "title": "Project Gamma", "extra": {"a": 1}}]}`,
			want: `[{"id": "pa3", "title": "Project Gamma", "extra": {"a": 1}}]`,
		},
		{
			name: "project_areas preferred over items and members",
			body: `{"members": [{"id": "m"}], "items": [{"id": "i"}], "project_areas": [{"id": "p"}]}`,
			want: `[{"id": "p"}]`,
		},
		{
			name: "items preferred over members",
			body: `{"members": [{"id": "m"}], "items": [{"id": "i"}]}`,
			want: `[{"id": "i"}]`,
		},
		{
			name: "no container key",
			body: `{"total": 0}`,
			want: `[]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))

			areas, err := client.ListProjectAreas(context.Background())
			require.NoError(t, err)

			got, err := json.Marshal(areas)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

// callOperation invokes one of the four client operations by name.
func callOperation(ctx context.Context, client *Client, op string) error {
	var err error
	switch op {
	case "ListProjectAreas":
		_, err = client.ListProjectAreas(ctx)
	case "ListRequirements":
		_, err = client.ListRequirements(ctx, "p1", ListRequirementsOptions{PageSize: 10})
	case "GetRequirementDetails":
		_, err = client.GetRequirementDetails(ctx, "r1")
	case "GetRequirementTraceability":
		_, err = client.GetRequirementTraceability(ctx, "r1")
	default:
		panic("unknown operation " + op)
	}
	return err
}

var operations = []string{
	"ListProjectAreas",
	"ListRequirements",
	"GetRequirementDetails",
	"GetRequirementTraceability",
}

func TestClient_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusForbidden, ErrAuthentication},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadRequest, ErrAPI},
		{http.StatusConflict, ErrAPI},
		{http.StatusInternalServerError, ErrAPI},
		{http.StatusBadGateway, ErrAPI},
	}

	for _, op := range operations {
		for _, tt := range tests {
			t.Run(op+"/"+http.StatusText(tt.status), func(t *testing.T) {
				t.Parallel()

				client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, "upstream says no", tt.status)
				}))

				err := callOperation(context.Background(), client, op)
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.want)

				var upstreamErr *Error
				require.ErrorAs(t, err, &upstreamErr)
				assert.Equal(t, tt.status, upstreamErr.StatusCode)
				assert.Contains(t, err.Error(), "upstream says no")
			})
		}
	}
}

func TestClient_TransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := NewClient(Credentials{BaseURL: baseURL, Username: "user", APIKey: "pass"})
	require.NoError(t, err)

	for _, op := range operations {
		t.Run(op, func(t *testing.T) {
			t.Parallel()

			err := callOperation(context.Background(), client, op)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAPI)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	t.Parallel()

	for _, op := range operations {
		t.Run(op, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>login page</html>"))
			}))

			err := callOperation(context.Background(), client, op)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAPI)
			assert.Contains(t, err.Error(), "decode JSON")
		})
	}
}

func TestGetRequirementDetails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/rm/publish/requirements/req%201", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"id": "req 1", "title": "Detail", "dcterms:description": "text"}`))
	}))

	detail, err := client.GetRequirementDetails(context.Background(), "req 1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "req 1", "title": "Detail", "dcterms:description": "text"}`, string(detail))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewStatusError_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// "é" is two bytes, so the limit falls inside the last rune.
	body := strings.Repeat("a", maxErrorBodyBytes-1) + strings.Repeat("é", 4)
	err := newStatusError("https://dng/x", http.StatusInternalServerError, []byte(body))

	assert.True(t, utf8.ValidString(err.Body))
	assert.Equal(t, strings.Repeat("a", maxErrorBodyBytes-1)+"...", err.Body)
	assert.True(t, utf8.ValidString(err.Error()))
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := newStatusError("https://dng/x", http.StatusForbidden, []byte(strings.Repeat("a", maxErrorBodyBytes+10)))
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.True(t, strings.HasPrefix(err.Error(), "authentication failed for https://dng/x: 403 "))
	assert.True(t, strings.HasSuffix(err.Error(), "..."))

	cause := errors.New("connection refused")
	err = newAPIError("https://dng/x", cause)
	assert.ErrorIs(t, err, ErrAPI)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "DNG API error for https://dng/x: connection refused", err.Error())
}
