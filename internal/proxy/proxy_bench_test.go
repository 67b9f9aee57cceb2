package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// requirementsPageBody builds a DNG requirements page with n entries.
func requirementsPageBody(n int) string {
	var sb strings.Builder
	sb.WriteString(`{"requirements": [`)
	for i := range n {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"id": "r%d", "title": "Requirement %d", "dcterms:description": "text", "oslc_rm:validatedBy": []}`, i, i)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// pagedRequirements serves full pages until the requested page exceeds pages.
func pagedRequirements(pageSize, pages int) http.Handler {
	full := requirementsPageBody(pageSize)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if raw := r.URL.Query().Get("page"); raw != "" {
			page, _ = strconv.Atoi(raw)
		}
		if page > pages {
			_, _ = io.WriteString(w, `{"requirements": []}`)
			return
		}
		_, _ = io.WriteString(w, full)
	})
}

// setupProxyWithMockTransport creates a Proxy with full middleware stack but mocked upstream.
// Suppresses logging to isolate benchmark measurements from I/O overhead.
func setupProxyWithMockTransport(b *testing.B, upstream http.Handler) *Proxy {
	b.Helper()

	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	proxy, err := New(testCreds, staticReadiness(true), WithTransport(&mockDNGTransport{handler: upstream}))
	if err != nil {
		b.Fatalf("Failed to create proxy: %v", err)
	}

	return proxy
}

// BenchmarkProxyListRequirements measures end-to-end latency of the paginated
// listing route, including routing, middleware, pagination and narrowing.
// Excludes network latency (mocked transport).
func BenchmarkProxyListRequirements(b *testing.B) {
	scenarios := []struct {
		name     string
		pageSize int
		pages    int
	}{
		{name: "single_page", pageSize: 100, pages: 1},
		{name: "ten_pages", pageSize: 100, pages: 10},
		{name: "small_pages", pageSize: 5, pages: 50},
	}

	for _, s := range scenarios {
		b.Run(s.name, func(b *testing.B) {
			proxy := setupProxyWithMockTransport(b, pagedRequirements(s.pageSize, s.pages))
			server := httptest.NewServer(proxy)
			defer server.Close()

			target := fmt.Sprintf("%s/mcp/tools/dng/projects/p1/requirements?page_size=%d", server.URL, s.pageSize)

			b.ReportAllocs()
			b.ResetTimer()

			for b.Loop() {
				resp, err := http.Get(target)
				if err != nil {
					b.Fatalf("Request failed: %v", err)
				}

				if resp.StatusCode != http.StatusOK {
					b.Fatalf("Unexpected status code: %d", resp.StatusCode)
				}

				_, err = io.Copy(io.Discard, resp.Body)
				if err != nil {
					b.Fatalf("Failed to read response: %v", err)
				}
				_ = resp.Body.Close()
			}
		})
	}
}

// BenchmarkProxyConcurrentThroughput measures concurrent throughput of the
// traceability route using b.RunParallel to simulate realistic concurrent load.
func BenchmarkProxyConcurrentThroughput(b *testing.B) {
	proxy := setupProxyWithMockTransport(b, dngFixture())
	server := httptest.NewServer(proxy)
	defer server.Close()

	target := server.URL + "/mcp/tools/dng/requirements/r1/traceability"

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := http.Get(target)
			if err != nil {
				b.Errorf("Request failed: %v", err)
				return
			}

			if resp.StatusCode != http.StatusOK {
				b.Errorf("Unexpected status code: %d", resp.StatusCode)
			}

			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	})
}
