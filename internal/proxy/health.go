package proxy

import "net/http"

// healthStatus is the body of the probe endpoints.
type healthStatus struct {
	Status string `json:"status"`
	// DNGConfigured is false when the DNG routes would answer with a
	// ConfigurationError. It does not affect readiness.
	DNGConfigured *bool `json:"dng_configured,omitempty"`
}

// livenessHandler handles liveness probe requests.
// Always returns 200 OK to indicate the process is alive.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(r.Context(), w, healthStatus{Status: "alive"}, http.StatusOK)
	}
}

// readinessHandler handles readiness probe requests.
// Returns 200 OK if the application is ready to serve traffic, 503 otherwise.
func readinessHandler(checker ReadinessChecker, dngConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")

		status, code := "ready", http.StatusOK
		if !checker.IsReady() {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(r.Context(), w, healthStatus{Status: status, DNGConfigured: &dngConfigured}, code)
	}
}
