package api

import (
	"net/http"
	"slices"
)

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	cors := CORS(s.allowedOrigins...)

	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Identity
	s.mux.HandleFunc("POST /api/identity", cors(s.handleResolveIdentity))

	// Presets
	s.mux.HandleFunc("GET /api/users/{uid}/workflows/{wf}/presets", cors(s.handleListPresets))
	s.mux.HandleFunc("GET /api/users/{uid}/workflows/{wf}/presets/{name}", cors(s.handleGetPreset))
	s.mux.HandleFunc("PUT /api/users/{uid}/workflows/{wf}/presets/{name}", cors(s.handlePutPreset))
	s.mux.HandleFunc("DELETE /api/users/{uid}/workflows/{wf}/presets/{name}", cors(s.handleDeletePreset))
	s.mux.HandleFunc("GET /api/users/{uid}/workflows/{wf}/presets-export", cors(s.handleExportPresets))
	s.mux.HandleFunc("POST /api/users/{uid}/workflows/{wf}/presets-import", cors(s.handleImportPresets))

	// Profile
	s.mux.HandleFunc("GET /api/users/{uid}/profile", cors(s.handleGetProfile))
	s.mux.HandleFunc("PUT /api/users/{uid}/profile", cors(s.handleSetProfile))

	// Visits
	s.mux.HandleFunc("POST /api/users/{uid}/workflows/{wf}/visits", cors(s.handleRecordVisit))
	s.mux.HandleFunc("GET /api/users/{uid}/visits", cors(s.handleListVisits))

	// Workflows and rendering
	s.mux.HandleFunc("GET /api/workflows", cors(s.handleListWorkflows))
	s.mux.HandleFunc("GET /api/workflows/{wf}/page", cors(s.handleGetPage))
	s.mux.HandleFunc("POST /api/workflows/{wf}/render", cors(s.handleRender))

	// Live render session
	s.mux.Handle("GET /api/workflows/{wf}/live", s.live)

	// Preflight for every route
	s.mux.HandleFunc("OPTIONS /api/", cors(func(w http.ResponseWriter, r *http.Request) {}))
}

// CORS returns a middleware that sets CORS headers for the given origins.
// With no origins, or "*", any origin is allowed.
func CORS(origins ...string) func(http.HandlerFunc) http.HandlerFunc {
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")
	return func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(origins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}
}

// originAllowed reports whether a websocket upgrade from origin is allowed.
func originAllowed(origins []string, origin string) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") || origin == "" {
		return true
	}
	return slices.Contains(origins, origin)
}
