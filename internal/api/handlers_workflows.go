package api

import (
	"maps"
	"net/http"

	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/store"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// PageResponse is the data a page needs to boot: the rendered document and
// the profile layer the viewer is entitled to.
type PageResponse struct {
	Document page.Document        `json:"document"`
	Profile  variable.ProfileVars `json:"profile"`
	Eligible bool                 `json:"eligible"`
}

// RenderRequest is the body of POST /api/workflows/{wf}/render.
type RenderRequest struct {
	UserID   string            `json:"user_id,omitempty"`
	LoggedIn bool              `json:"logged_in,omitempty"`
	Preset   string            `json:"preset,omitempty"`
	Values   map[string]string `json:"values,omitempty"`
}

// handleListWorkflows lists the catalog.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, s.catalog.List())
}

// handleGetPage returns page data for a workflow.
// Query: user=<uid>&logged_in=1.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r.PathValue("wf"))
	if err != nil {
		HandleError(w, err)
		return
	}

	pv, eligible, err := s.profileFor(r.Context(), wf, r.URL.Query().Get("user"), queryFlag(r, "logged_in"))
	if err != nil {
		HandleError(w, err)
		return
	}

	JSONResponse(w, PageResponse{
		Document: wf.Document(),
		Profile:  pv,
		Eligible: eligible,
	})
}

// handleRender renders every prompt of a workflow once. Preset values are
// applied first, then request values.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r.PathValue("wf"))
	if err != nil {
		HandleError(w, err)
		return
	}

	var req RenderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pv, _, err := s.profileFor(r.Context(), wf, req.UserID, req.LoggedIn)
	if err != nil {
		HandleError(w, err)
		return
	}

	values := make(map[string]string)
	if req.Preset != "" {
		st, err := s.requireStore()
		if err != nil {
			HandleError(w, err)
			return
		}
		uid, err := store.ParseUserID(req.UserID)
		if err != nil {
			HandleError(w, err)
			return
		}
		p, err := st.GetPreset(r.Context(), uid, wf.ID, req.Preset)
		if err != nil {
			HandleError(w, err)
			return
		}
		maps.Copy(values, p.Values)
	}
	maps.Copy(values, req.Values)

	JSONResponse(w, workflow.Render(wf, pv, values, s.pageOptions()...))
}

func (s *Server) pageOptions() []page.Option {
	return []page.Option{
		page.WithLogger(s.logger),
		page.WithDependencyIndex(s.dependencyIndex),
	}
}

// queryFlag reads a boolean-like query parameter.
func queryFlag(r *http.Request, name string) bool {
	return page.ParseFlag(r.URL.Query().Get(name))
}
