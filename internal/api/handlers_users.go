package api

import (
	"net/http"
	"strconv"

	"github.com/randalmurphal/promptfinder/internal/store"
)

// IdentityRequest is the body of POST /api/identity.
type IdentityRequest struct {
	PlatformID string `json:"platform_id"`
}

// IdentityResponse carries the stable user id for a platform account.
type IdentityResponse struct {
	UserID store.UserID `json:"user_id"`
}

// ProfileRequest is the body of PUT /api/users/{uid}/profile.
type ProfileRequest struct {
	Vars    map[string]string `json:"vars"`
	Replace bool              `json:"replace,omitempty"`
}

// ProfileResponse is a user's saved profile values.
type ProfileResponse struct {
	Vars map[string]string `json:"vars"`
}

// VisitRequest is the body of POST /api/users/{uid}/workflows/{wf}/visits.
type VisitRequest struct {
	StepID string `json:"step_id"`
}

// handleResolveIdentity maps a platform account to a user id.
func (s *Server) handleResolveIdentity(w http.ResponseWriter, r *http.Request) {
	st, err := s.requireStore()
	if err != nil {
		HandleError(w, err)
		return
	}

	var req IdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	uid, err := st.ResolveUser(r.Context(), req.PlatformID)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, IdentityResponse{UserID: uid})
}

// userStore parses the {uid} path value and returns it with the store.
func (s *Server) userStore(r *http.Request) (store.Store, store.UserID, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, "", err
	}
	uid, err := store.ParseUserID(r.PathValue("uid"))
	if err != nil {
		return nil, "", err
	}
	return st, uid, nil
}

// handleGetProfile returns the saved profile values of a user.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}
	vars, err := st.GetProfileVars(r.Context(), uid)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, ProfileResponse{Vars: vars})
}

// handleSetProfile merges or replaces a user's profile values.
func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}

	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	vars, err := st.SetProfileVars(r.Context(), uid, req.Vars, req.Replace)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, ProfileResponse{Vars: vars})
}

// handleRecordVisit records that a user opened a workflow step.
func (s *Server) handleRecordVisit(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}
	wf, err := s.workflow(r.PathValue("wf"))
	if err != nil {
		HandleError(w, err)
		return
	}

	var req VisitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StepID != "" {
		if _, ok := wf.Step(req.StepID); !ok {
			JSONError(w, "unknown step "+req.StepID, http.StatusBadRequest)
			return
		}
	}

	if err := st.RecordVisit(r.Context(), uid, wf.ID, req.StepID); err != nil {
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// handleListVisits returns a user's recent visits. ?limit= caps the count.
func (s *Server) handleListVisits(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			JSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	visits, err := st.ListVisits(r.Context(), uid, limit)
	if err != nil {
		HandleError(w, err)
		return
	}
	if visits == nil {
		visits = []store.Visit{}
	}
	JSONResponse(w, visits)
}
