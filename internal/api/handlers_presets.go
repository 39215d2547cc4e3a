package api

import (
	"net/http"

	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
	"github.com/randalmurphal/promptfinder/internal/store"
)

// PresetRequest is the body of PUT .../presets/{name}.
type PresetRequest struct {
	Values map[string]string `json:"values"`
}

// handleListPresets lists a user's presets for a workflow.
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}
	presets, err := st.ListPresets(r.Context(), uid, r.PathValue("wf"))
	if err != nil {
		HandleError(w, err)
		return
	}
	if presets == nil {
		presets = []store.Preset{}
	}
	JSONResponse(w, presets)
}

// handleGetPreset returns one preset.
func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}
	p, err := st.GetPreset(r.Context(), uid, r.PathValue("wf"), r.PathValue("name"))
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, p)
}

// handlePutPreset creates or replaces a preset.
func (s *Server) handlePutPreset(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}

	var req PresetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		HandleError(w, pferrors.ErrPresetInvalid("malformed JSON body").WithCause(err))
		return
	}

	p, err := st.PutPreset(r.Context(), uid, r.PathValue("wf"), store.Preset{
		Name:   r.PathValue("name"),
		Values: req.Values,
	})
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, p)
}

// handleDeletePreset removes a preset.
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}
	if err := st.DeletePreset(r.Context(), uid, r.PathValue("wf"), r.PathValue("name")); err != nil {
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// handleExportPresets returns every preset of a workflow as an export
// document.
func (s *Server) handleExportPresets(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}
	exp, err := st.ExportPresets(r.Context(), uid, r.PathValue("wf"))
	if err != nil {
		HandleError(w, err)
		return
	}
	if exp.Presets == nil {
		exp.Presets = []store.Preset{}
	}
	JSONResponse(w, exp)
}

// handleImportPresets imports an export document. ?overwrite=1 replaces
// presets that already exist.
func (s *Server) handleImportPresets(w http.ResponseWriter, r *http.Request) {
	st, uid, err := s.userStore(r)
	if err != nil {
		HandleError(w, err)
		return
	}

	var exp store.Export
	if err := decodeJSON(w, r, &exp); err != nil {
		HandleError(w, pferrors.ErrImportInvalid("malformed JSON body").WithCause(err))
		return
	}

	overwrite := queryFlag(r, "overwrite")
	res, err := st.ImportPresets(r.Context(), uid, r.PathValue("wf"), &exp, overwrite)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, res)
}
