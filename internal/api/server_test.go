package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptfinder/internal/store"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

const greetingYAML = `
id: greeting
title: Greeting
use_profile_defaults: true
variables:
  - key: company
    profile_key: company_name
steps:
  - id: hello
    allow_profile: true
    variables:
      - key: name
        default_value: friend
    prompts:
      - id: hello-1
        template: "Hello {name} from {company|us} on {sys_today}"
  - id: bye
    prompts:
      - id: bye-1
        template: "Bye {name}"
`

var testNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *store.DBStore) {
	t.Helper()

	wf, err := workflow.Parse([]byte(greetingYAML), ".yaml")
	require.NoError(t, err)
	catalog := workflow.NewCatalog()
	catalog.Add(wf)

	st := store.NewTestStore(t)
	srv := New(&Config{
		Store:    st,
		Catalog:  catalog,
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	return srv, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func resolveUser(t *testing.T, h http.Handler, platformID string) store.UserID {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/identity", IdentityRequest{PlatformID: platformID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[IdentityResponse](t, rec).UserID
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["workflows"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIdentity(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()

	a := resolveUser(t, h, "github:1")
	b := resolveUser(t, h, "github:1")
	assert.Equal(t, a, b)
	_, err := store.ParseUserID(string(a))
	assert.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, "/api/identity", IdentityRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "USER_INVALID", decode[APIError](t, rec).Code)
}

func TestPresetRoutes(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()
	uid := resolveUser(t, h, "github:2")
	base := "/api/users/" + string(uid) + "/workflows/greeting"

	rec := doJSON(t, h, http.MethodPut, base+"/presets/team", PresetRequest{Values: map[string]string{"Name": "Ada"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[store.Preset](t, rec)
	assert.Equal(t, "team", saved.Name)
	assert.Equal(t, map[string]string{"name": "Ada"}, saved.Values)

	rec = doJSON(t, h, http.MethodGet, base+"/presets/team", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", decode[store.Preset](t, rec).Values["name"])

	rec = doJSON(t, h, http.MethodGet, base+"/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Preset](t, rec), 1)

	rec = doJSON(t, h, http.MethodDelete, base+"/presets/team", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, base+"/presets/team", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRESET_NOT_FOUND", decode[APIError](t, rec).Code)

	rec = doJSON(t, h, http.MethodGet, base+"/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/users/not-a-uuid/workflows/greeting/presets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "USER_INVALID", decode[APIError](t, rec).Code)
}

func TestPresetExportImportRoutes(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()
	alice := resolveUser(t, h, "github:alice")
	bob := resolveUser(t, h, "github:bob")

	for _, name := range []string{"one", "two"} {
		rec := doJSON(t, h, http.MethodPut, "/api/users/"+string(alice)+"/workflows/greeting/presets/"+name,
			PresetRequest{Values: map[string]string{"name": name}})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, h, http.MethodPut, "/api/users/"+string(bob)+"/workflows/greeting/presets/one",
		PresetRequest{Values: map[string]string{"name": "bob's"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/users/"+string(alice)+"/workflows/greeting/presets-export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exp := decode[store.Export](t, rec)
	assert.Equal(t, store.ExportVersion, exp.Version)
	require.Len(t, exp.Presets, 2)

	importPath := "/api/users/" + string(bob) + "/workflows/greeting/presets-import"
	rec = doJSON(t, h, http.MethodPost, importPath, exp)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[store.ImportResult](t, rec)
	assert.Equal(t, []string{"two"}, res.Imported)
	assert.Equal(t, []string{"one"}, res.Skipped)

	rec = doJSON(t, h, http.MethodPost, importPath+"?overwrite=1", exp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"one", "two"}, decode[store.ImportResult](t, rec).Imported)

	exp.Version = 99
	rec = doJSON(t, h, http.MethodPost, importPath, exp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMPORT_INVALID", decode[APIError](t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, importPath, bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestProfileRoutes(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()
	uid := resolveUser(t, h, "github:3")
	path := "/api/users/" + string(uid) + "/profile"

	rec := doJSON(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ProfileResponse](t, rec).Vars)

	rec = doJSON(t, h, http.MethodPut, path, ProfileRequest{Vars: map[string]string{"Company_Name": "Acme"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"company_name": "Acme"}, decode[ProfileResponse](t, rec).Vars)

	rec = doJSON(t, h, http.MethodPut, path, ProfileRequest{Vars: map[string]string{"sys_today": "never"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PROFILE_KEY_RESERVED", decode[APIError](t, rec).Code)

	rec = doJSON(t, h, http.MethodPut, path, ProfileRequest{Vars: map[string]string{"role": "CTO"}, Replace: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"role": "CTO"}, decode[ProfileResponse](t, rec).Vars)
}

func TestVisitRoutes(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()
	uid := resolveUser(t, h, "github:4")

	rec := doJSON(t, h, http.MethodPost, "/api/users/"+string(uid)+"/workflows/greeting/visits", VisitRequest{StepID: "hello"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/users/"+string(uid)+"/workflows/greeting/visits", VisitRequest{StepID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/users/"+string(uid)+"/workflows/unknown/visits", VisitRequest{StepID: "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/users/"+string(uid)+"/visits?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	visits := decode[[]store.Visit](t, rec)
	require.Len(t, visits, 1)
	assert.Equal(t, "greeting", visits[0].WorkflowID)
	assert.Equal(t, "hello", visits[0].StepID)

	rec = doJSON(t, h, http.MethodGet, "/api/users/"+string(uid)+"/visits?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowRoutes(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]workflow.Summary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "greeting", list[0].ID)
	assert.Equal(t, 2, list[0].Steps)

	rec = doJSON(t, h, http.MethodGet, "/api/workflows/missing/page", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "WORKFLOW_NOT_FOUND", decode[APIError](t, rec).Code)
}

func TestPageRoute_ProfileEligibility(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)
	h := srv.Handler()
	uid := resolveUser(t, h, "github:5")
	_, err := st.SetProfileVars(context.Background(), uid, map[string]string{"company_name": "Acme"}, false)
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodGet, "/api/workflows/greeting/page?user="+string(uid)+"&logged_in=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pg := decode[PageResponse](t, rec)
	assert.True(t, pg.Eligible)
	assert.Equal(t, "Acme", pg.Profile["company_name"])
	assert.Equal(t, "2025-01-15", pg.Profile["sys_today"])
	assert.Equal(t, "greeting", pg.Document.WorkflowID)
	require.Len(t, pg.Document.Steps, 2)
	assert.Equal(t, "1", pg.Document.Steps[0].AllowProfile)

	// Not logged in: system values only.
	rec = doJSON(t, h, http.MethodGet, "/api/workflows/greeting/page?user="+string(uid), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pg = decode[PageResponse](t, rec)
	assert.False(t, pg.Eligible)
	assert.NotContains(t, pg.Profile, "company_name")
	assert.Equal(t, "2025-01-15", pg.Profile["sys_today"])

	rec = doJSON(t, h, http.MethodGet, "/api/workflows/greeting/page?user=garbage&logged_in=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderRoute(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)
	h := srv.Handler()
	ctx := context.Background()
	uid := resolveUser(t, h, "github:6")
	_, err := st.SetProfileVars(ctx, uid, map[string]string{"company_name": "Acme"}, false)
	require.NoError(t, err)
	_, err = st.PutPreset(ctx, uid, "greeting", store.Preset{Name: "ada", Values: map[string]string{"name": "Ada"}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		req   RenderRequest
		hello string
		bye   string
	}{
		{
			name:  "anonymous defaults",
			req:   RenderRequest{},
			hello: "Hello friend from us on 2025-01-15",
			bye:   "Bye {name}",
		},
		{
			name:  "values",
			req:   RenderRequest{Values: map[string]string{"name": "Grace"}},
			hello: "Hello Grace from us on 2025-01-15",
			bye:   "Bye Grace",
		},
		{
			name:  "logged in with preset",
			req:   RenderRequest{UserID: string(uid), LoggedIn: true, Preset: "ada"},
			hello: "Hello Ada from Acme on 2025-01-15",
			bye:   "Bye Ada",
		},
		{
			name:  "request values beat preset",
			req:   RenderRequest{UserID: string(uid), Preset: "ada", Values: map[string]string{"name": "Linus"}},
			hello: "Hello Linus from us on 2025-01-15",
			bye:   "Bye Linus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/workflows/greeting/render", tt.req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			res := decode[workflow.Result](t, rec)

			hello, ok := res.Step("hello")
			require.True(t, ok)
			assert.Equal(t, tt.hello, hello.Prompts[0].Text)
			bye, ok := res.Step("bye")
			require.True(t, ok)
			assert.Equal(t, tt.bye, bye.Prompts[0].Text)
		})
	}

	rec := doJSON(t, h, http.MethodPost, "/api/workflows/greeting/render", RenderRequest{UserID: string(uid), Preset: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreUnavailable(t *testing.T) {
	t.Parallel()
	srv := New(&Config{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/identity", IdentityRequest{PlatformID: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORE_UNAVAILABLE", decode[APIError](t, rec).Code)

	// Built-in workflows are served without a store.
	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/workflows/blog-post/page", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
