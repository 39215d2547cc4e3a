// Package storeclient is an HTTP client for the Prompt Finder API. It
// satisfies store.Store so commands can work against a remote server the
// same way they work against a local database.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/store"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// DefaultProfileTTL is how long a fetched profile bag is reused.
const DefaultProfileTTL = 5 * time.Minute

var _ store.Store = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	// BaseURL is the server address, e.g. "http://localhost:8080".
	BaseURL string

	// ProfileTTL bounds how long profile bags are cached. Zero uses
	// DefaultProfileTTL; negative disables caching.
	ProfileTTL time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client talks to the Prompt Finder API.
type Client struct {
	baseURL    string
	http       *http.Client
	logger     *slog.Logger
	profileTTL time.Duration
	profiles   *profileCache
	group      singleflight.Group
}

// PageData is the page boot data returned by the server.
type PageData struct {
	Document page.Document        `json:"document"`
	Profile  variable.ProfileVars `json:"profile"`
	Eligible bool                 `json:"eligible"`
}

// RenderRequest asks the server to render a workflow once.
type RenderRequest struct {
	UserID   string            `json:"user_id,omitempty"`
	LoggedIn bool              `json:"logged_in,omitempty"`
	Preset   string            `json:"preset,omitempty"`
	Values   map[string]string `json:"values,omitempty"`
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, pferrors.ErrConfigMissing("server address")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, pferrors.ErrConfigInvalid("server address", fmt.Sprintf("%q is not an absolute URL", cfg.BaseURL))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.ProfileTTL
	if ttl == 0 {
		ttl = DefaultProfileTTL
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       httpClient,
		logger:     logger,
		profileTTL: ttl,
		profiles:   newProfileCache(cfg.Now),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// ResolveUser maps a platform account to a user id.
func (c *Client) ResolveUser(ctx context.Context, platformID string) (store.UserID, error) {
	var resp struct {
		UserID store.UserID `json:"user_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/identity", map[string]string{"platform_id": platformID}, &resp)
	return resp.UserID, err
}

// ListPresets lists a user's presets for a workflow.
func (c *Client) ListPresets(ctx context.Context, uid store.UserID, workflowID string) ([]store.Preset, error) {
	var presets []store.Preset
	err := c.do(ctx, http.MethodGet, presetsPath(uid, workflowID, "presets"), nil, &presets)
	return presets, err
}

// GetPreset returns one preset.
func (c *Client) GetPreset(ctx context.Context, uid store.UserID, workflowID, name string) (*store.Preset, error) {
	var p store.Preset
	if err := c.do(ctx, http.MethodGet, presetsPath(uid, workflowID, "presets", name), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutPreset creates or replaces a preset.
func (c *Client) PutPreset(ctx context.Context, uid store.UserID, workflowID string, p store.Preset) (*store.Preset, error) {
	body := map[string]map[string]string{"values": p.Values}
	var saved store.Preset
	if err := c.do(ctx, http.MethodPut, presetsPath(uid, workflowID, "presets", p.Name), body, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeletePreset removes a preset.
func (c *Client) DeletePreset(ctx context.Context, uid store.UserID, workflowID, name string) error {
	return c.do(ctx, http.MethodDelete, presetsPath(uid, workflowID, "presets", name), nil, nil)
}

// ExportPresets downloads every preset of a workflow.
func (c *Client) ExportPresets(ctx context.Context, uid store.UserID, workflowID string) (*store.Export, error) {
	var exp store.Export
	if err := c.do(ctx, http.MethodGet, presetsPath(uid, workflowID, "presets-export"), nil, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

// ImportPresets uploads an export document.
func (c *Client) ImportPresets(ctx context.Context, uid store.UserID, workflowID string, exp *store.Export, overwrite bool) (*store.ImportResult, error) {
	path := presetsPath(uid, workflowID, "presets-import")
	if overwrite {
		path += "?overwrite=1"
	}
	var res store.ImportResult
	if err := c.do(ctx, http.MethodPost, path, exp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetProfileVars returns a user's profile values. Bags are cached for the
// configured TTL and concurrent fetches for the same user share one request.
func (c *Client) GetProfileVars(ctx context.Context, uid store.UserID) (map[string]string, error) {
	key := string(uid)
	if vars, ok := c.profiles.get(key); ok {
		return vars, nil
	}

	// Coalesced callers share this fetch; it ignores the first caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	result, err, shared := c.group.Do(key, func() (any, error) {
		if vars, ok := c.profiles.get(key); ok {
			return vars, nil
		}
		var resp struct {
			Vars map[string]string `json:"vars"`
		}
		if err := c.do(fetchCtx, http.MethodGet, userPath(uid, "profile"), nil, &resp); err != nil {
			return nil, err
		}
		if resp.Vars == nil {
			resp.Vars = map[string]string{}
		}
		c.profiles.set(key, resp.Vars, c.profileTTL)
		return resp.Vars, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("coalesced profile fetch", "user_id", uid)
	}
	return cloneVars(result.(map[string]string)), nil
}

// SetProfileVars merges or replaces profile values and refreshes the cache.
func (c *Client) SetProfileVars(ctx context.Context, uid store.UserID, vars map[string]string, replace bool) (map[string]string, error) {
	body := struct {
		Vars    map[string]string `json:"vars"`
		Replace bool              `json:"replace,omitempty"`
	}{Vars: vars, Replace: replace}

	var resp struct {
		Vars map[string]string `json:"vars"`
	}
	if err := c.do(ctx, http.MethodPut, userPath(uid, "profile"), body, &resp); err != nil {
		c.profiles.delete(string(uid))
		return nil, err
	}
	c.profiles.set(string(uid), resp.Vars, c.profileTTL)
	return resp.Vars, nil
}

// RecordVisit records a step visit.
func (c *Client) RecordVisit(ctx context.Context, uid store.UserID, workflowID, stepID string) error {
	return c.do(ctx, http.MethodPost, presetsPath(uid, workflowID, "visits"), map[string]string{"step_id": stepID}, nil)
}

// ListVisits returns recent visits, newest first.
func (c *Client) ListVisits(ctx context.Context, uid store.UserID, limit int) ([]store.Visit, error) {
	path := userPath(uid, "visits")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var visits []store.Visit
	err := c.do(ctx, http.MethodGet, path, nil, &visits)
	return visits, err
}

// Workflows lists the server's catalog.
func (c *Client) Workflows(ctx context.Context) ([]workflow.Summary, error) {
	var list []workflow.Summary
	err := c.do(ctx, http.MethodGet, "/api/workflows", nil, &list)
	return list, err
}

// Page fetches the boot data of a workflow page.
func (c *Client) Page(ctx context.Context, workflowID string, uid store.UserID, loggedIn bool) (*PageData, error) {
	q := url.Values{}
	if uid != "" {
		q.Set("user", string(uid))
	}
	if loggedIn {
		q.Set("logged_in", "1")
	}
	path := "/api/workflows/" + url.PathEscape(workflowID) + "/page"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var pd PageData
	if err := c.do(ctx, http.MethodGet, path, nil, &pd); err != nil {
		return nil, err
	}
	return &pd, nil
}

// Render asks the server for a one-shot render.
func (c *Client) Render(ctx context.Context, workflowID string, req RenderRequest) (*workflow.Result, error) {
	var res workflow.Result
	if err := c.do(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(workflowID)+"/render", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pferrors.ErrStoreUnavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError turns an {error, code} body into a PFError. Bodies without a
// code become plain errors carrying the status.
func decodeError(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Code != "" {
		return &pferrors.PFError{Code: pferrors.Code(apiErr.Code), What: apiErr.Error}
	}
	msg := apiErr.Error
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
}

func userPath(uid store.UserID, rest string) string {
	return "/api/users/" + url.PathEscape(string(uid)) + "/" + rest
}

func presetsPath(uid store.UserID, workflowID, kind string, name ...string) string {
	p := userPath(uid, "workflows/"+url.PathEscape(workflowID)+"/"+kind)
	for _, n := range name {
		p += "/" + url.PathEscape(n)
	}
	return p
}

func cloneVars(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
