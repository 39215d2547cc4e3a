package workflow

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches every workflow document below a directory.
const DefaultPattern = "**/*.{yaml,yml,json}"

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Source indicates where a workflow came from.
type Source string

const (
	// SourceDirectory is a workflow file from the configured directory.
	SourceDirectory Source = "directory"
	// SourceEmbedded is a workflow built into the binary.
	SourceEmbedded Source = "embedded"
)

// Summary is the catalog listing entry of a workflow.
type Summary struct {
	ID                 string `json:"id"`
	Title              string `json:"title,omitempty"`
	Description        string `json:"description,omitempty"`
	Steps              int    `json:"steps"`
	UseProfileDefaults bool   `json:"use_profile_defaults"`
	Source             Source `json:"source"`
}

// Catalog holds the known workflows by ID. Directory workflows take priority
// over embedded ones with the same ID.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[string]*Workflow
	logger *slog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCatalogLogger sets the logger used for skipped files.
func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCatalog creates an empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		byID:   make(map[string]*Workflow),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenCatalog loads the embedded workflows, then every workflow under dir
// matching pattern. An empty dir loads only the embedded workflows.
func OpenCatalog(dir, pattern string, opts ...CatalogOption) (*Catalog, error) {
	c := NewCatalog(opts...)

	builtin, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("load builtin workflows: %w", err)
	}
	for _, wf := range builtin {
		c.Add(wf)
	}

	if dir == "" {
		return c, nil
	}
	found, err := c.LoadDir(dir, pattern)
	if err != nil {
		return nil, err
	}
	for _, wf := range found {
		c.Add(wf)
	}
	return c, nil
}

// LoadDir loads every workflow file under dir that matches pattern (doublestar
// syntax, relative to dir). Files that fail to load are logged and skipped. A
// missing directory yields no workflows.
func (c *Catalog) LoadDir(dir, pattern string) ([]*Workflow, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid workflow pattern %q", pattern)
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat workflow dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workflow dir %s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob workflows: %w", err)
	}
	sort.Strings(matches)

	var workflows []*Workflow
	for _, m := range matches {
		wf, err := Load(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			c.logger.Warn("skipping workflow file", "path", m, "error", err)
			continue
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// Builtin returns the workflows embedded in the binary.
func Builtin() ([]*Workflow, error) {
	matches, err := doublestar.Glob(builtinFS, "builtin/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	workflows := make([]*Workflow, 0, len(matches))
	for _, m := range matches {
		data, err := builtinFS.ReadFile(m)
		if err != nil {
			return nil, err
		}
		wf, err := Parse(data, path.Ext(m))
		if err != nil {
			return nil, fmt.Errorf("parse builtin %s: %w", m, err)
		}
		if wf.ID == "" {
			wf.ID = strings.TrimSuffix(path.Base(m), path.Ext(m))
		}
		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("builtin %s: %w", m, err)
		}
		wf.Source = SourceEmbedded
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// Add registers wf, replacing any workflow with the same ID unless the
// existing one comes from a directory and wf is embedded.
func (c *Catalog) Add(wf *Workflow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.byID[wf.ID]; ok && existing.Source == SourceDirectory && wf.Source == SourceEmbedded {
		return
	}
	c.byID[wf.ID] = wf
}

// Get returns the workflow with the given ID.
func (c *Catalog) Get(id string) (*Workflow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	wf, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return wf, nil
}

// List returns catalog summaries sorted by ID.
func (c *Catalog) List() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Summary, 0, len(c.byID))
	for _, wf := range c.byID {
		out = append(out, Summary{
			ID:                 wf.ID,
			Title:              wf.Title,
			Description:        wf.Description,
			Steps:              len(wf.Steps),
			UseProfileDefaults: wf.UseProfileDefaults,
			Source:             wf.Source,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of workflows.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Resolve returns the workflow named by ref: a path to a workflow file when
// one exists, else a catalog ID.
func (c *Catalog) Resolve(ref string) (*Workflow, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return Load(ref)
	}
	return c.Get(ref)
}
