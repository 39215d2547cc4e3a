package cli

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/randalmurphal/promptfinder/internal/config"
	"github.com/randalmurphal/promptfinder/internal/db/driver"
	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
	"github.com/randalmurphal/promptfinder/internal/profile"
	"github.com/randalmurphal/promptfinder/internal/store"
	"github.com/randalmurphal/promptfinder/internal/storeclient"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// openStore returns the preset store: a client for server.url when set,
// else the configured database.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	logger := slog.Default()
	if cfg.Server.URL != "" {
		ttl := cfg.Profile.CacheTTL
		if ttl == 0 {
			ttl = -1
		}
		c, err := storeclient.New(storeclient.Config{
			BaseURL:    cfg.Server.URL,
			ProfileTTL: ttl,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	return openDatabase(ctx, cfg)
}

// openDatabase opens the configured database store, creating the SQLite
// directory when needed.
func openDatabase(ctx context.Context, cfg *config.Config) (*store.DBStore, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}
	if dialect == driver.DialectSQLite {
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	return store.Open(ctx, dialect, cfg.DSN(), store.WithLogger(slog.Default()))
}

// openCatalog loads the built-in workflows plus the configured directory.
func openCatalog(cfg *config.Config) (*workflow.Catalog, error) {
	return workflow.OpenCatalog(cfg.Workflows.Dir, cfg.Workflows.Pattern,
		workflow.WithCatalogLogger(slog.Default()))
}

// resolveUser accepts a user id or a platform account id. Anything that is
// not a user id is resolved through the store.
func resolveUser(ctx context.Context, st store.Store, ref string) (store.UserID, error) {
	if uid, err := store.ParseUserID(ref); err == nil {
		return uid, nil
	}
	return st.ResolveUser(ctx, ref)
}

// profileVars builds the profile layer for a workflow the way the server
// does: system values always, saved values only for eligible viewers.
// Overrides act as extra saved values.
func profileVars(ctx context.Context, cfg *config.Config, st store.Store, wf *workflow.Workflow, uid store.UserID, loggedIn bool, overrides map[string]string) (variable.ProfileVars, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	for k := range overrides {
		if profile.IsReserved(k) {
			return nil, pferrors.ErrProfileKeyReserved(k)
		}
	}

	eligible := profile.Eligible(loggedIn, wf.UseProfileDefaults)
	saved := make(map[string]string)
	if eligible && uid != "" && st != nil {
		stored, err := st.GetProfileVars(ctx, uid)
		if err != nil {
			return nil, err
		}
		maps.Copy(saved, stored)
	}
	if len(overrides) > 0 && !eligible {
		slog.Warn("profile values ignored: workflow page is not profile-eligible",
			"workflow", wf.ID, "logged_in", loggedIn, "use_profile_defaults", wf.UseProfileDefaults)
	}
	maps.Copy(saved, overrides)
	return profile.Build(time.Now().In(loc), saved, eligible), nil
}

// openUserStore opens the store and resolves ref to a user id. The caller
// closes the returned store.
func openUserStore(ctx context.Context, cfg *config.Config, ref string) (store.Store, store.UserID, error) {
	if ref == "" {
		return nil, "", fmt.Errorf("--user is required")
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	uid, err := resolveUser(ctx, st, ref)
	if err != nil {
		_ = st.Close()
		return nil, "", err
	}
	return st, uid, nil
}
