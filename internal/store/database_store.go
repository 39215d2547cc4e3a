package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/promptfinder/internal/db"
	"github.com/randalmurphal/promptfinder/internal/db/driver"
	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
)

// DBStore uses SQLite or PostgreSQL as the source of truth.
type DBStore struct {
	db     *db.StoreDB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a DBStore.
type Option func(*DBStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DBStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *DBStore) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an opened store database.
func New(sdb *db.StoreDB, opts ...Option) *DBStore {
	s := &DBStore{
		db:     sdb,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens and migrates the store database.
// For SQLite, dsn is the file path. For PostgreSQL, dsn is the connection string.
func Open(ctx context.Context, dialect driver.Dialect, dsn string, opts ...Option) (*DBStore, error) {
	sdb, err := db.OpenStoreWithDialect(ctx, dsn, dialect)
	if err != nil {
		return nil, pferrors.ErrStoreUnavailable(err)
	}
	return New(sdb, opts...), nil
}

// OpenInMemory opens a store backed by a private in-memory SQLite database.
func OpenInMemory(ctx context.Context, opts ...Option) (*DBStore, error) {
	sdb, err := db.OpenStoreInMemory(ctx)
	if err != nil {
		return nil, pferrors.ErrStoreUnavailable(err)
	}
	return New(sdb, opts...), nil
}

// DB returns the underlying database.
func (s *DBStore) DB() *db.StoreDB {
	return s.db
}

// Close releases the database.
func (s *DBStore) Close() error {
	return s.db.Close()
}

// ResolveUser maps a hosting platform account to a stable user id, creating
// the user on first sight.
func (s *DBStore) ResolveUser(ctx context.Context, platformID string) (UserID, error) {
	if platformID == "" {
		return "", pferrors.ErrUserInvalid(platformID)
	}

	var id UserID
	err := s.db.RunInTx(ctx, func(ops *db.StoreOps) error {
		u, err := ops.UserByPlatformID(ctx, platformID)
		if err == nil {
			id = UserID(u.ID)
			return nil
		}
		if !errors.Is(err, db.ErrUserNotFound) {
			return err
		}
		id = NewUserID()
		return ops.CreateUser(ctx, db.User{ID: string(id), PlatformID: platformID, CreatedAt: s.now()})
	})
	if err != nil {
		// A concurrent resolve may have created the user first.
		if u, lookupErr := s.db.UserByPlatformID(ctx, platformID); lookupErr == nil {
			return UserID(u.ID), nil
		}
		return "", fmt.Errorf("resolve user: %w", err)
	}
	s.logger.Debug("resolved user", "platform_id", platformID, "user_id", id)
	return id, nil
}

// ListPresets returns a user's presets for a workflow, sorted by name.
func (s *DBStore) ListPresets(ctx context.Context, uid UserID, workflowID string) ([]Preset, error) {
	rows, err := s.db.ListPresets(ctx, string(uid), workflowID)
	if err != nil {
		return nil, err
	}
	presets := make([]Preset, 0, len(rows))
	for _, row := range rows {
		p, err := s.fromRow(row)
		if err != nil {
			continue
		}
		presets = append(presets, *p)
	}
	return presets, nil
}

// GetPreset returns one preset.
func (s *DBStore) GetPreset(ctx context.Context, uid UserID, workflowID, name string) (*Preset, error) {
	name, err := NormalizePresetName(name)
	if err != nil {
		return nil, err
	}
	row, err := s.db.GetPreset(ctx, string(uid), workflowID, name)
	if err != nil {
		if errors.Is(err, db.ErrPresetNotFound) {
			return nil, pferrors.ErrPresetNotFound(workflowID, name)
		}
		return nil, err
	}
	return s.fromRow(*row)
}

// PutPreset creates or replaces a preset. A new name is rejected once the
// workflow holds MaxPresetsPerWorkflow presets.
func (s *DBStore) PutPreset(ctx context.Context, uid UserID, workflowID string, p Preset) (*Preset, error) {
	if workflowID == "" {
		return nil, pferrors.ErrPresetInvalid("workflow id is empty")
	}
	name, err := NormalizePresetName(p.Name)
	if err != nil {
		return nil, err
	}
	values := NormalizeValues(p.Values)

	var saved *Preset
	err = s.db.RunInTx(ctx, func(ops *db.StoreOps) error {
		var err error
		saved, _, err = s.put(ctx, ops, uid, workflowID, name, values, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("saved preset", "user_id", uid, "workflow", workflowID, "preset", name)
	return saved, nil
}

// put writes one preset inside a transaction. It reports false when the
// preset already existed and overwrite is off.
func (s *DBStore) put(ctx context.Context, ops *db.StoreOps, uid UserID, workflowID, name string, values map[string]string, overwrite bool) (*Preset, bool, error) {
	if err := ops.EnsureUser(ctx, string(uid)); err != nil {
		return nil, false, err
	}

	now := s.now()
	created := now
	existing, err := ops.GetPreset(ctx, string(uid), workflowID, name)
	switch {
	case err == nil:
		if !overwrite {
			return nil, false, nil
		}
		created = existing.CreatedAt
	case errors.Is(err, db.ErrPresetNotFound):
		n, err := ops.CountPresets(ctx, string(uid), workflowID)
		if err != nil {
			return nil, false, err
		}
		if n >= MaxPresetsPerWorkflow {
			return nil, false, pferrors.ErrPresetLimit(workflowID, MaxPresetsPerWorkflow)
		}
	default:
		return nil, false, err
	}

	data, err := json.Marshal(values)
	if err != nil {
		return nil, false, fmt.Errorf("encode preset values: %w", err)
	}
	row := db.PresetRow{
		UserID:     string(uid),
		WorkflowID: workflowID,
		Name:       name,
		ValuesJSON: string(data),
		CreatedAt:  created,
		UpdatedAt:  now,
	}
	if err := ops.UpsertPreset(ctx, row); err != nil {
		return nil, false, err
	}
	return &Preset{
		Name:       name,
		WorkflowID: workflowID,
		Values:     values,
		CreatedAt:  created.UTC(),
		UpdatedAt:  now.UTC(),
	}, true, nil
}

// DeletePreset removes a preset.
func (s *DBStore) DeletePreset(ctx context.Context, uid UserID, workflowID, name string) error {
	name, err := NormalizePresetName(name)
	if err != nil {
		return err
	}
	deleted, err := s.db.DeletePreset(ctx, string(uid), workflowID, name)
	if err != nil {
		return err
	}
	if !deleted {
		return pferrors.ErrPresetNotFound(workflowID, name)
	}
	return nil
}

// ExportPresets returns every preset of a workflow in export form.
func (s *DBStore) ExportPresets(ctx context.Context, uid UserID, workflowID string) (*Export, error) {
	presets, err := s.ListPresets(ctx, uid, workflowID)
	if err != nil {
		return nil, err
	}
	return &Export{
		Version:    ExportVersion,
		WorkflowID: workflowID,
		ExportedAt: s.now().UTC(),
		Presets:    presets,
	}, nil
}

// ImportPresets writes the presets of exp into workflowID in one
// transaction. Existing names are skipped unless overwrite is set.
func (s *DBStore) ImportPresets(ctx context.Context, uid UserID, workflowID string, exp *Export, overwrite bool) (*ImportResult, error) {
	if exp == nil {
		return nil, pferrors.ErrImportInvalid("export is empty")
	}
	if exp.Version < 1 || exp.Version > ExportVersion {
		return nil, pferrors.ErrImportInvalid(fmt.Sprintf("unsupported export version %d", exp.Version))
	}
	if exp.WorkflowID != "" && exp.WorkflowID != workflowID {
		return nil, pferrors.ErrImportInvalid(fmt.Sprintf("export is for workflow %s, not %s", exp.WorkflowID, workflowID))
	}

	type entry struct {
		name   string
		values map[string]string
	}
	entries := make([]entry, 0, len(exp.Presets))
	for _, p := range exp.Presets {
		name, err := NormalizePresetName(p.Name)
		if err != nil {
			return nil, pferrors.ErrImportInvalid(err.Error())
		}
		entries = append(entries, entry{name: name, values: NormalizeValues(p.Values)})
	}

	result := &ImportResult{Imported: []string{}, Skipped: []string{}}
	err := s.db.RunInTx(ctx, func(ops *db.StoreOps) error {
		for _, e := range entries {
			_, written, err := s.put(ctx, ops, uid, workflowID, e.name, e.values, overwrite)
			if err != nil {
				return err
			}
			if written {
				result.Imported = append(result.Imported, e.name)
			} else {
				result.Skipped = append(result.Skipped, e.name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("imported presets",
		"user_id", uid, "workflow", workflowID,
		"imported", len(result.Imported), "skipped", len(result.Skipped))
	return result, nil
}

// GetProfileVars returns a user's saved profile values. Unknown users have
// none.
func (s *DBStore) GetProfileVars(ctx context.Context, uid UserID) (map[string]string, error) {
	return s.db.ProfileVars(ctx, string(uid))
}

// SetProfileVars merges vars into the user's profile, or replaces it when
// replace is set. In merge mode an empty value deletes the key. It returns
// the resulting profile.
func (s *DBStore) SetProfileVars(ctx context.Context, uid UserID, vars map[string]string, replace bool) (map[string]string, error) {
	normalized, err := NormalizeProfileVars(vars)
	if err != nil {
		return nil, err
	}

	var result map[string]string
	err = s.db.RunInTx(ctx, func(ops *db.StoreOps) error {
		if err := ops.EnsureUser(ctx, string(uid)); err != nil {
			return err
		}
		if replace {
			if err := ops.ClearProfileVars(ctx, string(uid)); err != nil {
				return err
			}
		}
		for k, v := range normalized {
			if v == "" && !replace {
				if err := ops.DeleteProfileVar(ctx, string(uid), k); err != nil {
					return err
				}
				continue
			}
			if err := ops.SetProfileVar(ctx, string(uid), k, v); err != nil {
				return err
			}
		}
		var err error
		result, err = ops.ProfileVars(ctx, string(uid))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordVisit appends a step visit.
func (s *DBStore) RecordVisit(ctx context.Context, uid UserID, workflowID, stepID string) error {
	if workflowID == "" {
		return pferrors.ErrWorkflowNotFound(workflowID)
	}
	return s.db.RunInTx(ctx, func(ops *db.StoreOps) error {
		if err := ops.EnsureUser(ctx, string(uid)); err != nil {
			return err
		}
		return ops.RecordVisit(ctx, db.Visit{
			UserID:     string(uid),
			WorkflowID: workflowID,
			StepID:     stepID,
			VisitedAt:  s.now(),
		})
	})
}

// ListVisits returns the most recent visits, newest first.
func (s *DBStore) ListVisits(ctx context.Context, uid UserID, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = defaultVisitLimit
	}
	rows, err := s.db.ListVisits(ctx, string(uid), limit)
	if err != nil {
		return nil, err
	}
	visits := make([]Visit, len(rows))
	for i, r := range rows {
		visits[i] = Visit{WorkflowID: r.WorkflowID, StepID: r.StepID, VisitedAt: r.VisitedAt}
	}
	return visits, nil
}

func (s *DBStore) fromRow(row db.PresetRow) (*Preset, error) {
	values := map[string]string{}
	if err := json.Unmarshal([]byte(row.ValuesJSON), &values); err != nil {
		s.logger.Warn("skipping preset with malformed values",
			"workflow", row.WorkflowID, "preset", row.Name, "error", err)
		return nil, fmt.Errorf("decode preset %s: %w", row.Name, err)
	}
	return &Preset{
		Name:       row.Name,
		WorkflowID: row.WorkflowID,
		Values:     values,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}
