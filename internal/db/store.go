package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/promptfinder/internal/db/driver"
)

// SchemaStore is the migration set of the preset and profile store.
const SchemaStore = "store"

// timeLayout is fixed-width UTC so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var (
	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrPresetNotFound is returned when no preset matches a lookup.
	ErrPresetNotFound = errors.New("preset not found")
)

// querier is satisfied by both *DB and *TxOps.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// User is a row of the users table.
type User struct {
	ID         string
	PlatformID string
	CreatedAt  time.Time
}

// PresetRow is a row of the presets table. ValuesJSON is the JSON-encoded
// map of variable values.
type PresetRow struct {
	UserID     string
	WorkflowID string
	Name       string
	ValuesJSON string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Visit is a row of the visits table.
type Visit struct {
	UserID     string
	WorkflowID string
	StepID     string
	VisitedAt  time.Time
}

// StoreOps holds the store queries. They run against the database directly
// or inside a transaction.
type StoreOps struct {
	q querier
}

// StoreDB provides operations on the preset and profile database.
type StoreDB struct {
	*DB
	*StoreOps
}

// OpenStore opens the store database at path using SQLite and migrates it.
func OpenStore(ctx context.Context, path string) (*StoreDB, error) {
	return OpenStoreWithDialect(ctx, path, driver.DialectSQLite)
}

// OpenStoreInMemory opens a migrated in-memory store database.
func OpenStoreInMemory(ctx context.Context) (*StoreDB, error) {
	return OpenStoreWithDialect(ctx, driver.MemoryDSN, driver.DialectSQLite)
}

// OpenStoreWithDialect opens the store database with a specific dialect.
// For SQLite, dsn is the file path. For PostgreSQL, dsn is the connection string.
func OpenStoreWithDialect(ctx context.Context, dsn string, dialect driver.Dialect) (*StoreDB, error) {
	d, err := OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx, SchemaStore); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &StoreDB{DB: d, StoreOps: &StoreOps{q: d}}, nil
}

// RunInTx runs fn with store queries bound to one transaction.
func (s *StoreDB) RunInTx(ctx context.Context, fn func(ops *StoreOps) error) error {
	return s.DB.RunInTx(ctx, func(tx *TxOps) error {
		return fn(&StoreOps{q: tx})
	})
}

// EnsureUser creates the user row for id if it does not exist yet.
func (o *StoreOps) EnsureUser(ctx context.Context, id string) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO users (id, created_at) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", id, err)
	}
	return nil
}

// CreateUser inserts a user.
func (o *StoreOps) CreateUser(ctx context.Context, u User) error {
	var platformID any
	if u.PlatformID != "" {
		platformID = u.PlatformID
	}
	_, err := o.q.ExecContext(ctx,
		"INSERT INTO users (id, platform_id, created_at) VALUES (?, ?, ?)",
		u.ID, platformID, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UserByPlatformID returns the user linked to a hosting platform account.
func (o *StoreOps) UserByPlatformID(ctx context.Context, platformID string) (*User, error) {
	row := o.q.QueryRowContext(ctx,
		"SELECT id, platform_id, created_at FROM users WHERE platform_id = ?", platformID)

	var u User
	var pid sql.NullString
	var createdAt string
	if err := row.Scan(&u.ID, &pid, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by platform id: %w", err)
	}
	u.PlatformID = pid.String
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// ListPresets returns a user's presets for a workflow, sorted by name.
func (o *StoreOps) ListPresets(ctx context.Context, userID, workflowID string) ([]PresetRow, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT user_id, workflow_id, name, values_json, created_at, updated_at
		FROM presets WHERE user_id = ? AND workflow_id = ?
		ORDER BY name
	`, userID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var presets []PresetRow
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		presets = append(presets, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presets: %w", err)
	}
	return presets, nil
}

// GetPreset returns one preset.
func (o *StoreOps) GetPreset(ctx context.Context, userID, workflowID, name string) (*PresetRow, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT user_id, workflow_id, name, values_json, created_at, updated_at
		FROM presets WHERE user_id = ? AND workflow_id = ? AND name = ?
	`, userID, workflowID, name)

	p, err := scanPreset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPresetNotFound
		}
		return nil, fmt.Errorf("get preset %s: %w", name, err)
	}
	return p, nil
}

// CountPresets returns how many presets a user has for a workflow.
func (o *StoreOps) CountPresets(ctx context.Context, userID, workflowID string) (int, error) {
	var n int
	err := o.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM presets WHERE user_id = ? AND workflow_id = ?",
		userID, workflowID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count presets: %w", err)
	}
	return n, nil
}

// UpsertPreset inserts a preset or replaces the values of an existing one.
// created_at of an existing preset is kept.
func (o *StoreOps) UpsertPreset(ctx context.Context, p PresetRow) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO presets (user_id, workflow_id, name, values_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, workflow_id, name) DO UPDATE SET
			values_json = excluded.values_json,
			updated_at = excluded.updated_at
	`, p.UserID, p.WorkflowID, p.Name, p.ValuesJSON, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert preset %s: %w", p.Name, err)
	}
	return nil
}

// DeletePreset removes a preset. It reports whether a row was deleted.
func (o *StoreOps) DeletePreset(ctx context.Context, userID, workflowID, name string) (bool, error) {
	res, err := o.q.ExecContext(ctx,
		"DELETE FROM presets WHERE user_id = ? AND workflow_id = ? AND name = ?",
		userID, workflowID, name)
	if err != nil {
		return false, fmt.Errorf("delete preset %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete preset %s: %w", name, err)
	}
	return n > 0, nil
}

// ProfileVars returns a user's saved profile values.
func (o *StoreOps) ProfileVars(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := o.q.QueryContext(ctx,
		"SELECT key, value FROM profile_vars WHERE user_id = ? ORDER BY key", userID)
	if err != nil {
		return nil, fmt.Errorf("get profile vars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	vars := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan profile var: %w", err)
		}
		vars[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile vars: %w", err)
	}
	return vars, nil
}

// ClearProfileVars removes every profile value of a user.
func (o *StoreOps) ClearProfileVars(ctx context.Context, userID string) error {
	if _, err := o.q.ExecContext(ctx, "DELETE FROM profile_vars WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clear profile vars: %w", err)
	}
	return nil
}

// SetProfileVar upserts one profile value.
func (o *StoreOps) SetProfileVar(ctx context.Context, userID, key, value string) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO profile_vars (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, userID, key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set profile var %s: %w", key, err)
	}
	return nil
}

// DeleteProfileVar removes one profile value.
func (o *StoreOps) DeleteProfileVar(ctx context.Context, userID, key string) error {
	if _, err := o.q.ExecContext(ctx,
		"DELETE FROM profile_vars WHERE user_id = ? AND key = ?", userID, key); err != nil {
		return fmt.Errorf("delete profile var %s: %w", key, err)
	}
	return nil
}

// RecordVisit appends a visit.
func (o *StoreOps) RecordVisit(ctx context.Context, v Visit) error {
	_, err := o.q.ExecContext(ctx,
		"INSERT INTO visits (user_id, workflow_id, step_id, visited_at) VALUES (?, ?, ?, ?)",
		v.UserID, v.WorkflowID, v.StepID, formatTime(v.VisitedAt))
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

// ListVisits returns a user's most recent visits, newest first.
func (o *StoreOps) ListVisits(ctx context.Context, userID string, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := o.q.QueryContext(ctx, `
		SELECT user_id, workflow_id, step_id, visited_at FROM visits
		WHERE user_id = ? ORDER BY visited_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var visits []Visit
	for rows.Next() {
		var v Visit
		var at string
		if err := rows.Scan(&v.UserID, &v.WorkflowID, &v.StepID, &at); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.VisitedAt = parseTime(at)
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return visits, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPreset(s scanner) (*PresetRow, error) {
	var p PresetRow
	var createdAt, updatedAt string
	if err := s.Scan(&p.UserID, &p.WorkflowID, &p.Name, &p.ValuesJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}
		}
	}
	return t
}
