package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}

	// Verify pragmas are set
	var journalMode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = db.Close()
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(ctx, SchemaStore); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	for _, table := range []string{"users", "presets", "profile_vars", "visits"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	// Run again - should be idempotent
	if err := db.Migrate(ctx, SchemaStore); err != nil {
		t.Fatalf("Second Migrate failed: %v", err)
	}
}

func TestStoreDB_Users(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sdb := NewTestStoreDB(t)

	if _, err := sdb.UserByPlatformID(ctx, "gh:42"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	u := User{ID: "u-1", PlatformID: "gh:42", CreatedAt: time.Now()}
	if err := sdb.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	got, err := sdb.UserByPlatformID(ctx, "gh:42")
	if err != nil {
		t.Fatalf("UserByPlatformID failed: %v", err)
	}
	if got.ID != "u-1" {
		t.Errorf("ID = %q, want u-1", got.ID)
	}

	// EnsureUser is a no-op for existing users and creates missing ones.
	if err := sdb.EnsureUser(ctx, "u-1"); err != nil {
		t.Fatalf("EnsureUser existing failed: %v", err)
	}
	if err := sdb.EnsureUser(ctx, "u-2"); err != nil {
		t.Fatalf("EnsureUser new failed: %v", err)
	}
	var count int
	if err := sdb.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 2 {
		t.Errorf("users = %d, want 2", count)
	}
}

func TestStoreDB_Presets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sdb := NewTestStoreDB(t)

	if err := sdb.EnsureUser(ctx, "u"); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{"zeta", "alpha"} {
		p := PresetRow{UserID: "u", WorkflowID: "wf", Name: name, ValuesJSON: `{"topic":"x"}`, CreatedAt: created, UpdatedAt: created}
		if err := sdb.UpsertPreset(ctx, p); err != nil {
			t.Fatalf("UpsertPreset %s failed: %v", name, err)
		}
	}

	list, err := sdb.ListPresets(ctx, "u", "wf")
	if err != nil {
		t.Fatalf("ListPresets failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("unexpected list %+v", list)
	}

	later := created.Add(time.Hour)
	if err := sdb.UpsertPreset(ctx, PresetRow{UserID: "u", WorkflowID: "wf", Name: "alpha", ValuesJSON: `{"topic":"y"}`, CreatedAt: later, UpdatedAt: later}); err != nil {
		t.Fatalf("UpsertPreset update failed: %v", err)
	}
	got, err := sdb.GetPreset(ctx, "u", "wf", "alpha")
	if err != nil {
		t.Fatalf("GetPreset failed: %v", err)
	}
	if got.ValuesJSON != `{"topic":"y"}` {
		t.Errorf("ValuesJSON = %q", got.ValuesJSON)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v (kept on update)", got.CreatedAt, created)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}

	n, err := sdb.CountPresets(ctx, "u", "wf")
	if err != nil || n != 2 {
		t.Errorf("CountPresets = %d, %v; want 2", n, err)
	}

	deleted, err := sdb.DeletePreset(ctx, "u", "wf", "zeta")
	if err != nil || !deleted {
		t.Fatalf("DeletePreset = %v, %v", deleted, err)
	}
	deleted, _ = sdb.DeletePreset(ctx, "u", "wf", "zeta")
	if deleted {
		t.Error("second delete should report nothing deleted")
	}
	if _, err := sdb.GetPreset(ctx, "u", "wf", "zeta"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestStoreDB_ProfileVars(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sdb := NewTestStoreDB(t)

	if err := sdb.EnsureUser(ctx, "u"); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if err := sdb.SetProfileVar(ctx, "u", "company", "Acme"); err != nil {
		t.Fatalf("SetProfileVar failed: %v", err)
	}
	if err := sdb.SetProfileVar(ctx, "u", "company", "Globex"); err != nil {
		t.Fatalf("SetProfileVar update failed: %v", err)
	}
	if err := sdb.SetProfileVar(ctx, "u", "role", "CTO"); err != nil {
		t.Fatalf("SetProfileVar failed: %v", err)
	}

	vars, err := sdb.ProfileVars(ctx, "u")
	if err != nil {
		t.Fatalf("ProfileVars failed: %v", err)
	}
	if len(vars) != 2 || vars["company"] != "Globex" {
		t.Errorf("unexpected vars %v", vars)
	}

	if err := sdb.DeleteProfileVar(ctx, "u", "role"); err != nil {
		t.Fatalf("DeleteProfileVar failed: %v", err)
	}
	if err := sdb.ClearProfileVars(ctx, "u"); err != nil {
		t.Fatalf("ClearProfileVars failed: %v", err)
	}
	vars, _ = sdb.ProfileVars(ctx, "u")
	if len(vars) != 0 {
		t.Errorf("expected no vars after clear, got %v", vars)
	}
}

func TestStoreDB_RunInTxRollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sdb := NewTestStoreDB(t)

	if err := sdb.EnsureUser(ctx, "u"); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	boom := errors.New("boom")
	err := sdb.RunInTx(ctx, func(ops *StoreOps) error {
		if err := ops.SetProfileVar(ctx, "u", "k", "v"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	vars, _ := sdb.ProfileVars(ctx, "u")
	if len(vars) != 0 {
		t.Errorf("expected rollback, got %v", vars)
	}
}

func TestStoreDB_Visits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sdb := NewTestStoreDB(t)

	if err := sdb.EnsureUser(ctx, "u"); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, step := range []string{"outline", "draft", "review"} {
		v := Visit{UserID: "u", WorkflowID: "blog", StepID: step, VisitedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := sdb.RecordVisit(ctx, v); err != nil {
			t.Fatalf("RecordVisit failed: %v", err)
		}
	}

	visits, err := sdb.ListVisits(ctx, "u", 2)
	if err != nil {
		t.Fatalf("ListVisits failed: %v", err)
	}
	if len(visits) != 2 {
		t.Fatalf("len(visits) = %d, want 2", len(visits))
	}
	if visits[0].StepID != "review" || visits[1].StepID != "draft" {
		t.Errorf("expected newest first, got %+v", visits)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2025, 6, 1, 10, 30, 15, 123456000, time.FixedZone("X", 3600))
	out := parseTime(formatTime(in))
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
	if !parseTime("garbage").IsZero() {
		t.Error("expected zero time for garbage")
	}
}
