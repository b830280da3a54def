package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/profedit/internal/profile"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strp(s string) *string { return &s }

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestSnapshotTableExists(t *testing.T) {
	s := openTestStore(t)

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='profile_snapshot'").Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 1 {
		t.Error("profile_snapshot table does not exist")
	}
}

// TestLoadSnapshotEmpty verifies a fresh store reports ErrNotFound.
func TestLoadSnapshotEmpty(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadSnapshot(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadSnapshot err = %v, want ErrNotFound", err)
	}
}

// TestSnapshotRoundTrip saves a snapshot and reads it back intact.
func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := Snapshot{
		Identity: profile.Identity{ID: 7, Username: "ada", Email: "ada@example.com"},
		Profile: profile.Wire{
			FullName: strp("Ada Lovelace"),
			Bio:      strp("Analyst"),
			Skills:   []string{"math", "engines"},
			Education: []profile.EducationEntry{
				{School: "Home", Degree: "Tutoring", Years: "1820-1830"},
			},
			ImageURL: strp("/uploads/ada.png"),
		},
		Origin:  OriginRemote,
		SavedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := s.SaveSnapshot(ctx, want); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

// TestSnapshotOverwrite verifies only one snapshot is kept.
func TestSnapshotOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := Snapshot{Identity: profile.Identity{ID: 1, Username: "a"}, Profile: profile.Wire{Bio: strp("one")}}
	second := Snapshot{Identity: profile.Identity{ID: 1, Username: "a"}, Profile: profile.Wire{Bio: strp("two")}, Origin: OriginLocal}

	if err := s.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("SaveSnapshot first: %v", err)
	}
	if err := s.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("SaveSnapshot second: %v", err)
	}

	got, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.Profile.Bio == nil || *got.Profile.Bio != "two" {
		t.Errorf("Bio = %v, want %q", got.Profile.Bio, "two")
	}
	if got.Origin != OriginLocal {
		t.Errorf("Origin = %q, want %q", got.Origin, OriginLocal)
	}
	if got.SavedAt.IsZero() {
		t.Error("SavedAt should default to now")
	}

	var rows int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM profile_snapshot").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
}

func TestClearSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, Snapshot{Identity: profile.Identity{ID: 1}}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.ClearSnapshot(ctx); err != nil {
		t.Fatalf("ClearSnapshot: %v", err)
	}
	if _, err := s.LoadSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadSnapshot after clear err = %v, want ErrNotFound", err)
	}
}
