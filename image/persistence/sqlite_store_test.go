package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/madnificent/mu-image-service/image/domain"
	"github.com/madnificent/mu-image-service/shared/db/sqlite"
	_ "modernc.org/sqlite"
)

const testSourceURI = "http://example.org/files/1"

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := sqlite.RunMigrations(conn); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	_, err = conn.Exec(
		"INSERT INTO source_images (uuid, uri, format, storage_ref) VALUES (?, ?, ?, ?)",
		"source-1", testSourceURI, "image/png", "share://original/source-1",
	)
	if err != nil {
		t.Fatalf("Failed to seed source image: %v", err)
	}

	return NewSQLiteStore(conn)
}

func derivedImage(id string, width, height int) *domain.DerivedImage {
	return &domain.DerivedImage{
		ID:        id,
		URI:       domain.DerivedURI(id),
		SourceURI: testSourceURI,
		Format:    "image/png",
		Width:     width,
		Height:    height,
		Location: domain.StorageLocation{
			ID:        id + "-loc",
			Reference: "share://derivedImages/" + id,
		},
	}
}

func TestSQLiteStoreLookupSource(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	src, err := store.LookupSource(ctx, "source-1")
	if err != nil {
		t.Fatalf("LookupSource failed: %v", err)
	}

	if src.URI != testSourceURI {
		t.Errorf("URI = %q, want %q", src.URI, testSourceURI)
	}
	if src.Format != "image/png" {
		t.Errorf("Format = %q, want image/png", src.Format)
	}
	if src.Location.Reference != "share://original/source-1" {
		t.Errorf("Reference = %q, want share://original/source-1", src.Location.Reference)
	}
}

func TestSQLiteStoreLookupSourceMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LookupSource(context.Background(), "no-such-id")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LookupSource for unknown id = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreRecordAndLookupDerived(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordDerived(ctx, derivedImage("d1", 100, 200)); err != nil {
		t.Fatalf("RecordDerived failed: %v", err)
	}

	loc, err := store.LookupDerived(ctx, testSourceURI, 100, 200)
	if err != nil {
		t.Fatalf("LookupDerived failed: %v", err)
	}

	if loc.Reference != "share://derivedImages/d1" {
		t.Errorf("Reference = %q, want share://derivedImages/d1", loc.Reference)
	}
	if loc.ID != "d1-loc" {
		t.Errorf("ID = %q, want d1-loc", loc.ID)
	}
}

// The cache key matches on which dimensions are present, not on numeric
// equivalence: a record stored with both axes must never satisfy a
// width-only request and vice versa.
func TestSQLiteStoreKeyExactness(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordDerived(ctx, derivedImage("both", 100, 200)); err != nil {
		t.Fatalf("RecordDerived failed: %v", err)
	}
	if err := store.RecordDerived(ctx, derivedImage("width-only", 100, 0)); err != nil {
		t.Fatalf("RecordDerived failed: %v", err)
	}
	if err := store.RecordDerived(ctx, derivedImage("unconstrained", 0, 0)); err != nil {
		t.Fatalf("RecordDerived failed: %v", err)
	}

	cases := []struct {
		name          string
		width, height int
		wantRef       string
	}{
		{"both dimensions", 100, 200, "share://derivedImages/both"},
		{"width only", 100, 0, "share://derivedImages/width-only"},
		{"unconstrained", 0, 0, "share://derivedImages/unconstrained"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := store.LookupDerived(ctx, testSourceURI, tc.width, tc.height)
			if err != nil {
				t.Fatalf("LookupDerived failed: %v", err)
			}
			if loc.Reference != tc.wantRef {
				t.Errorf("Reference = %q, want %q", loc.Reference, tc.wantRef)
			}
		})
	}

	// Keys that match no stored presence pattern must miss.
	misses := []struct {
		name          string
		width, height int
	}{
		{"height only", 0, 200},
		{"different width", 150, 0},
		{"different pair", 100, 100},
	}

	for _, tc := range misses {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.LookupDerived(ctx, testSourceURI, tc.width, tc.height)
			if !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("LookupDerived = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSQLiteStoreLookupDerivedOtherSource(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordDerived(ctx, derivedImage("d1", 100, 0)); err != nil {
		t.Fatalf("RecordDerived failed: %v", err)
	}

	_, err := store.LookupDerived(ctx, "http://example.org/files/other", 100, 0)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LookupDerived for other source = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreRecordDerivedAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordDerived(ctx, derivedImage("d1", 0, 0)); err != nil {
		t.Fatalf("RecordDerived failed: %v", err)
	}

	// A second record whose storage location reuses an existing uuid fails
	// on the second insert; the already-inserted derived row must roll
	// back with it.
	dup := derivedImage("d2", 50, 0)
	dup.Location.ID = "d1-loc"
	if err := store.RecordDerived(ctx, dup); err == nil {
		t.Fatal("Expected error for duplicate storage location uuid, got nil")
	}

	var derived int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM derived_images").Scan(&derived); err != nil {
		t.Fatalf("Failed to count derived images: %v", err)
	}
	if derived != 1 {
		t.Errorf("derived_images count = %d, want 1 (failed write must not leave partial records)", derived)
	}
}
