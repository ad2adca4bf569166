package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// pngHeader is enough of a PNG for http.DetectContentType to recognize it.
var pngHeader = []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestGetMissReturnsAbsent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, s := range []Store{ProfilePhotos, ChatPreferences} {
		v, ok, err := db.Get(ctx, s, "nope")
		if err != nil {
			t.Fatalf("Get(%s) error = %v", s, err)
		}
		if ok || v != nil {
			t.Errorf("Get(%s) = %v, %v; want absent", s, v, ok)
		}
	}
}

func TestPutGetOverwrite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, ProfilePhotos, []byte("v1"), "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(ctx, ProfilePhotos, []byte("v2"), "42"); err != nil {
		t.Fatal(err)
	}

	v, ok, err := db.Get(ctx, ProfilePhotos, "42")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(v) != "v2" {
		t.Errorf("Get = %q, %v; want v2 (idempotent overwrite)", v, ok)
	}

	n, err := db.Count(ctx, ProfilePhotos)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestUnknownStore(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, _, err := db.Get(ctx, Store("messages"), "k"); !errors.Is(err, ErrUnknownStore) {
		t.Errorf("Get error = %v, want ErrUnknownStore", err)
	}
	if err := db.Put(ctx, Store("messages"), nil, "k"); !errors.Is(err, ErrUnknownStore) {
		t.Errorf("Put error = %v, want ErrUnknownStore", err)
	}
}

func TestPhotoRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if p, err := db.GetPhoto(ctx, "5"); err != nil || p != nil {
		t.Fatalf("GetPhoto on empty cache = %v, %v; want nil, nil", p, err)
	}

	stored, err := db.PutPhoto(ctx, "5", pngHeader)
	if err != nil {
		t.Fatal(err)
	}
	if stored.MIMEType != "image/png" {
		t.Errorf("mime = %q, want image/png", stored.MIMEType)
	}

	got, err := db.GetPhoto(ctx, "5")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || string(got.Data) != string(pngHeader) {
		t.Fatalf("GetPhoto = %+v, want stored payload", got)
	}
	if !strings.HasPrefix(got.DataURI(), "data:image/png;base64,") {
		t.Errorf("DataURI = %q", got.DataURI())
	}

	photos, err := db.ListPhotos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 || photos[0].ID != "5" {
		t.Errorf("ListPhotos = %+v, want one photo 5", photos)
	}
}

func TestMergePreferenceKeepsScrollOverwritesMuted(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.MergePreference(ctx, 7, Preference{Muted: true, ScrollAt: 42}); err != nil {
		t.Fatal(err)
	}
	merged, err := db.MergePreference(ctx, 7, Preference{Muted: false, ScrollAt: 99})
	if err != nil {
		t.Fatal(err)
	}
	if merged.ScrollAt != 42 {
		t.Errorf("scrollAt = %d, want 42 (first write wins)", merged.ScrollAt)
	}
	if merged.Muted {
		t.Error("muted = true, want false (latest sync wins)")
	}

	stored, err := db.GetPreference(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.ScrollAt != 42 || stored.Muted {
		t.Errorf("stored = %+v, want {Muted:false ScrollAt:42}", stored)
	}
}

func TestMergePreferenceCreates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	merged, err := db.MergePreference(ctx, -100, Preference{Muted: true, ScrollAt: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !merged.Muted || merged.ScrollAt != 3 {
		t.Errorf("merged = %+v, want {Muted:true ScrollAt:3}", merged)
	}
	if n, _ := db.Count(ctx, ChatPreferences); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
