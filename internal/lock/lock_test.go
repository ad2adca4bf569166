package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	owner, err := ReadOwner(tmpDir)
	if err != nil {
		t.Fatalf("ReadOwner() error = %v", err)
	}
	if owner.PID != os.Getpid() {
		t.Errorf("owner PID = %d, want %d", owner.PID, os.Getpid())
	}
	if owner.Since.IsZero() {
		t.Error("owner time not recorded")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "LOCK")); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release: %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected *HeldError, got %T: %v", err, err)
	}
	if held.Owner.PID != os.Getpid() {
		t.Errorf("held by PID %d, want %d", held.Owner.PID, os.Getpid())
	}
}

func TestReadOwnerMissing(t *testing.T) {
	owner, err := ReadOwner(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if owner != (Owner{}) {
		t.Errorf("owner = %+v, want zero", owner)
	}
}

func TestParseOwner(t *testing.T) {
	o := parseOwner("pid=42\ntime=2026-01-02T03:04:05Z\n")
	if o.PID != 42 || o.Since.Year() != 2026 {
		t.Errorf("parseOwner = %+v", o)
	}
	if o := parseOwner("garbage"); o.PID != 0 {
		t.Errorf("parseOwner(garbage) PID = %d", o.PID)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
