package lock_test

import (
	"os"
	"testing"

	"taskmill/internal/lock"
)

func TestLockExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := lock.New(dir, "reports")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, err := first.Lock()
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !ok {
		t.Fatal("first holder could not acquire a fresh lock")
	}

	second, err := lock.New(dir, "reports")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, err = second.Lock()
	if err != nil {
		t.Fatalf("second Lock failed: %v", err)
	}
	if ok {
		t.Fatal("second holder acquired an already-held lock")
	}

	other, err := lock.New(dir, "imports")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, err = other.Lock()
	if err != nil {
		t.Fatalf("other-group Lock failed: %v", err)
	}
	if !ok {
		t.Fatal("a different group was blocked by an unrelated lock")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	ok, err = second.Lock()
	if err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	if !ok {
		t.Fatal("lock was not reacquirable after release")
	}
}

func TestIsLockedProbesWithoutOwning(t *testing.T) {
	dir := t.TempDir()

	mgr, err := lock.New(dir, "reports")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	held, err := mgr.IsLocked()
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if held {
		t.Fatal("missing lock file reported as held")
	}

	if ok, err := mgr.Lock(); err != nil || !ok {
		t.Fatalf("Lock failed: ok=%v err=%v", ok, err)
	}
	held, err = mgr.IsLocked()
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !held {
		t.Fatal("held lock reported as free")
	}

	if err := mgr.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if _, err := os.Stat(mgr.Path()); !os.IsNotExist(err) {
		t.Fatalf("lock file survived Unlock: %v", err)
	}
}

func TestNewRejectsBadIdentity(t *testing.T) {
	if _, err := lock.New("", "reports"); err == nil {
		t.Fatal("empty directory accepted")
	}
	if _, err := lock.New(t.TempDir(), "  "); err == nil {
		t.Fatal("blank group accepted")
	}
	if _, err := lock.New(t.TempDir(), "a/b"); err == nil {
		t.Fatal("group with path separator accepted")
	}
}
