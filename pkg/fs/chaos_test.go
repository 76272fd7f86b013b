package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func Test_Chaos_Passes_Through_When_All_Rates_Are_Zero(t *testing.T) {
	t.Parallel()

	chaos := NewChaos(NewReal(), 1, ChaosConfig{})
	path := filepath.Join(t.TempDir(), "pool")

	f, err := chaos.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	if err := chaos.Fallocate(f, 0, 4096); err != nil {
		t.Fatalf("Fallocate: %v", err)
	}

	_ = f.Close()

	if err := chaos.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if got := chaos.Stats().Total(); got != 0 {
		t.Fatalf("injected faults=%d, want 0", got)
	}
}

func Test_Chaos_Injects_Errno_PathError_When_Rate_Is_One(t *testing.T) {
	t.Parallel()

	chaos := NewChaos(NewReal(), 7, ChaosConfig{RemoveFailRate: 1})
	path := filepath.Join(t.TempDir(), "pool")

	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	err := chaos.Remove(path)
	if !IsChaosErr(err) {
		t.Fatalf("err=%v, want injected error", err)
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		t.Fatalf("err=%v, want errno in chain", err)
	}

	if os.IsNotExist(err) {
		t.Fatalf("err=%v, chaos must never inject ENOENT", err)
	}

	if got, want := chaos.Stats().RemoveFails, int64(1); got != want {
		t.Fatalf("RemoveFails=%d, want=%d", got, want)
	}

	exists, err := NewReal().Exists(path)
	if err != nil || !exists {
		t.Fatalf("file must survive injected remove failure: exists=%v err=%v", exists, err)
	}
}

func Test_Chaos_Only_Injects_On_Matching_Paths_When_Match_Is_Set(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	chaos := NewChaos(NewReal(), 3, ChaosConfig{
		OpenFailRate: 1,
		Match:        func(path string) bool { return strings.HasSuffix(path, "-2") },
	})

	okFile, err := chaos.OpenFile(filepath.Join(dir, "pool-1"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("OpenFile(pool-1): %v", err)
	}

	_ = okFile.Close()

	_, err = chaos.OpenFile(filepath.Join(dir, "pool-2"), os.O_CREATE|os.O_RDWR, 0o600)
	if !IsChaosErr(err) {
		t.Fatalf("OpenFile(pool-2) err=%v, want injected error", err)
	}
}

func Test_Chaos_Passes_Through_When_Mode_Is_NoOp(t *testing.T) {
	t.Parallel()

	chaos := NewChaos(NewReal(), 9, ChaosConfig{OpenFailRate: 1})
	chaos.SetMode(ChaosModeNoOp)

	f, err := chaos.OpenFile(filepath.Join(t.TempDir(), "pool"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	_ = f.Close()
}
