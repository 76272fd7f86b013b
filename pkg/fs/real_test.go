package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func Test_RealFS_Exists_Returns_False_When_Path_Does_Not_Exist(t *testing.T) {
	t.Parallel()

	fs := NewReal()

	exists, err := fs.Exists(filepath.Join(t.TempDir(), "does-not-exist"))

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, false; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

func Test_RealFS_Fallocate_Extends_File_To_Requested_Size_When_File_Is_Empty(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	path := filepath.Join(t.TempDir(), "pool")

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	defer func() { _ = f.Close() }()

	const size = 1 << 20

	err = fs.Fallocate(f, 0, size)
	if err != nil {
		t.Fatalf("Fallocate: %v", err)
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if got, want := info.Size(), int64(size); got != want {
		t.Fatalf("size=%d, want=%d", got, want)
	}

	buf := make([]byte, 4096)

	_, err = f.ReadAt(buf, size-int64(len(buf)))
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want zero", i, b)
		}
	}
}

func Test_RealFS_Fallocate_Returns_PathError_When_Length_Is_Not_Positive(t *testing.T) {
	t.Parallel()

	fs := NewReal()

	f, err := fs.OpenFile(filepath.Join(t.TempDir(), "pool"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	defer func() { _ = f.Close() }()

	err = fs.Fallocate(f, 0, 0)

	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("err=%v, want *os.PathError", err)
	}

	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("err=%v, want os.ErrInvalid", err)
	}
}

func Test_RealFS_Glob_Returns_Matching_Pool_Files_When_Prefix_Matches(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()

	for _, name := range []string{"pool-1", "pool-2", "other-1"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	matches, err := fs.Glob(filepath.Join(dir, "pool-*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}

	if got, want := len(matches), 2; got != want {
		t.Fatalf("len(matches)=%d, want=%d (%v)", got, want, matches)
	}
}
