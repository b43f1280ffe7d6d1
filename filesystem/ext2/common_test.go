package ext2

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mprimi/ext2fs/backend/file"
	"github.com/stretchr/testify/require"
)

// newTestImage formats a fresh scratch image of the given size (backed by
// a real temp file, the same way the teacher's ext4 tests drive
// backend.Storage) and returns the opened FileSystem. opts may be nil for
// the default 1024-byte-block layout.
func newTestImage(t *testing.T, size int64, opts *FormatOptions) *FileSystem {
	t.Helper()
	imgPath := filepath.Join(t.TempDir(), "test.img")
	f, err := os.Create(imgPath)
	require.NoError(t, err, "creating test image file failed")
	require.NoError(t, f.Truncate(size), "truncating test image file failed")
	t.Cleanup(func() { _ = f.Close() })

	fsys, err := Create(file.New(f, false), size, opts)
	require.NoError(t, err, "formatting test image failed")
	return fsys
}
