package ext2

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

// TestNameLengthBoundaries covers the 1/255/256-byte name length boundary
// cases around validateName and the path-splitting it backs.
func TestNameLengthBoundaries(t *testing.T) {
	fsys := newTestImage(t, 2*1024*1024, nil)

	one := "a"
	max255 := strings.Repeat("b", 255)
	over256 := strings.Repeat("c", 256)

	if fh, err := fsys.OpenFile("/"+one, os.O_CREATE|os.O_RDWR); err != nil {
		t.Fatalf("1-byte name should be accepted: %v", err)
	} else {
		_ = fh.Close()
	}

	if fh, err := fsys.OpenFile("/"+max255, os.O_CREATE|os.O_RDWR); err != nil {
		t.Fatalf("255-byte name should be accepted: %v", err)
	} else {
		_ = fh.Close()
	}

	if _, err := fsys.OpenFile("/"+over256, os.O_CREATE|os.O_RDWR); err == nil {
		t.Fatalf("256-byte name should be rejected")
	} else {
		var extErr *Error
		if !errors.As(err, &extErr) || extErr.Kind != KindNameTooLong {
			t.Fatalf("expected KindNameTooLong, got %v", err)
		}
	}
}

// TestFastSymlinkBoundary covers the 60-vs-61-byte fast symlink boundary:
// targets of 60 bytes or fewer store inline in the inode's block pointers,
// longer targets require a data block.
func TestFastSymlinkBoundary(t *testing.T) {
	fsys := newTestImage(t, 2*1024*1024, nil)

	target60 := strings.Repeat("x", fastSymlinkMax)
	if err := fsys.Symlink(target60, "/link60"); err != nil {
		t.Fatalf("symlink with 60-byte target: %v", err)
	}
	i60, err := fsys.v.resolveFull("/link60")
	if err != nil {
		t.Fatalf("resolve /link60: %v", err)
	}
	if !i60.isFastSymlink() {
		t.Fatalf("60-byte target should be a fast symlink")
	}

	target61 := strings.Repeat("y", fastSymlinkMax+1)
	if err := fsys.Symlink(target61, "/link61"); err != nil {
		t.Fatalf("symlink with 61-byte target: %v", err)
	}
	i61, err := fsys.v.resolveFull("/link61")
	if err != nil {
		t.Fatalf("resolve /link61: %v", err)
	}
	if i61.isFastSymlink() {
		t.Fatalf("61-byte target should not fit inline as a fast symlink")
	}
}

// TestRmdirRequiresEmpty covers the rigorous rmdir empty check: a directory
// containing anything beyond "." and ".." must not be removable, and once
// genuinely empty it must succeed.
func TestRmdirRequiresEmpty(t *testing.T) {
	fsys := newTestImage(t, 2*1024*1024, nil)

	if err := fsys.Mkdir("/d"); err != nil {
		t.Fatalf("mkdir /d: %v", err)
	}
	fh, err := fsys.OpenFile("/d/child", os.O_CREATE|os.O_RDWR)
	if err != nil {
		t.Fatalf("create /d/child: %v", err)
	}
	_ = fh.Close()

	if err := fsys.Remove("/d"); err == nil {
		t.Fatalf("expected rmdir of non-empty directory to fail")
	}

	if err := fsys.Remove("/d/child"); err != nil {
		t.Fatalf("remove /d/child: %v", err)
	}
	if err := fsys.Remove("/d"); err != nil {
		t.Fatalf("rmdir of now-empty directory should succeed: %v", err)
	}
}

// TestChmodRoundTrip covers chmod: the permission bits set must read back
// exactly, with the file-type bits of mode left untouched.
func TestChmodRoundTrip(t *testing.T) {
	fsys := newTestImage(t, 1*1024*1024, nil)

	fh, err := fsys.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = fh.Close()

	if err := fsys.Chmod("/f", 0o640); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	st, err := fsys.Stat("/f")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode&0o7777 != 0o640 {
		t.Fatalf("expected permission bits 0640, got %#o", st.Mode&0o7777)
	}
	if st.Mode&0xF000 != uint32(fileTypeRegularFile) {
		t.Fatalf("chmod must not touch the file-type bits")
	}
}

// TestChownSentinel covers the chown(-1, -1) "no change" sentinel: passing
// -1 for either uid or gid must leave that field untouched.
func TestChownSentinel(t *testing.T) {
	fsys := newTestImage(t, 1*1024*1024, nil)

	fh, err := fsys.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = fh.Close()

	if err := fsys.Chown("/f", 42, 7); err != nil {
		t.Fatalf("chown: %v", err)
	}
	if err := fsys.Chown("/f", -1, 99); err != nil {
		t.Fatalf("chown with uid sentinel: %v", err)
	}
	st, err := fsys.Stat("/f")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.UID != 42 {
		t.Fatalf("uid should be unchanged by -1 sentinel, got %d", st.UID)
	}
	if st.GID != 99 {
		t.Fatalf("gid should have been updated to 99, got %d", st.GID)
	}
}

// TestReadAtWriteAtDoNotMoveCursor covers the spec's read_at/write_at
// contract: both take an explicit offset and must leave the handle's
// ordinary Read/Write cursor untouched.
func TestReadAtWriteAtDoNotMoveCursor(t *testing.T) {
	fsys := newTestImage(t, 2*1024*1024, nil)

	fh, err := fsys.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fh.Write([]byte("0123456789")); err != nil {
		t.Fatalf("write: %v", err)
	}

	file, ok := fh.(*File)
	if !ok {
		t.Fatalf("expected *File, got %T", fh)
	}
	if file.offset != 10 {
		t.Fatalf("expected cursor at 10 after Write, got %d", file.offset)
	}

	if n, err := file.WriteAt([]byte("XY"), 2); err != nil || n != 2 {
		t.Fatalf("WriteAt: n=%d err=%v", n, err)
	}
	if file.offset != 10 {
		t.Fatalf("WriteAt must not move the cursor, got %d", file.offset)
	}

	buf := make([]byte, 2)
	if n, err := file.ReadAt(buf, 2); err != nil || n != 2 {
		t.Fatalf("ReadAt: n=%d err=%v", n, err)
	}
	if string(buf) != "XY" {
		t.Fatalf("expected ReadAt to observe the WriteAt, got %q", buf)
	}
	if file.offset != 10 {
		t.Fatalf("ReadAt must not move the cursor, got %d", file.offset)
	}

	if err := fh.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rh, err := fsys.OpenFile("/f", os.O_RDONLY)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	full := make([]byte, 10)
	if _, err := io.ReadFull(rh, full); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(full) != "01XY456789" {
		t.Fatalf("expected %q, got %q", "01XY456789", full)
	}
	_ = rh.Close()
}

// TestTruncateBoundaries covers truncating to an exact block boundary and
// to zero.
func TestTruncateBoundaries(t *testing.T) {
	fsys := newTestImage(t, 2*1024*1024, nil)

	blockSize := int(fsys.v.sb.blockSize())
	data := make([]byte, blockSize*3)
	for i := range data {
		data[i] = byte(i)
	}

	fh, err := fsys.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fh.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = fh.Close()

	th, err := fsys.OpenFile("/f", os.O_WRONLY)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := fsys.v.truncateInode(th.(*File).inode, uint64(blockSize*2)); err != nil {
		t.Fatalf("truncate to block boundary: %v", err)
	}
	_ = th.Close()

	st, err := fsys.Stat("/f")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size != uint64(blockSize*2) {
		t.Fatalf("expected size %d after truncate, got %d", blockSize*2, st.Size)
	}

	zh, err := fsys.OpenFile("/f", os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		t.Fatalf("truncate to 0: %v", err)
	}
	_ = zh.Close()

	st2, err := fsys.Stat("/f")
	if err != nil {
		t.Fatalf("stat after truncate to 0: %v", err)
	}
	if st2.Size != 0 {
		t.Fatalf("expected size 0, got %d", st2.Size)
	}
}
