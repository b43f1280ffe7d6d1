package ext2

import (
	"fmt"
	"os"
	"testing"
)

// TestAllocatorSpillsToNextGroup covers Component E's group-scan order:
// with a 2-group, 16-inodes-per-group layout, group 0 starts with 6
// allocatable inodes (16 minus the 10 reserved low inode numbers). Filling
// those 6 must exhaust group 0's free-inode counter, and the next
// allocation must land in group 1's first slot.
func TestAllocatorSpillsToNextGroup(t *testing.T) {
	const size = 8396800 // yields groupCount=2, inodesPerGroup=16
	fsys := newTestImage(t, size, &FormatOptions{
		BlockSize:  1024,
		InodeRatio: 600000,
	})

	if got := len(fsys.v.groups); got != 2 {
		t.Fatalf("expected 2 groups, got %d", got)
	}
	if got := fsys.v.sb.inodesPerGroup; got != 16 {
		t.Fatalf("expected 16 inodes per group, got %d", got)
	}

	gd0, err := fsys.v.readGroupDescriptor(0)
	if err != nil {
		t.Fatalf("read group 0 descriptor: %v", err)
	}
	if gd0.freeInodesCount != 6 {
		t.Fatalf("expected group 0 to start with 6 free inodes, got %d", gd0.freeInodesCount)
	}

	var lastInode uint32
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("/g0-%d", i)
		fh, err := fsys.OpenFile(name, os.O_CREATE|os.O_RDWR)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		i, err := fsys.v.resolveFull(name)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		lastInode = i.number
		_ = fh.Close()
	}
	if lastInode != 16 {
		t.Fatalf("expected the 6th allocation to be inode 16 (end of group 0), got %d", lastInode)
	}

	gd0After, err := fsys.v.readGroupDescriptor(0)
	if err != nil {
		t.Fatalf("read group 0 descriptor after fill: %v", err)
	}
	if gd0After.freeInodesCount != 0 {
		t.Fatalf("expected group 0 to be exhausted, freeInodesCount=%d", gd0After.freeInodesCount)
	}

	fh, err := fsys.OpenFile("/spill", os.O_CREATE|os.O_RDWR)
	if err != nil {
		t.Fatalf("create spill file: %v", err)
	}
	spillInode, err := fsys.v.resolveFull("/spill")
	if err != nil {
		t.Fatalf("resolve spill file: %v", err)
	}
	_ = fh.Close()
	if spillInode.number != 17 {
		t.Fatalf("expected allocation to spill into group 1's first inode (17), got %d", spillInode.number)
	}
}

// TestAllocBlockFreeBlockRoundTrip covers the alloc/free round-trip
// invariant: freeing every block a file held returns the superblock's
// free-block counter to its pre-allocation value.
func TestAllocBlockFreeBlockRoundTrip(t *testing.T) {
	fsys := newTestImage(t, 1*1024*1024, nil)
	before := fsys.v.sb.freeBlocksCount

	fh, err := fsys.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	data := make([]byte, int(fsys.v.sb.blockSize())*4)
	if _, err := fh.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = fh.Close()

	mid := fsys.v.sb.freeBlocksCount
	if mid >= before {
		t.Fatalf("expected free blocks to decrease after writing, before=%d mid=%d", before, mid)
	}

	if err := fsys.Remove("/f"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	after := fsys.v.sb.freeBlocksCount
	if after != before {
		t.Fatalf("expected free blocks to return to %d after removal, got %d", before, after)
	}
}
