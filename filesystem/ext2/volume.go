package ext2

import (
	"fmt"

	"github.com/mprimi/ext2fs/backend"
)

// volume binds a backend.Storage to its parsed superblock and group
// descriptor table, and provides the block-addressed read/write primitives
// (Component A: Block Device Port, wrapped around an absolute-offset
// backend.Storage; Component B: Struct Codec, the readBlock/writeBlock
// pair every higher component builds on) every other component is built
// on top of.
type volume struct {
	backend    backend.Storage
	writable   backend.WritableFile
	readOnly   bool
	sb         *superblock
	groups     []*groupDescriptor
	log        *logger
}

// readBlock reads exactly one block at block number n.
func (v *volume) readBlock(n uint32) ([]byte, error) {
	buf := make([]byte, v.sb.blockSize())
	if err := v.readAt(int64(n)*int64(v.sb.blockSize()), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readAt reads len(buf) bytes at an absolute byte offset, treating any
// short read as KindUnknownIO (Component A's "short reads are errors"
// contract).
func (v *volume) readAt(offset int64, buf []byte) error {
	n, err := v.backend.ReadAt(buf, offset)
	if err != nil {
		return wrapError("read", KindUnknownIO, err)
	}
	if n != len(buf) {
		return newError("read", KindUnknownIO)
	}
	return nil
}

// writeBlock writes exactly one block at block number n.
func (v *volume) writeBlock(n uint32, data []byte) error {
	if uint32(len(data)) != v.sb.blockSize() {
		return fmt.Errorf("writeBlock: data length %d does not match block size %d", len(data), v.sb.blockSize())
	}
	return v.writeAt(int64(n)*int64(v.sb.blockSize()), data)
}

func (v *volume) writeAt(offset int64, data []byte) error {
	if v.readOnly {
		return newError("write", KindAccessError)
	}
	n, err := v.writable.WriteAt(data, offset)
	if err != nil {
		return wrapError("write", KindUnknownIO, err)
	}
	if n != len(data) {
		return newError("write", KindUnknownIO)
	}
	return nil
}

// zeroBlock allocates and writes a block-sized slice of zero bytes,
// fulfilling the allocator's "new blocks are zeroed before return"
// requirement (also applied to indirection blocks per REDESIGN FLAGS).
func (v *volume) zeroBlock(n uint32) error {
	return v.writeBlock(n, make([]byte, v.sb.blockSize()))
}

// groupOf returns the block group index owning block/inode-relative index i
// within a table sized per-group (blocksPerGroup or inodesPerGroup).
func groupOf(i, perGroup uint32) (group, indexInGroup uint32) {
	return i / perGroup, i % perGroup
}

func (v *volume) readGroupDescriptor(g uint32) (*groupDescriptor, error) {
	if g >= uint32(len(v.groups)) {
		return nil, newError("readGroupDescriptor", KindBadBlock)
	}
	return v.groups[g], nil
}

func (v *volume) writeGroupDescriptor(g uint32) error {
	off := groupDescriptorOffset(v.sb, g)
	return v.writeAt(off, v.groups[g].toBytes())
}

func (v *volume) writeSuperblock() error {
	return v.writeAt(superblockOffset, v.sb.toBytes())
}

// inodeLocation returns the absolute byte offset of inode number n's
// record (inode numbers are 1-based per the spec).
func (v *volume) inodeLocation(n uint32) (int64, error) {
	if n == 0 {
		return 0, newError("inodeLocation", KindBadBlock)
	}
	g, idx := groupOf(n-1, v.sb.inodesPerGroup)
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return 0, err
	}
	tableOffset := int64(gd.inodeTable) * int64(v.sb.blockSize())
	return tableOffset + int64(idx)*int64(v.sb.inodeSize), nil
}

func (v *volume) readInode(n uint32) (*inode, error) {
	off, err := v.inodeLocation(n)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, v.sb.inodeSize)
	if err := v.readAt(off, buf); err != nil {
		return nil, err
	}
	i, err := inodeFromBytes(buf, n)
	if err != nil {
		return nil, wrapError("readInode", KindInvalidFileImage, err)
	}
	return i, nil
}

func (v *volume) writeInode(i *inode) error {
	off, err := v.inodeLocation(i.number)
	if err != nil {
		return err
	}
	return v.writeAt(off, i.toBytes(v.sb.inodeSize))
}

// blockBitmap reads the block bitmap for group g, sized exactly one block
// per the on-disk contract (a prior implementation hard-coded 1024 bytes
// here; that broke any block size other than 1024).
func (v *volume) blockBitmap(g uint32) (*bitmapView, error) {
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return nil, err
	}
	buf, err := v.readBlock(gd.blockBitmap)
	if err != nil {
		return nil, err
	}
	return newBitmapView(buf), nil
}

func (v *volume) writeBlockBitmap(g uint32, bm *bitmapView) error {
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return err
	}
	return v.writeBlock(gd.blockBitmap, bm.toBytes())
}

func (v *volume) inodeBitmap(g uint32) (*bitmapView, error) {
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return nil, err
	}
	buf, err := v.readBlock(gd.inodeBitmap)
	if err != nil {
		return nil, err
	}
	return newBitmapView(buf), nil
}

func (v *volume) writeInodeBitmap(g uint32, bm *bitmapView) error {
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return err
	}
	return v.writeBlock(gd.inodeBitmap, bm.toBytes())
}
