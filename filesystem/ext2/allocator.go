package ext2

import (
	"fmt"

	"github.com/mprimi/ext2fs/util/bitmap"
)

// bitmapView wraps util/bitmap.Bitmap for one group's block or inode
// bitmap block. Component C (Bitmap Helpers) is intentionally this thin:
// single-bit get/set over a byte array, with the free-bit scan delegated
// to bitmap.Bitmap.FirstFree, which (unlike a prior implementation this
// engine does not repeat) tests each bit with b&(1<<j) == 0 rather than
// comparing against the literal 1, so any bit position is read correctly.
type bitmapView struct {
	bm *bitmap.Bitmap
}

func newBitmapView(b []byte) *bitmapView {
	return &bitmapView{bm: bitmap.FromBytes(b)}
}

func (bv *bitmapView) isSet(i int) bool {
	set, _ := bv.bm.IsSet(i)
	return set
}

func (bv *bitmapView) set(i int) error {
	return bv.bm.Set(i)
}

func (bv *bitmapView) clear(i int) error {
	return bv.bm.Clear(i)
}

// firstFree returns the first unset bit, or -1 if the bitmap is full.
func (bv *bitmapView) firstFree() int {
	return bv.bm.FirstFree(0)
}

func (bv *bitmapView) toBytes() []byte {
	return bv.bm.ToBytes()
}

// allocBlock implements Component E's alloc_block: scan groups in order,
// return the first clear bit in the first group with free capacity, set
// it, zero the new block's contents, and persist the bitmap byte, group
// descriptor, and superblock free-block counters before returning.
func (v *volume) allocBlock() (uint32, error) {
	for g := uint32(0); g < uint32(len(v.groups)); g++ {
		gd, err := v.readGroupDescriptor(g)
		if err != nil {
			return 0, err
		}
		if gd.freeBlocksCount == 0 {
			continue
		}
		bm, err := v.blockBitmap(g)
		if err != nil {
			return 0, err
		}
		idx := bm.firstFree()
		if idx < 0 || uint32(idx) >= v.sb.blocksPerGroup {
			continue
		}
		if err := bm.set(idx); err != nil {
			return 0, err
		}
		blockNum := g*v.sb.blocksPerGroup + uint32(idx) + v.sb.firstDataBlock

		if err := v.zeroBlock(blockNum); err != nil {
			return 0, err
		}
		if err := v.writeBlockBitmap(g, bm); err != nil {
			return 0, err
		}
		gd.freeBlocksCount--
		if err := v.writeGroupDescriptor(g); err != nil {
			return 0, err
		}
		v.sb.freeBlocksCount--
		if err := v.writeSuperblock(); err != nil {
			return 0, err
		}
		v.log.withFields(map[string]interface{}{"block": blockNum, "group": g}).Debug("allocated block")
		return blockNum, nil
	}
	return 0, newError("allocBlock", KindOutOfSpace)
}

// freeBlock implements the symmetric free_block: assert the bit is set
// (a clear bit here is a corruption the engine cannot safely ignore),
// clear it, and persist both counters.
func (v *volume) freeBlock(blockNum uint32) error {
	rel := blockNum - v.sb.firstDataBlock
	g, idx := groupOf(rel, v.sb.blocksPerGroup)
	bm, err := v.blockBitmap(g)
	if err != nil {
		return err
	}
	if !bm.isSet(int(idx)) {
		panic(fmt.Sprintf("ext2: freeBlock: block %d already free in group %d", blockNum, g))
	}
	if err := bm.clear(int(idx)); err != nil {
		return err
	}
	if err := v.writeBlockBitmap(g, bm); err != nil {
		return err
	}
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return err
	}
	gd.freeBlocksCount++
	if err := v.writeGroupDescriptor(g); err != nil {
		return err
	}
	v.sb.freeBlocksCount++
	return v.writeSuperblock()
}

// allocInode implements alloc_inode, symmetric to allocBlock but over the
// inode bitmap; inode numbers are 1-based.
func (v *volume) allocInode() (uint32, error) {
	for g := uint32(0); g < uint32(len(v.groups)); g++ {
		gd, err := v.readGroupDescriptor(g)
		if err != nil {
			return 0, err
		}
		if gd.freeInodesCount == 0 {
			continue
		}
		bm, err := v.inodeBitmap(g)
		if err != nil {
			return 0, err
		}
		idx := bm.firstFree()
		if idx < 0 || uint32(idx) >= v.sb.inodesPerGroup {
			continue
		}
		if err := bm.set(idx); err != nil {
			return 0, err
		}
		inodeNum := g*v.sb.inodesPerGroup + uint32(idx) + 1

		if err := v.writeInodeBitmap(g, bm); err != nil {
			return 0, err
		}
		gd.freeInodesCount--
		if err := v.writeGroupDescriptor(g); err != nil {
			return 0, err
		}
		v.sb.freeInodesCount--
		if err := v.writeSuperblock(); err != nil {
			return 0, err
		}
		v.log.withFields(map[string]interface{}{"inode": inodeNum, "group": g}).Debug("allocated inode")
		return inodeNum, nil
	}
	return 0, newError("allocInode", KindOutOfSpace)
}

func (v *volume) freeInode(inodeNum uint32) error {
	g, idx := groupOf(inodeNum-1, v.sb.inodesPerGroup)
	bm, err := v.inodeBitmap(g)
	if err != nil {
		return err
	}
	if !bm.isSet(int(idx)) {
		panic(fmt.Sprintf("ext2: freeInode: inode %d already free in group %d", inodeNum, g))
	}
	if err := bm.clear(int(idx)); err != nil {
		return err
	}
	if err := v.writeInodeBitmap(g, bm); err != nil {
		return err
	}
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return err
	}
	gd.freeInodesCount++
	if err := v.writeGroupDescriptor(g); err != nil {
		return err
	}
	v.sb.freeInodesCount++
	return v.writeSuperblock()
}
