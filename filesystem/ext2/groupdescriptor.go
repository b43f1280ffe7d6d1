package ext2

import "encoding/binary"

// groupDescriptorSize is the fixed, packed on-disk size of one block group
// descriptor record.
const groupDescriptorSize = 32

// groupDescriptor mirrors one 32-byte entry of the block group descriptor
// table: the block numbers of this group's bitmaps and inode table, plus
// its free-space counters.
type groupDescriptor struct {
	blockBitmap     uint32
	inodeBitmap     uint32
	inodeTable      uint32
	freeBlocksCount uint16
	freeInodesCount uint16
	usedDirsCount   uint16
}

func groupDescriptorFromBytes(b []byte) *groupDescriptor {
	return &groupDescriptor{
		blockBitmap:     binary.LittleEndian.Uint32(b[0:4]),
		inodeBitmap:     binary.LittleEndian.Uint32(b[4:8]),
		inodeTable:      binary.LittleEndian.Uint32(b[8:12]),
		freeBlocksCount: binary.LittleEndian.Uint16(b[12:14]),
		freeInodesCount: binary.LittleEndian.Uint16(b[14:16]),
		usedDirsCount:   binary.LittleEndian.Uint16(b[16:18]),
	}
}

func (gd *groupDescriptor) toBytes() []byte {
	b := make([]byte, groupDescriptorSize)
	binary.LittleEndian.PutUint32(b[0:4], gd.blockBitmap)
	binary.LittleEndian.PutUint32(b[4:8], gd.inodeBitmap)
	binary.LittleEndian.PutUint32(b[8:12], gd.inodeTable)
	binary.LittleEndian.PutUint16(b[12:14], gd.freeBlocksCount)
	binary.LittleEndian.PutUint16(b[14:16], gd.freeInodesCount)
	binary.LittleEndian.PutUint16(b[16:18], gd.usedDirsCount)
	// b[18:32] is padding/reserved, left zero.
	return b
}

// groupDescriptorOffset is the absolute byte offset of entry n's
// group descriptor.
func groupDescriptorOffset(sb *superblock, n uint32) int64 {
	base := int64(sb.gdtBlock()) * int64(sb.blockSize())
	return base + int64(n)*groupDescriptorSize
}
