package ext2

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// superblockOffset is the fixed absolute byte offset of the superblock on
// every ext2 volume, regardless of block size.
const superblockOffset = 1024

// superblockSize is the on-disk size of the superblock record. Only the
// first 264 bytes (through s_first_meta_bg) carry fields this engine reads
// or writes; the remainder is reserved and round-tripped as zero.
const superblockSize = 1024

const ext2Magic uint16 = 0xEF53

// feature-incompat bit indicating directory entries carry a file-type
// byte rather than devoting all 8 bits of the length field to name length.
const featureIncompatFiletype uint32 = 0x2

const (
	revLevelGood   uint32 = 0 // original format, first 10 inodes reserved, fixed 128-byte inode size
	revLevelDynamic uint32 = 1 // variable inode size, extended feature fields
)

const goodOldInodeSize uint16 = 128
const goodOldFirstIno uint32 = 11

// superblock is the in-memory decoding of the ext2 superblock. Field names
// and comments track the on-disk field names used throughout ext2
// documentation and the original_source reference driver.
type superblock struct {
	inodesCount       uint32
	blocksCount       uint32
	rBlocksCount      uint32
	freeBlocksCount   uint32
	freeInodesCount   uint32
	firstDataBlock    uint32
	logBlockSize      uint32
	blocksPerGroup     uint32
	inodesPerGroup     uint32
	mtime             uint32
	wtime             uint32
	mntCount          uint16
	maxMntCount       uint16
	magic             uint16
	state             uint16
	errors            uint16
	minorRevLevel     uint16
	lastcheck         uint32
	checkinterval     uint32
	creatorOS         uint32
	revLevel          uint32
	defResuid         uint16
	defResgid         uint16

	// dynamic-rev (revLevel >= 1) fields
	firstIno         uint32
	inodeSize        uint16
	blockGroupNr     uint16
	featureCompat    uint32
	featureIncompat  uint32
	featureROCompat  uint32
	uuid             uuid.UUID
	volumeName       [16]byte
}

// blockSize is the derived block size: 1024 << logBlockSize.
func (sb *superblock) blockSize() uint32 {
	return 1024 << sb.logBlockSize
}

func (sb *superblock) blockMask() uint32 {
	return sb.blockSize() - 1
}

// blockShift is log2(blockSize), used to translate a byte offset to a
// block index via a shift instead of a division.
func (sb *superblock) blockShift() uint32 {
	return sb.logBlockSize + 10
}

// groupCount is the number of block groups on the volume, derived two ways
// (from the block count and from the inode count); D's invariant requires
// both derivations to agree.
func (sb *superblock) groupCount() uint32 {
	return ceilDiv(sb.blocksCount-sb.firstDataBlock, sb.blocksPerGroup)
}

func (sb *superblock) groupCountByInodes() uint32 {
	return ceilDiv(sb.inodesCount, sb.inodesPerGroup)
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// pointersPerBlock is P in the spec's block-map table: the number of
// 4-byte block pointers that fit in one block.
func (sb *superblock) pointersPerBlock() uint32 {
	return sb.blockSize() / 4
}

// hasFileType reports whether directory entries on this volume carry an
// explicit file-type byte (feature_incompat FILETYPE).
func (sb *superblock) hasFileType() bool {
	return sb.featureIncompat&featureIncompatFiletype != 0
}

// gdtBlock is the absolute block number of the group descriptor table: block
// 2 when the block size is the historical 1024 bytes (so the boot block at
// block 0 and the superblock at block 1 both precede it), otherwise block 1.
func (sb *superblock) gdtBlock() uint32 {
	if sb.blockSize() == 1024 {
		return 2
	}
	return 1
}

func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) < 264 {
		return nil, fmt.Errorf("superblock data too short: %d bytes, must be at least 264", len(b))
	}

	sb := &superblock{
		inodesCount:     binary.LittleEndian.Uint32(b[0:4]),
		blocksCount:     binary.LittleEndian.Uint32(b[4:8]),
		rBlocksCount:    binary.LittleEndian.Uint32(b[8:12]),
		freeBlocksCount: binary.LittleEndian.Uint32(b[12:16]),
		freeInodesCount: binary.LittleEndian.Uint32(b[16:20]),
		firstDataBlock:  binary.LittleEndian.Uint32(b[20:24]),
		logBlockSize:    binary.LittleEndian.Uint32(b[24:28]),
		blocksPerGroup:  binary.LittleEndian.Uint32(b[32:36]),
		inodesPerGroup:  binary.LittleEndian.Uint32(b[40:44]),
		mtime:           binary.LittleEndian.Uint32(b[44:48]),
		wtime:           binary.LittleEndian.Uint32(b[48:52]),
		mntCount:        binary.LittleEndian.Uint16(b[52:54]),
		maxMntCount:     binary.LittleEndian.Uint16(b[54:56]),
		magic:           binary.LittleEndian.Uint16(b[56:58]),
		state:           binary.LittleEndian.Uint16(b[58:60]),
		errors:          binary.LittleEndian.Uint16(b[60:62]),
		minorRevLevel:   binary.LittleEndian.Uint16(b[62:64]),
		lastcheck:       binary.LittleEndian.Uint32(b[64:68]),
		checkinterval:   binary.LittleEndian.Uint32(b[68:72]),
		creatorOS:       binary.LittleEndian.Uint32(b[72:76]),
		revLevel:        binary.LittleEndian.Uint32(b[76:80]),
		defResuid:       binary.LittleEndian.Uint16(b[80:82]),
		defResgid:       binary.LittleEndian.Uint16(b[82:84]),
	}

	if sb.magic != ext2Magic {
		return nil, fmt.Errorf("invalid superblock magic: %#x", sb.magic)
	}

	if sb.revLevel >= revLevelDynamic {
		sb.firstIno = binary.LittleEndian.Uint32(b[84:88])
		sb.inodeSize = binary.LittleEndian.Uint16(b[88:90])
		sb.blockGroupNr = binary.LittleEndian.Uint16(b[90:92])
		sb.featureCompat = binary.LittleEndian.Uint32(b[92:96])
		sb.featureIncompat = binary.LittleEndian.Uint32(b[96:100])
		sb.featureROCompat = binary.LittleEndian.Uint32(b[100:104])
		id, err := uuid.FromBytes(b[104:120])
		if err == nil {
			sb.uuid = id
		}
		copy(sb.volumeName[:], b[120:136])
	} else {
		sb.firstIno = goodOldFirstIno
		sb.inodeSize = goodOldInodeSize
	}

	if sb.groupCount() != sb.groupCountByInodes() {
		return nil, fmt.Errorf("inconsistent block group count: %d by blocks, %d by inodes", sb.groupCount(), sb.groupCountByInodes())
	}

	return sb, nil
}

func (sb *superblock) toBytes() []byte {
	b := make([]byte, superblockSize)

	binary.LittleEndian.PutUint32(b[0:4], sb.inodesCount)
	binary.LittleEndian.PutUint32(b[4:8], sb.blocksCount)
	binary.LittleEndian.PutUint32(b[8:12], sb.rBlocksCount)
	binary.LittleEndian.PutUint32(b[12:16], sb.freeBlocksCount)
	binary.LittleEndian.PutUint32(b[16:20], sb.freeInodesCount)
	binary.LittleEndian.PutUint32(b[20:24], sb.firstDataBlock)
	binary.LittleEndian.PutUint32(b[24:28], sb.logBlockSize)
	// s_log_frag_size mirrors s_log_block_size: this engine never uses
	// fragments smaller than a block.
	binary.LittleEndian.PutUint32(b[28:32], sb.logBlockSize)
	binary.LittleEndian.PutUint32(b[32:36], sb.blocksPerGroup)
	binary.LittleEndian.PutUint32(b[36:40], sb.blocksPerGroup)
	binary.LittleEndian.PutUint32(b[40:44], sb.inodesPerGroup)
	binary.LittleEndian.PutUint32(b[44:48], sb.mtime)
	binary.LittleEndian.PutUint32(b[48:52], sb.wtime)
	binary.LittleEndian.PutUint16(b[52:54], sb.mntCount)
	binary.LittleEndian.PutUint16(b[54:56], sb.maxMntCount)
	binary.LittleEndian.PutUint16(b[56:58], ext2Magic)
	binary.LittleEndian.PutUint16(b[58:60], sb.state)
	binary.LittleEndian.PutUint16(b[60:62], sb.errors)
	binary.LittleEndian.PutUint16(b[62:64], sb.minorRevLevel)
	binary.LittleEndian.PutUint32(b[64:68], sb.lastcheck)
	binary.LittleEndian.PutUint32(b[68:72], sb.checkinterval)
	binary.LittleEndian.PutUint32(b[72:76], sb.creatorOS)
	binary.LittleEndian.PutUint32(b[76:80], sb.revLevel)
	binary.LittleEndian.PutUint16(b[80:82], sb.defResuid)
	binary.LittleEndian.PutUint16(b[82:84], sb.defResgid)

	if sb.revLevel >= revLevelDynamic {
		binary.LittleEndian.PutUint32(b[84:88], sb.firstIno)
		binary.LittleEndian.PutUint16(b[88:90], sb.inodeSize)
		binary.LittleEndian.PutUint16(b[90:92], sb.blockGroupNr)
		binary.LittleEndian.PutUint32(b[92:96], sb.featureCompat)
		binary.LittleEndian.PutUint32(b[96:100], sb.featureIncompat)
		binary.LittleEndian.PutUint32(b[100:104], sb.featureROCompat)
		idBytes, _ := sb.uuid.MarshalBinary()
		copy(b[104:120], idBytes)
		copy(b[120:136], sb.volumeName[:])
	}

	return b
}

// label trims trailing NUL bytes from the volume name field.
func (sb *superblock) label() string {
	n := 0
	for n < len(sb.volumeName) && sb.volumeName[n] != 0 {
		n++
	}
	return string(sb.volumeName[:n])
}

func (sb *superblock) setLabel(label string) {
	var buf [16]byte
	copy(buf[:], label)
	sb.volumeName = buf
}
