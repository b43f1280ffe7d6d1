package ext2

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mprimi/ext2fs/backend"
)

// reservedInodeCount is the number of inode numbers (1..10) that version-0
// volumes set aside before the first usable inode (11, goodOldFirstIno).
// Inode 2 (rootInodeNumber) falls inside this reserved range.
const reservedInodeCount = 10

// defaultInodeRatio is bytes-per-inode when FormatOptions.InodeRatio is 0,
// matching the teacher's DefaultInodeRatio for ext4.
const defaultInodeRatio = 16384

// FormatOptions configures Create, playing the role Params plays for the
// teacher's ext4.Create: every field has a workable zero value.
type FormatOptions struct {
	// BlockSize must be 1024, 2048, or 4096; 0 selects 1024.
	BlockSize uint32
	// InodeRatio is bytes of volume space per inode; 0 selects 16384.
	InodeRatio int64
	// ReservedBlocksPercent is the fraction of blocks set aside in
	// s_r_blocks_count; 0 selects 5, matching mke2fs's default.
	ReservedBlocksPercent uint8
	// VolumeName is copied into the 16-byte s_volume_name field, truncated
	// if necessary.
	VolumeName string
	// UUID seeds s_uuid; a random one is generated if nil.
	UUID *uuid.UUID
}

// ReadOptions configures Read.
type ReadOptions struct {
	// ReadOnly rejects any mutating operation on the returned FileSystem.
	ReadOnly bool
}

func log2BlockSize(blockSize uint32) (uint32, error) {
	switch blockSize {
	case 1024:
		return 0, nil
	case 2048:
		return 1, nil
	case 4096:
		return 2, nil
	default:
		return 0, fmt.Errorf("ext2: unsupported block size %d, must be 1024, 2048, or 4096", blockSize)
	}
}

// Create formats size bytes of b as a fresh ext2 volume and returns a
// FileSystem open on it. The on-disk layout mirrors the classic (non
// sparse-super) ext2 scheme: a single superblock/group-descriptor copy in
// group 0, followed by each group's own block bitmap, inode bitmap, and
// inode table, in that order.
func Create(b backend.Storage, size int64, opts *FormatOptions) (*FileSystem, error) {
	if opts == nil {
		opts = &FormatOptions{}
	}
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = 1024
	}
	logBlockSize, err := log2BlockSize(blockSize)
	if err != nil {
		return nil, err
	}
	writable, err := b.Writable()
	if err != nil {
		return nil, err
	}

	var firstDataBlock uint32
	if blockSize == 1024 {
		firstDataBlock = 1
	}
	blocksPerGroup := blockSize * 8
	totalBlocksRequested := uint32(size) / blockSize
	if totalBlocksRequested <= firstDataBlock {
		return nil, fmt.Errorf("ext2: requested size %d is too small for block size %d", size, blockSize)
	}
	groupCount := ceilDiv(totalBlocksRequested-firstDataBlock, blocksPerGroup)
	blocksCount := firstDataBlock + groupCount*blocksPerGroup

	inodeRatio := opts.InodeRatio
	if inodeRatio <= 0 {
		inodeRatio = defaultInodeRatio
	}
	totalInodesWanted := uint32((int64(blocksCount) * int64(blockSize)) / inodeRatio)
	if totalInodesWanted == 0 {
		totalInodesWanted = 1
	}
	inodesPerGroup := ceilDiv(ceilDiv(totalInodesWanted, groupCount), 8) * 8
	inodesCount := inodesPerGroup * groupCount
	inodeSize := goodOldInodeSize
	inodeTableBlocksPerGroup := ceilDiv(uint32(inodeSize)*inodesPerGroup, blockSize)

	sb := &superblock{
		inodesCount:     inodesCount,
		blocksCount:     blocksCount,
		firstDataBlock:  firstDataBlock,
		logBlockSize:    logBlockSize,
		blocksPerGroup:  blocksPerGroup,
		inodesPerGroup:  inodesPerGroup,
		mtime:           inodeTimeNow(),
		wtime:           inodeTimeNow(),
		state:           1, // clean
		errors:          1, // continue on error
		lastcheck:       inodeTimeNow(),
		revLevel:        revLevelDynamic,
		firstIno:        goodOldFirstIno,
		inodeSize:       inodeSize,
		featureIncompat: featureIncompatFiletype,
	}
	sb.rBlocksCount = blocksCount / 100 * uint32(reservedPercentOrDefault(opts.ReservedBlocksPercent))
	if opts.UUID != nil {
		sb.uuid = *opts.UUID
	} else {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, wrapError("create", KindUnknownIO, err)
		}
		sb.uuid = id
	}
	sb.setLabel(opts.VolumeName)

	gdtBlocks := ceilDiv(groupCount*groupDescriptorSize, blockSize)

	groups := make([]*groupDescriptor, groupCount)
	v := &volume{backend: b, writable: writable, sb: sb, groups: groups, log: newLogger()}

	for g := uint32(0); g < groupCount; g++ {
		var metaStart uint32
		if g == 0 {
			metaStart = sb.gdtBlock() + gdtBlocks
		} else {
			metaStart = firstDataBlock + g*blocksPerGroup
		}
		gd := &groupDescriptor{
			blockBitmap: metaStart,
			inodeBitmap: metaStart + 1,
			inodeTable:  metaStart + 2,
		}
		groups[g] = gd
	}

	// Mark reserved metadata blocks used in each group's own block bitmap,
	// and compute the resulting free-block counters before anything else
	// is allocated through the ordinary allocator path.
	var totalFreeBlocks, totalFreeInodes uint32
	for g := uint32(0); g < groupCount; g++ {
		gd := groups[g]
		groupStart := firstDataBlock + g*blocksPerGroup
		reservedEnd := gd.inodeTable + inodeTableBlocksPerGroup
		reservedCount := reservedEnd - groupStart

		bm := newBitmapView(make([]byte, blockSize))
		for rel := uint32(0); rel < reservedCount; rel++ {
			if err := bm.set(int(rel)); err != nil {
				return nil, err
			}
		}
		if err := v.writeBlockBitmap(g, bm); err != nil {
			return nil, err
		}

		ibm := newBitmapView(make([]byte, blockSize))
		if g == 0 {
			for n := 0; n < reservedInodeCount; n++ {
				if err := ibm.set(n); err != nil {
					return nil, err
				}
			}
		}
		if err := v.writeInodeBitmap(g, ibm); err != nil {
			return nil, err
		}

		// Zero only the inode table's contents; the superblock, GDT, and
		// the two bitmap blocks just written above are not touched here.
		for blk := gd.inodeTable; blk < reservedEnd; blk++ {
			if err := v.zeroBlock(blk); err != nil {
				return nil, err
			}
		}

		gd.freeBlocksCount = uint16(blocksPerGroup - reservedCount)
		if g == 0 {
			gd.freeInodesCount = uint16(inodesPerGroup - reservedInodeCount)
		} else {
			gd.freeInodesCount = uint16(inodesPerGroup)
		}
		totalFreeBlocks += uint32(gd.freeBlocksCount)
		totalFreeInodes += uint32(gd.freeInodesCount)

		if err := v.writeGroupDescriptor(g); err != nil {
			return nil, err
		}
	}
	sb.freeBlocksCount = totalFreeBlocks
	sb.freeInodesCount = totalFreeInodes
	if err := v.writeSuperblock(); err != nil {
		return nil, err
	}

	// Root directory: inode 2, permissions rwxr-xr-x, two hard links (its
	// own "." and "..", both written below by initDirectoryBlock).
	root := &inode{
		number:     rootInodeNumber,
		fileType:   fileTypeDirectory,
		permOwner:  parseOwnerPermissions(0o755),
		permGroup:  parseGroupPermissions(0o755),
		permOther:  parseOtherPermissions(0o755),
		hardLinks:  2,
		accessTime: inodeTimeNow(),
		changeTime: inodeTimeNow(),
		modifyTime: inodeTimeNow(),
	}
	if err := v.writeInode(root); err != nil {
		return nil, err
	}
	cache := newIndirectionCache()
	if err := v.initDirectoryBlock(root, rootInodeNumber, rootInodeNumber, cache); err != nil {
		return nil, err
	}
	if err := v.adjustUsedDirsCount(rootInodeNumber, 1); err != nil {
		return nil, err
	}

	return &FileSystem{v: v}, nil
}

func reservedPercentOrDefault(p uint8) uint8 {
	if p == 0 {
		return 5
	}
	return p
}

// Read opens an existing ext2 volume on b, parsing its superblock and full
// group descriptor table.
func Read(b backend.Storage, opts *ReadOptions) (*FileSystem, error) {
	if opts == nil {
		opts = &ReadOptions{}
	}
	sbBuf := make([]byte, superblockSize)
	if _, err := b.ReadAt(sbBuf, superblockOffset); err != nil {
		return nil, wrapError("read", KindUnknownIO, err)
	}
	sb, err := superblockFromBytes(sbBuf)
	if err != nil {
		return nil, wrapError("read", KindInvalidFileImage, err)
	}

	v := &volume{backend: b, sb: sb, readOnly: opts.ReadOnly, log: newLogger()}
	if !opts.ReadOnly {
		w, err := b.Writable()
		if err != nil {
			return nil, err
		}
		v.writable = w
	}

	groupCount := sb.groupCount()
	groups := make([]*groupDescriptor, groupCount)
	base := int64(sb.gdtBlock()) * int64(sb.blockSize())
	for g := uint32(0); g < groupCount; g++ {
		buf := make([]byte, groupDescriptorSize)
		if err := v.readAt(base+int64(g)*groupDescriptorSize, buf); err != nil {
			return nil, err
		}
		groups[g] = groupDescriptorFromBytes(buf)
	}
	v.groups = groups

	return &FileSystem{v: v}, nil
}
