package ext2

// inodeReadAt and inodeWriteAt are the byte-addressed read/write primitives
// every higher operation (directory chain, file handles, symlink data) is
// built on: they translate a logical offset within an inode's data to
// device blocks via Component F's resolveBlock, one block-sized chunk at a
// time, and copy into/out of the chunk's in-range slice.

// inodeReadAt reads up to len(buf) bytes starting at logical offset off,
// stopping at the inode's current size (short read, not an error, mirroring
// read(2) semantics used by the rest of this package).
func (v *volume) inodeReadAt(i *inode, off uint64, buf []byte, cache *indirectionCache) (int, error) {
	size := i.size()
	if off >= size {
		return 0, nil
	}
	want := uint64(len(buf))
	if off+want > size {
		want = size - off
	}
	blockSize := uint64(v.sb.blockSize())

	var read uint64
	for read < want {
		cur := off + read
		blockOff := cur / blockSize
		inBlock := cur % blockSize
		chunk := blockSize - inBlock
		remaining := want - read
		if chunk > remaining {
			chunk = remaining
		}

		blockNum, err := v.resolveBlock(i, blockOff, false, cache)
		if err != nil {
			return int(read), err
		}
		blockData, err := v.readBlock(blockNum)
		if err != nil {
			return int(read), err
		}
		copy(buf[read:read+chunk], blockData[inBlock:inBlock+chunk])
		read += chunk
	}
	return int(read), nil
}

// inodeWriteAt writes len(buf) bytes at logical offset off, allocating and
// zeroing new blocks (and indirection blocks) as needed, and growing the
// inode's recorded size when the write extends past it. The inode record
// itself is persisted by the caller once the whole logical operation
// (which may span several inodeWriteAt calls) is complete, except that a
// size extension is written back immediately so a crash mid-write never
// reports a size larger than the data actually committed.
//
// A write starting past the current size is never allowed to leave a hole:
// every whole block between the old size and off is allocated (zeroed by
// allocBlock) before buf is written, so invariant 2 (every block-aligned
// offset below size resolves to a real block) holds for the whole file,
// not just the bytes buf touches.
func (v *volume) inodeWriteAt(i *inode, off uint64, buf []byte, cache *indirectionCache) (int, error) {
	blockSize := uint64(v.sb.blockSize())
	want := uint64(len(buf))
	var written uint64

	if off > i.size() {
		if err := v.fillHole(i, i.size(), off, cache); err != nil {
			return 0, err
		}
	}

	for written < want {
		cur := off + written
		blockOff := cur / blockSize
		inBlock := cur % blockSize
		chunk := blockSize - inBlock
		remaining := want - written
		if chunk > remaining {
			chunk = remaining
		}

		blockNum, err := v.resolveBlock(i, blockOff, true, cache)
		if err != nil {
			return int(written), err
		}
		blockData, err := v.readBlock(blockNum)
		if err != nil {
			return int(written), err
		}
		copy(blockData[inBlock:inBlock+chunk], buf[written:written+chunk])
		if err := v.writeBlock(blockNum, blockData); err != nil {
			return int(written), err
		}
		written += chunk

		if newSize := cur + chunk; newSize > i.size() {
			i.updateSize(newSize, v.sb.blockSize())
			if err := v.writeInode(i); err != nil {
				return int(written), err
			}
		}
	}
	return int(written), nil
}

// fillHole allocates every whole block strictly between oldSize and off,
// leaving its content zero (allocBlock always zeroes a fresh block) and
// its pointer persisted. The partial block straddling oldSize, if any, is
// left alone: its tail already reads as zero since the block was zeroed
// when first allocated. The partial block straddling off, if any, is left
// for inodeWriteAt's own loop to allocate, since it is about to be
// written anyway.
func (v *volume) fillHole(i *inode, oldSize, off uint64, cache *indirectionCache) error {
	blockSize := uint64(v.sb.blockSize())
	firstHoleBlock := (oldSize + blockSize - 1) / blockSize
	lastHoleBlock := off / blockSize
	for b := firstHoleBlock; b < lastHoleBlock; b++ {
		if _, err := v.resolveBlock(i, b, true, cache); err != nil {
			return err
		}
	}
	return nil
}

// truncateInode implements Component I's truncate: free every data block
// (and indirection block made empty by that freeing) from the current size
// down to newSize, then persist the shrunk size and recomputed sector
// count. Growing a file never allocates here: a newSize at or above the
// current size only updates the size fields and sector count.
func (v *volume) truncateInode(i *inode, newSize uint64) error {
	blockSize := uint64(v.sb.blockSize())
	oldSize := i.size()
	if newSize >= oldSize {
		i.updateSize(newSize, v.sb.blockSize())
		return v.writeInode(i)
	}

	if i.isSymlink() && i.isFastSymlink() {
		i.updateSize(newSize, v.sb.blockSize())
		return v.writeInode(i)
	}

	lastBlock := (oldSize - 1) / blockSize
	var firstFreedBlock uint64
	if newSize == 0 {
		firstFreedBlock = 0
	} else {
		firstFreedBlock = (newSize + blockSize - 1) / blockSize
	}

	for blockOff := lastBlock + 1; blockOff > firstFreedBlock; {
		blockOff--
		if err := v.freeBlockAt(i, blockOff); err != nil {
			return err
		}
	}

	i.updateSize(newSize, v.sb.blockSize())
	return v.writeInode(i)
}
