package ext2

import "encoding/binary"

// indirectionCache is Component G: three slots, one per indirection depth
// (L1/L2/L3) visited while walking a single path from an inode's
// single/double/triple indirect pointer down to a data block. Each slot
// remembers the absolute block address of one indirection block plus its
// decoded pointer array, so a multi-block write loop that keeps landing in
// the same indirect block does not re-read it every call.
//
// The cache is valid only for the duration of one top-level public
// operation: any write anywhere in the tree can invalidate arbitrary
// slots, so every public operation starts with a fresh (zero-value) cache
// rather than reusing one across calls.
type indirectionCache struct {
	slots [3]cacheSlot
}

type cacheSlot struct {
	valid bool
	addr  uint32
	ptrs  []uint32
}

func newIndirectionCache() *indirectionCache {
	return &indirectionCache{}
}

// blockRange identifies which of the four contiguous ranges in the spec's
// block-map table a block offset falls into.
type blockRange int

const (
	rangeDirect blockRange = iota
	rangeSingle
	rangeDouble
	rangeTriple
	rangeTooBig
)

// classify returns which range blockOff falls in and the index path within
// it (1 entry for single, 2 for double, 3 for triple; empty for direct).
func classify(sb *superblock, blockOff uint64) (blockRange, []uint32) {
	p := uint64(sb.pointersPerBlock())
	switch {
	case blockOff < directPointers:
		return rangeDirect, []uint32{uint32(blockOff)}
	case blockOff < directPointers+p:
		return rangeSingle, []uint32{uint32(blockOff - directPointers)}
	case blockOff < directPointers+p+p*p:
		idx := blockOff - directPointers - p
		return rangeDouble, []uint32{uint32(idx / p), uint32(idx % p)}
	case blockOff < directPointers+p+p*p+p*p*p:
		idx := blockOff - directPointers - p - p*p
		return rangeTriple, []uint32{uint32(idx / (p * p)), uint32(idx / p % p), uint32(idx % p)}
	default:
		return rangeTooBig, nil
	}
}

func (v *volume) readPointerBlock(addr uint32) ([]uint32, error) {
	buf, err := v.readBlock(addr)
	if err != nil {
		return nil, err
	}
	n := v.sb.pointersPerBlock()
	ptrs := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		ptrs[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return ptrs, nil
}

func (v *volume) writePointerBlock(addr uint32, ptrs []uint32) error {
	buf := make([]byte, v.sb.blockSize())
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], p)
	}
	return v.writeBlock(addr, buf)
}

// loadSlot returns the decoded pointer array for indirection block addr at
// the given depth (1-based: 1=L1, 2=L2, 3=L3), filling the cache slot on a
// miss.
func (v *volume) loadSlot(cache *indirectionCache, depth int, addr uint32) ([]uint32, error) {
	slot := &cache.slots[depth-1]
	if slot.valid && slot.addr == addr {
		return slot.ptrs, nil
	}
	ptrs, err := v.readPointerBlock(addr)
	if err != nil {
		return nil, err
	}
	slot.valid = true
	slot.addr = addr
	slot.ptrs = ptrs
	return ptrs, nil
}

func (v *volume) storeSlot(cache *indirectionCache, depth int, addr uint32, idx uint32, value uint32) error {
	ptrs, err := v.loadSlot(cache, depth, addr)
	if err != nil {
		return err
	}
	ptrs[idx] = value
	return v.writePointerBlock(addr, ptrs)
}

// resolveBlock is Component F: translate an inode-relative block offset to
// an absolute device block number. When mayAlloc is true (the write path's
// inode_data_may_alloc), a zero pointer anywhere on the path is replaced by
// a freshly allocated, zeroed block. A new pointer stored inside an
// indirection block is written to disk before returning; a new direct or
// top-level indirect pointer only changes the in-memory inode, which the
// caller writes back. The indirection blocks it allocates are zeroed too (a prior
// implementation only zeroed leaf data blocks, leaving stale bytes that
// would misread as bogus pointers).
func (v *volume) resolveBlock(i *inode, blockOff uint64, mayAlloc bool, cache *indirectionCache) (uint32, error) {
	rng, indices := classify(v.sb, blockOff)

	switch rng {
	case rangeTooBig:
		return 0, newError("resolveBlock", KindFileTooBig)
	case rangeDirect:
		idx := indices[0]
		if i.direct[idx] == 0 {
			if !mayAlloc {
				return 0, newError("resolveBlock", KindBadBlock)
			}
			nb, err := v.allocBlock()
			if err != nil {
				return 0, err
			}
			i.direct[idx] = nb
		}
		return i.direct[idx], nil
	case rangeSingle:
		return v.resolveIndirect(&i.singleIndirect, indices, 1, mayAlloc, cache)
	case rangeDouble:
		return v.resolveIndirect(&i.doubleIndirect, indices, 1, mayAlloc, cache)
	case rangeTriple:
		return v.resolveIndirect(&i.tripleIndirect, indices, 1, mayAlloc, cache)
	}
	return 0, newError("resolveBlock", KindBadBlock)
}

// resolveIndirect walks indices starting from the block number stored in
// *top (the inode's single/double/triple indirect field), allocating as it
// goes when mayAlloc is set, and returns the final data block number.
func (v *volume) resolveIndirect(top *uint32, indices []uint32, depth int, mayAlloc bool, cache *indirectionCache) (uint32, error) {
	if *top == 0 {
		if !mayAlloc {
			return 0, newError("resolveBlock", KindBadBlock)
		}
		nb, err := v.allocBlock()
		if err != nil {
			return 0, err
		}
		*top = nb
	}

	cur := *top
	for depthIdx := 0; depthIdx < len(indices); depthIdx++ {
		idx := indices[depthIdx]
		ptrs, err := v.loadSlot(cache, depth+depthIdx, cur)
		if err != nil {
			return 0, err
		}
		next := ptrs[idx]
		last := depthIdx == len(indices)-1

		if next == 0 {
			if !mayAlloc {
				return 0, newError("resolveBlock", KindBadBlock)
			}
			nb, err := v.allocBlock()
			if err != nil {
				return 0, err
			}
			next = nb
			if err := v.storeSlot(cache, depth+depthIdx, cur, idx, next); err != nil {
				return 0, err
			}
		}

		if last {
			return next, nil
		}
		cur = next
	}
	return 0, newError("resolveBlock", KindBadBlock)
}

// freeBlockAt is the freeing half of Component F: clear the leaf pointer
// for blockOff and free that block. If that was the last (index-0) entry
// remaining in its indirection block — guaranteed by the caller always
// truncating from the highest block offset down — the indirection block
// itself is freed too and its own parent pointer cleared, propagating up
// to three levels.
func (v *volume) freeBlockAt(i *inode, blockOff uint64) error {
	rng, indices := classify(v.sb, blockOff)

	switch rng {
	case rangeTooBig:
		return newError("truncate", KindFileTooBig)
	case rangeDirect:
		idx := indices[0]
		if i.direct[idx] != 0 {
			if err := v.freeBlock(i.direct[idx]); err != nil {
				return err
			}
			i.direct[idx] = 0
		}
		return nil
	case rangeSingle:
		return v.freeIndirectPath(&i.singleIndirect, indices)
	case rangeDouble:
		return v.freeIndirectPath(&i.doubleIndirect, indices)
	case rangeTriple:
		return v.freeIndirectPath(&i.tripleIndirect, indices)
	}
	return nil
}

func (v *volume) freeIndirectPath(top *uint32, indices []uint32) error {
	if *top == 0 {
		return nil
	}
	freedSelf, err := v.freeIndirectRecursive(*top, indices, 0)
	if err != nil {
		return err
	}
	if freedSelf {
		*top = 0
	}
	return nil
}

func (v *volume) freeIndirectRecursive(blockAddr uint32, indices []uint32, depth int) (freedSelf bool, err error) {
	idx := indices[depth]
	ptrs, err := v.readPointerBlock(blockAddr)
	if err != nil {
		return false, err
	}

	if depth == len(indices)-1 {
		leaf := ptrs[idx]
		if leaf != 0 {
			if err := v.freeBlock(leaf); err != nil {
				return false, err
			}
			ptrs[idx] = 0
			if err := v.writePointerBlock(blockAddr, ptrs); err != nil {
				return false, err
			}
		}
	} else {
		child := ptrs[idx]
		childGone := child == 0
		if child != 0 {
			childFreed, err := v.freeIndirectRecursive(child, indices, depth+1)
			if err != nil {
				return false, err
			}
			if childFreed {
				ptrs[idx] = 0
				if err := v.writePointerBlock(blockAddr, ptrs); err != nil {
					return false, err
				}
				childGone = true
			}
		}
		if !childGone {
			return false, nil
		}
	}

	if idx == 0 {
		if err := v.freeBlock(blockAddr); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
