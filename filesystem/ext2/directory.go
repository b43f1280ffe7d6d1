package ext2

import "encoding/binary"

// direntHeaderSize is the fixed portion of a directory entry: inode (4),
// rec_len (2), name_len (1), type indicator / high byte of name_len (1).
const direntHeaderSize = 8

// direntType mirrors the inode file-type values into the one-byte
// directory-entry type indicator used when the filetype feature is set.
type direntType uint8

const (
	direntTypeUnknown  direntType = 0
	direntTypeRegular  direntType = 1
	direntTypeDir      direntType = 2
	direntTypeChardev  direntType = 3
	direntTypeBlockdev direntType = 4
	direntTypeFifo     direntType = 5
	direntTypeSocket   direntType = 6
	direntTypeSymlink  direntType = 7
)

func direntTypeFor(ft fileType) direntType {
	switch ft {
	case fileTypeRegularFile:
		return direntTypeRegular
	case fileTypeDirectory:
		return direntTypeDir
	case fileTypeCharacterDevice:
		return direntTypeChardev
	case fileTypeBlockDevice:
		return direntTypeBlockdev
	case fileTypeFifo:
		return direntTypeFifo
	case fileTypeSocket:
		return direntTypeSocket
	case fileTypeSymbolicLink:
		return direntTypeSymlink
	default:
		return direntTypeUnknown
	}
}

// dirent is the in-memory decoding of one directory-entry record. offset is
// not part of the on-disk bytes; it is the entry's logical byte position
// within the directory inode's data, kept around so callers can rewrite it
// in place.
type dirent struct {
	inodeNum uint32
	recLen   uint16
	nameLen  uint8
	etype    direntType
	name     string
	offset   uint64
}

// isHole reports whether this slot is a skippable gap (inode == 0).
func (e *dirent) isHole() bool { return e.inodeNum == 0 }

func align4(n uint64) uint64 { return (n + 3) &^ 3 }

func alignToBlock(n, blockSize uint64) uint64 {
	return (n + blockSize - 1) &^ (blockSize - 1)
}

// direntActualSize is 8 + name_len rounded up to a 4-byte boundary: the space an
// entry needs if it were not padded out to reach a block/next-entry
// boundary.
func direntActualSize(nameLen int) uint64 {
	return align4(uint64(direntHeaderSize + nameLen))
}

func direntFromBytes(b []byte, hasFileType bool, offset uint64) dirent {
	nameLen := b[6]
	e := dirent{
		inodeNum: binary.LittleEndian.Uint32(b[0:4]),
		recLen:   binary.LittleEndian.Uint16(b[4:6]),
		nameLen:  nameLen,
		offset:   offset,
	}
	if hasFileType {
		e.etype = direntType(b[7])
	}
	if direntHeaderSize+int(nameLen) <= len(b) {
		e.name = string(b[direntHeaderSize : direntHeaderSize+int(nameLen)])
	}
	return e
}

func (e *dirent) toBytes(hasFileType bool) []byte {
	buf := make([]byte, e.recLen)
	binary.LittleEndian.PutUint32(buf[0:4], e.inodeNum)
	binary.LittleEndian.PutUint16(buf[4:6], e.recLen)
	buf[6] = e.nameLen
	if hasFileType {
		buf[7] = uint8(e.etype)
	}
	copy(buf[direntHeaderSize:direntHeaderSize+int(e.nameLen)], e.name)
	return buf
}

// readEntryAt decodes the single directory entry whose record starts at
// logical offset off: its 2-byte rec_len tells us how many more bytes to
// read.
func (v *volume) readEntryAt(dirInode *inode, off uint64, cache *indirectionCache) (dirent, error) {
	hdr := make([]byte, direntHeaderSize)
	if _, err := v.inodeReadAt(dirInode, off, hdr, cache); err != nil {
		return dirent{}, err
	}
	recLen := binary.LittleEndian.Uint16(hdr[4:6])
	if recLen < direntHeaderSize {
		return dirent{}, newError("readEntryAt", KindInvalidFileImage)
	}
	buf := make([]byte, recLen)
	if _, err := v.inodeReadAt(dirInode, off, buf, cache); err != nil {
		return dirent{}, err
	}
	return direntFromBytes(buf, v.sb.hasFileType(), off), nil
}

func (v *volume) writeEntryAt(dirInode *inode, e dirent, cache *indirectionCache) error {
	buf := e.toBytes(v.sb.hasFileType())
	_, err := v.inodeWriteAt(dirInode, e.offset, buf, cache)
	return err
}

// readAllRecords walks the full rec_len chain of a directory, including
// holes (inode == 0), in logical order. Iteration terminates when the
// running offset reaches the directory's size, per the spec's Component H
// iterator contract.
func (v *volume) readAllRecords(dirInode *inode, cache *indirectionCache) ([]dirent, error) {
	var all []dirent
	size := dirInode.size()
	var off uint64
	for off < size {
		e, err := v.readEntryAt(dirInode, off, cache)
		if err != nil {
			return nil, err
		}
		all = append(all, e)
		if e.recLen == 0 {
			break
		}
		off += uint64(e.recLen)
	}
	return all, nil
}

// readDirEntries returns every occupied (non-hole) entry, which is what
// read_dir and directory lookups actually want.
func (v *volume) readDirEntries(dirInode *inode, cache *indirectionCache) ([]dirent, error) {
	all, err := v.readAllRecords(dirInode, cache)
	if err != nil {
		return nil, err
	}
	out := make([]dirent, 0, len(all))
	for _, e := range all {
		if !e.isHole() {
			out = append(out, e)
		}
	}
	return out, nil
}

// findEntry looks up name among a directory's occupied entries.
func (v *volume) findEntry(dirInode *inode, name string, cache *indirectionCache) (dirent, bool, error) {
	entries, err := v.readDirEntries(dirInode, cache)
	if err != nil {
		return dirent{}, false, err
	}
	for _, e := range entries {
		if e.name == name {
			return e, true, nil
		}
	}
	return dirent{}, false, nil
}

// lastRecordOffset returns the offset of the last record in the chain
// (occupied or hole) — the one whose span reaches the directory's size.
func (v *volume) lastRecordOffset(dirInode *inode, cache *indirectionCache) (uint64, error) {
	size := dirInode.size()
	var off uint64
	for {
		e, err := v.readEntryAt(dirInode, off, cache)
		if err != nil {
			return 0, err
		}
		if off+uint64(e.recLen) >= size || e.recLen == 0 {
			return off, nil
		}
		off += uint64(e.recLen)
	}
}

// pushEntry is Component H's push_entry: append a new directory entry,
// splitting the current last entry's rec_len or opening a fresh block as
// needed, and always leaving the new entry as the last-in-block (rec_len
// extended to the next block boundary).
func (v *volume) pushEntry(dirInode *inode, inodeNum uint32, name string, etype direntType, cache *indirectionCache) error {
	if len(name) == 0 {
		return newError("pushEntry", KindStringEmpty)
	}
	if len(name) > 255 {
		return newError("pushEntry", KindNameTooLong)
	}
	blockSize := uint64(v.sb.blockSize())
	needed := direntActualSize(len(name))

	size := dirInode.size()
	if size == 0 {
		e := dirent{inodeNum: inodeNum, nameLen: uint8(len(name)), etype: etype, name: name, offset: 0}
		e.recLen = uint16(alignToBlock(1, blockSize))
		if err := v.writeEntryAt(dirInode, e, cache); err != nil {
			return err
		}
		dirInode.updateSize(uint64(e.recLen), v.sb.blockSize())
		return v.writeInode(dirInode)
	}

	lastOff, err := v.lastRecordOffset(dirInode, cache)
	if err != nil {
		return err
	}
	last, err := v.readEntryAt(dirInode, lastOff, cache)
	if err != nil {
		return err
	}

	actual := direntActualSize(int(last.nameLen))
	padded := align4(lastOff + actual)
	sameBlock := padded/blockSize == lastOff/blockSize
	fitsInBlock := sameBlock && (padded%blockSize)+needed <= blockSize

	var newOff uint64
	if fitsInBlock {
		newOff = padded
	} else {
		newOff = lastOff + uint64(last.recLen)
	}
	last.recLen = uint16(newOff - lastOff)
	if err := v.writeEntryAt(dirInode, last, cache); err != nil {
		return err
	}

	next := dirent{inodeNum: inodeNum, nameLen: uint8(len(name)), etype: etype, name: name, offset: newOff}
	next.recLen = uint16(alignToBlock(newOff+1, blockSize) - newOff)
	if err := v.writeEntryAt(dirInode, next, cache); err != nil {
		return err
	}

	newSize := newOff + uint64(next.recLen)
	if newSize > dirInode.size() {
		dirInode.updateSize(newSize, v.sb.blockSize())
		return v.writeInode(dirInode)
	}
	return nil
}

// deleteEntry is Component H's delete_entry. When the removed entry was the
// sole occupant of the directory's trailing block, that block is freed
// outright; otherwise it is absorbed into its predecessor (if any) or left
// as an in-place hole.
func (v *volume) deleteEntry(dirInode *inode, name string, cache *indirectionCache) error {
	blockSize := uint64(v.sb.blockSize())
	records, err := v.readAllRecords(dirInode, cache)
	if err != nil {
		return err
	}
	idx := -1
	for i, e := range records {
		if !e.isHole() && e.name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newError("deleteEntry", KindNoEntry)
	}
	target := records[idx]
	blockStart := (target.offset / blockSize) * blockSize
	blockEnd := blockStart + blockSize
	firstInBlock := target.offset == blockStart
	lastInBlock := target.offset+uint64(target.recLen) == blockEnd

	if firstInBlock {
		target.inodeNum = 0
		target.name = ""
		target.nameLen = 0
		if err := v.writeEntryAt(dirInode, target, cache); err != nil {
			return err
		}
		if lastInBlock && blockEnd == dirInode.size() {
			return v.truncateInode(dirInode, blockStart)
		}
		return nil
	}

	pred := records[idx-1]
	if lastInBlock {
		pred.recLen = uint16(blockEnd - pred.offset)
	} else {
		pred.recLen = uint16((target.offset + uint64(target.recLen)) - pred.offset)
	}
	return v.writeEntryAt(dirInode, pred, cache)
}

// initDirectoryBlock creates a brand-new directory's first block: a single
// entry '.' spanning the gap to '..', followed by '..' as the last-in-block
// entry. Used by create_dir, which knows both inode numbers up front and so
// does not need two separate pushEntry calls (each would try to locate a
// "last entry" in an empty directory).
func (v *volume) initDirectoryBlock(dirInode *inode, selfIno, parentIno uint32, cache *indirectionCache) error {
	blockSize := uint64(v.sb.blockSize())
	dot := dirent{inodeNum: selfIno, nameLen: 1, etype: direntTypeDir, name: ".", offset: 0}
	dot.recLen = uint16(direntActualSize(1))
	dotdot := dirent{inodeNum: parentIno, nameLen: 2, etype: direntTypeDir, name: "..", offset: uint64(dot.recLen)}
	dotdot.recLen = uint16(alignToBlock(uint64(dot.recLen)+1, blockSize) - uint64(dot.recLen))

	if err := v.writeEntryAt(dirInode, dot, cache); err != nil {
		return err
	}
	if err := v.writeEntryAt(dirInode, dotdot, cache); err != nil {
		return err
	}
	dirInode.updateSize(uint64(dotdot.offset)+uint64(dotdot.recLen), v.sb.blockSize())
	return v.writeInode(dirInode)
}

// isDirEmpty verifies the rigorous invariant a prior implementation skipped
// (it only checked entry count <= 2): every occupied entry must be exactly
// "." or "..".
func (v *volume) isDirEmpty(dirInode *inode, cache *indirectionCache) (bool, error) {
	entries, err := v.readDirEntries(dirInode, cache)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.name != "." && e.name != ".." {
			return false, nil
		}
	}
	return true, nil
}
