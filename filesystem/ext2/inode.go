package ext2

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mprimi/ext2fs/util/timestamp"
)

// fileType occupies the high 4 bits of the inode's mode word.
type fileType uint16

const (
	fileTypeFifo            fileType = 0x1000
	fileTypeCharacterDevice fileType = 0x2000
	fileTypeDirectory       fileType = 0x4000
	fileTypeBlockDevice     fileType = 0x6000
	fileTypeRegularFile     fileType = 0x8000
	fileTypeSymbolicLink    fileType = 0xA000
	fileTypeSocket          fileType = 0xC000
)

const (
	filePermissionsOwnerExecute uint16 = 0x40
	filePermissionsOwnerWrite   uint16 = 0x80
	filePermissionsOwnerRead    uint16 = 0x100
	filePermissionsGroupExecute uint16 = 0x8
	filePermissionsGroupWrite   uint16 = 0x10
	filePermissionsGroupRead    uint16 = 0x20
	filePermissionsOtherExecute uint16 = 0x1
	filePermissionsOtherWrite   uint16 = 0x2
	filePermissionsOtherRead    uint16 = 0x4
	filePermissionsSticky       uint16 = 0x200
	filePermissionsGroupSetgid  uint16 = 0x400
	filePermissionsOwnerSetuid  uint16 = 0x800
)

const permissionMask uint16 = 0o777
const specialMask uint16 = filePermissionsSticky | filePermissionsGroupSetgid | filePermissionsOwnerSetuid

// filePermissions models one of owner/group/other's rwx+special bits.
type filePermissions struct {
	read    bool
	write   bool
	execute bool
	special bool
}

// inodeFlag bits in the inode's i_flags word. Only a handful are meaningful
// to this engine; the rest are preserved verbatim across read/write so a
// volume produced by a real mke2fs round-trips untouched.
type inodeFlag uint32

const (
	inodeFlagSecureDeletion inodeFlag = 0x1
	inodeFlagAppendOnly     inodeFlag = 0x20
	inodeFlagImmutable      inodeFlag = 0x10
)

// directPointers is the count of direct block-pointer slots in an inode.
const directPointers = 12

// fastSymlinkMax is the longest symlink target storable inline in the
// inode's block-pointer slots (15 slots * 4 bytes).
const fastSymlinkMax = 60

// inode is the in-memory decoding of one 128+-byte ext2 inode record.
type inode struct {
	number           uint32
	fileType         fileType
	permOwner        filePermissions
	permGroup        filePermissions
	permOther        filePermissions
	uid              uint16
	gid              uint16
	sizeLow          uint32
	sizeHigh         uint32
	accessTime       uint32
	changeTime       uint32
	modifyTime       uint32
	deletionTime     uint32
	hardLinks        uint16
	diskSectors      uint32
	flags            uint32
	direct           [directPointers]uint32
	singleIndirect   uint32
	doubleIndirect   uint32
	tripleIndirect   uint32
	generation       uint32
	fileACL          uint32
	fragmentAddr     uint32
	// linkTarget is populated only for symlinks whose target is <= 60
	// bytes, aliasing the direct/indirect pointer slots (fast symlink).
	linkTarget string
}

func (i *inode) isDirectory() bool   { return i.fileType == fileTypeDirectory }
func (i *inode) isRegularFile() bool { return i.fileType == fileTypeRegularFile }
func (i *inode) isSymlink() bool     { return i.fileType == fileTypeSymbolicLink }

// isFastSymlink reports whether this symlink's target lives inline in the
// pointer slots rather than in an allocated data block.
func (i *inode) isFastSymlink() bool {
	return i.isSymlink() && i.size() <= fastSymlinkMax
}

func (i *inode) size() uint64 {
	if i.isDirectory() {
		return uint64(i.sizeLow)
	}
	return uint64(i.sizeLow) | (uint64(i.sizeHigh) << 32)
}

// updateSize sets the size fields and recomputes diskSectors following the
// addressing-range arithmetic in the spec (direct/single/double/triple).
func (i *inode) updateSize(newSize uint64, blockSize uint32) {
	i.sizeLow = uint32(newSize)
	i.sizeHigh = uint32(newSize >> 32)

	bs := uint64(blockSize)
	multiplier := bs / 512
	p := bs / 4

	if newSize == 0 {
		i.diskSectors = 0
		return
	}
	blockOff := (newSize - 1) / bs

	var blocks uint64
	offsetStart := uint64(0)
	offsetEnd := uint64(directPointers)
	if blockOff >= offsetStart {
		blocks = (blockOff + 1) * multiplier
	}
	offsetStart = offsetEnd
	offsetEnd += p
	if blockOff >= offsetStart {
		blocks += multiplier
	}
	offsetStart = offsetEnd
	offsetEnd += p * p
	if blockOff >= offsetStart {
		blocks += multiplier + ((blockOff-offsetStart)/p+1)*multiplier
	}
	offsetStart = offsetEnd
	if blockOff >= offsetStart {
		blocks += multiplier + ((blockOff-offsetStart)/(p*p)+1)*multiplier
	}
	i.diskSectors = uint32(blocks)
}

func (i *inode) permissionsToMode() os.FileMode {
	var mode os.FileMode
	switch i.fileType {
	case fileTypeDirectory:
		mode |= os.ModeDir
	case fileTypeSymbolicLink:
		mode |= os.ModeSymlink
	case fileTypeCharacterDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case fileTypeBlockDevice:
		mode |= os.ModeDevice
	case fileTypeFifo:
		mode |= os.ModeNamedPipe
	case fileTypeSocket:
		mode |= os.ModeSocket
	}
	if i.permOwner.read {
		mode |= 0o400
	}
	if i.permOwner.write {
		mode |= 0o200
	}
	if i.permOwner.execute {
		mode |= 0o100
	}
	if i.permOwner.special {
		mode |= os.ModeSetuid
	}
	if i.permGroup.read {
		mode |= 0o040
	}
	if i.permGroup.write {
		mode |= 0o020
	}
	if i.permGroup.execute {
		mode |= 0o010
	}
	if i.permGroup.special {
		mode |= os.ModeSetgid
	}
	if i.permOther.read {
		mode |= 0o004
	}
	if i.permOther.write {
		mode |= 0o002
	}
	if i.permOther.execute {
		mode |= 0o001
	}
	if i.permOther.special {
		mode |= os.ModeSticky
	}
	return mode
}

// modeWord packs the type-and-permission word written to offset 0 of the
// on-disk record.
func (i *inode) modeWord() uint16 {
	return uint16(i.fileType) | i.permOwner.toOwnerInt() | i.permGroup.toGroupInt() | i.permOther.toOtherInt()
}

// setModeBits updates permission and special bits from a POSIX mode,
// leaving the file type untouched (chmod never changes file type).
func (i *inode) setModeBits(mode uint16) {
	i.permOwner = parseOwnerPermissions(mode)
	i.permGroup = parseGroupPermissions(mode)
	i.permOther = parseOtherPermissions(mode)
}

func parseFileType(mode uint16) fileType {
	return fileType(mode & 0xF000)
}

func parseOwnerPermissions(mode uint16) filePermissions {
	return filePermissions{
		read:    mode&filePermissionsOwnerRead == filePermissionsOwnerRead,
		write:   mode&filePermissionsOwnerWrite == filePermissionsOwnerWrite,
		execute: mode&filePermissionsOwnerExecute == filePermissionsOwnerExecute,
		special: mode&filePermissionsOwnerSetuid == filePermissionsOwnerSetuid,
	}
}

func parseGroupPermissions(mode uint16) filePermissions {
	return filePermissions{
		read:    mode&filePermissionsGroupRead == filePermissionsGroupRead,
		write:   mode&filePermissionsGroupWrite == filePermissionsGroupWrite,
		execute: mode&filePermissionsGroupExecute == filePermissionsGroupExecute,
		special: mode&filePermissionsGroupSetgid == filePermissionsGroupSetgid,
	}
}

func parseOtherPermissions(mode uint16) filePermissions {
	return filePermissions{
		read:    mode&filePermissionsOtherRead == filePermissionsOtherRead,
		write:   mode&filePermissionsOtherWrite == filePermissionsOtherWrite,
		execute: mode&filePermissionsOtherExecute == filePermissionsOtherExecute,
		special: mode&filePermissionsSticky == filePermissionsSticky,
	}
}

func (fp filePermissions) toOwnerInt() uint16 {
	var mode uint16
	if fp.read {
		mode |= filePermissionsOwnerRead
	}
	if fp.write {
		mode |= filePermissionsOwnerWrite
	}
	if fp.execute {
		mode |= filePermissionsOwnerExecute
	}
	if fp.special {
		mode |= filePermissionsOwnerSetuid
	}
	return mode
}

func (fp filePermissions) toGroupInt() uint16 {
	var mode uint16
	if fp.read {
		mode |= filePermissionsGroupRead
	}
	if fp.write {
		mode |= filePermissionsGroupWrite
	}
	if fp.execute {
		mode |= filePermissionsGroupExecute
	}
	if fp.special {
		mode |= filePermissionsGroupSetgid
	}
	return mode
}

func (fp filePermissions) toOtherInt() uint16 {
	var mode uint16
	if fp.read {
		mode |= filePermissionsOtherRead
	}
	if fp.write {
		mode |= filePermissionsOtherWrite
	}
	if fp.execute {
		mode |= filePermissionsOtherExecute
	}
	if fp.special {
		mode |= filePermissionsSticky
	}
	return mode
}

// inodeFromBytes decodes a packed ext2 inode record. b must be at least
// sb.inodeSize bytes (the caller slices exactly that much out of the
// inode table).
func inodeFromBytes(b []byte, number uint32) (*inode, error) {
	if len(b) < 128 {
		return nil, fmt.Errorf("inode data too short: %d bytes, must be at least 128", len(b))
	}

	mode := binary.LittleEndian.Uint16(b[0:2])
	i := &inode{
		number:       number,
		fileType:     parseFileType(mode),
		permOwner:    parseOwnerPermissions(mode),
		permGroup:    parseGroupPermissions(mode),
		permOther:    parseOtherPermissions(mode),
		uid:          binary.LittleEndian.Uint16(b[2:4]),
		sizeLow:      binary.LittleEndian.Uint32(b[4:8]),
		accessTime:   binary.LittleEndian.Uint32(b[8:12]),
		changeTime:   binary.LittleEndian.Uint32(b[12:16]),
		modifyTime:   binary.LittleEndian.Uint32(b[16:20]),
		deletionTime: binary.LittleEndian.Uint32(b[20:24]),
		gid:          binary.LittleEndian.Uint16(b[24:26]),
		hardLinks:    binary.LittleEndian.Uint16(b[26:28]),
		diskSectors:  binary.LittleEndian.Uint32(b[28:32]),
		flags:        binary.LittleEndian.Uint32(b[32:36]),
		generation:   binary.LittleEndian.Uint32(b[100:104]),
		fileACL:      binary.LittleEndian.Uint32(b[104:108]),
		sizeHigh:     binary.LittleEndian.Uint32(b[108:112]),
		fragmentAddr: binary.LittleEndian.Uint32(b[112:116]),
	}

	for n := 0; n < directPointers; n++ {
		off := 40 + n*4
		i.direct[n] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	i.singleIndirect = binary.LittleEndian.Uint32(b[88:92])
	i.doubleIndirect = binary.LittleEndian.Uint32(b[92:96])
	i.tripleIndirect = binary.LittleEndian.Uint32(b[96:100])

	if i.isSymlink() && i.size() <= fastSymlinkMax && i.size() > 0 {
		raw := make([]byte, 0, fastSymlinkMax)
		for n := 0; n < directPointers; n++ {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], i.direct[n])
			raw = append(raw, buf[:]...)
		}
		var buf [12]byte
		binary.LittleEndian.PutUint32(buf[0:4], i.singleIndirect)
		binary.LittleEndian.PutUint32(buf[4:8], i.doubleIndirect)
		binary.LittleEndian.PutUint32(buf[8:12], i.tripleIndirect)
		raw = append(raw, buf[:]...)
		i.linkTarget = string(raw[:i.size()])
	}

	return i, nil
}

func (i *inode) toBytes(inodeSize uint16) []byte {
	b := make([]byte, inodeSize)

	binary.LittleEndian.PutUint16(b[0:2], i.modeWord())
	binary.LittleEndian.PutUint16(b[2:4], i.uid)
	binary.LittleEndian.PutUint32(b[4:8], i.sizeLow)
	binary.LittleEndian.PutUint32(b[8:12], i.accessTime)
	binary.LittleEndian.PutUint32(b[12:16], i.changeTime)
	binary.LittleEndian.PutUint32(b[16:20], i.modifyTime)
	binary.LittleEndian.PutUint32(b[20:24], i.deletionTime)
	binary.LittleEndian.PutUint16(b[24:26], i.gid)
	binary.LittleEndian.PutUint16(b[26:28], i.hardLinks)
	binary.LittleEndian.PutUint32(b[28:32], i.diskSectors)
	binary.LittleEndian.PutUint32(b[32:36], i.flags)

	if i.isFastSymlink() {
		raw := make([]byte, fastSymlinkMax)
		copy(raw, i.linkTarget)
		for n := 0; n < directPointers; n++ {
			off := 40 + n*4
			copy(b[off:off+4], raw[n*4:n*4+4])
		}
		copy(b[88:92], raw[48:52])
		copy(b[92:96], raw[52:56])
		copy(b[96:100], raw[56:60])
	} else {
		for n := 0; n < directPointers; n++ {
			off := 40 + n*4
			binary.LittleEndian.PutUint32(b[off:off+4], i.direct[n])
		}
		binary.LittleEndian.PutUint32(b[88:92], i.singleIndirect)
		binary.LittleEndian.PutUint32(b[92:96], i.doubleIndirect)
		binary.LittleEndian.PutUint32(b[96:100], i.tripleIndirect)
	}

	binary.LittleEndian.PutUint32(b[100:104], i.generation)
	binary.LittleEndian.PutUint32(b[104:108], i.fileACL)
	binary.LittleEndian.PutUint32(b[108:112], i.sizeHigh)
	binary.LittleEndian.PutUint32(b[112:116], i.fragmentAddr)

	return b
}

// writeSymlinkTarget stores target inline as a fast symlink. Callers must
// ensure len(target) <= fastSymlinkMax before calling.
func (i *inode) writeSymlinkTarget(target string) {
	i.linkTarget = target
	i.sizeLow = uint32(len(target))
	i.sizeHigh = 0
}

func inodeTimeNow() uint32 {
	return uint32(timestamp.GetTime().Unix())
}
