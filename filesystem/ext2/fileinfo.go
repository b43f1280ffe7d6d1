package ext2

import (
	"io/fs"
	"time"
)

// Stat is the fixed-schema snapshot returned by the stat public operation,
// laid out per the spec's stat record (§6): not a wire format, just a
// stable Go struct field-for-field with it.
type Stat struct {
	DeviceID          uint64
	InodeID           uint32
	HardLinks         uint64
	Mode              uint32
	UID               uint16
	GID               uint16
	SpecialDeviceID   uint64
	Size              uint64
	BlockSize         uint32
	Blocks            uint32
	AccessTime        uint32
	AccessTimeNanos   uint32
	ModifyTime        uint32
	ModifyTimeNanos   uint32
	ChangeTime        uint32
	ChangeTimeNanos   uint32
}

func statFromInode(i *inode, blockSize uint32) Stat {
	return Stat{
		DeviceID:        0,
		InodeID:         i.number,
		HardLinks:       uint64(i.hardLinks),
		Mode:            uint32(i.modeWord()),
		UID:             i.uid,
		GID:             i.gid,
		SpecialDeviceID: 0,
		Size:            i.size(),
		BlockSize:       blockSize,
		Blocks:          i.diskSectors,
		AccessTime:      i.accessTime,
		ModifyTime:      i.modifyTime,
		ChangeTime:      i.changeTime,
	}
}

// fileInfo adapts an inode (plus the name it was looked up by) to
// io/fs.FileInfo, satisfying the filesystem.File/ReadDir contract.
type fileInfo struct {
	name  string
	inode *inode
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return int64(fi.inode.size()) }
func (fi *fileInfo) Mode() fs.FileMode  { return fs.FileMode(fi.inode.permissionsToMode()) }
func (fi *fileInfo) ModTime() time.Time { return time.Unix(int64(fi.inode.modifyTime), 0).UTC() }
func (fi *fileInfo) IsDir() bool        { return fi.inode.isDirectory() }
func (fi *fileInfo) Sys() interface{}   { return fi.inode }

// dirEntryInfo adapts a directory entry to io/fs.DirEntry.
type dirEntryInfo struct {
	name  string
	ft    fileType
	fetch func() (*inode, error)
}

func (d *dirEntryInfo) Name() string { return d.name }
func (d *dirEntryInfo) IsDir() bool  { return d.ft == fileTypeDirectory }
func (d *dirEntryInfo) Type() fs.FileMode {
	switch d.ft {
	case fileTypeDirectory:
		return fs.ModeDir
	case fileTypeSymbolicLink:
		return fs.ModeSymlink
	case fileTypeCharacterDevice:
		return fs.ModeDevice | fs.ModeCharDevice
	case fileTypeBlockDevice:
		return fs.ModeDevice
	case fileTypeFifo:
		return fs.ModeNamedPipe
	case fileTypeSocket:
		return fs.ModeSocket
	default:
		return 0
	}
}

func (d *dirEntryInfo) Info() (fs.FileInfo, error) {
	i, err := d.fetch()
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: d.name, inode: i}, nil
}
