package ext2

import (
	"io"
	"io/fs"
)

// OpenFlag composes the access/creation semantics open_file accepts,
// mirroring os.O_* but scoped to what this engine actually implements:
// there is no O_EXCL or O_SYNC here because nothing downstream observes
// them.
type OpenFlag int

const (
	OpenRead OpenFlag = 1 << iota
	OpenWrite
	OpenCreate
	OpenTruncate
	OpenAppend
)

func (f OpenFlag) has(bit OpenFlag) bool { return f&bit != 0 }

// File is an open handle to a regular file's data, implementing
// filesystem.File (fs.ReadDirFile + io.Writer + io.Seeker). On a directory
// handle Read, ReadAt and Write fail with KindIsDirectory; Seek does not
// check the handle's type.
type File struct {
	v         *volume
	inode     *inode
	name      string
	canRead   bool
	canWrite  bool
	offset    int64
	cache     *indirectionCache
	dirCursor int
	closed    bool
}

func (f *File) checkOpen() error {
	if f.closed {
		return newPathError("file", f.name, KindAccessError)
	}
	return nil
}

func (f *File) Stat() (fs.FileInfo, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	return &fileInfo{name: f.name, inode: f.inode}, nil
}

// Read implements io.Reader. Reading a directory handle is an error;
// use ReadDir instead, matching io/fs's contract for directory files.
func (f *File) Read(p []byte) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.inode.isDirectory() {
		return 0, newPathError("read", f.name, KindIsDirectory)
	}
	if !f.canRead {
		return 0, newPathError("read", f.name, KindAccessError)
	}
	n, err := f.v.inodeReadAt(f.inode, uint64(f.offset), p, newIndirectionCache())
	f.offset += int64(n)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements io.Writer, always at the handle's current offset
// (append mode sets that offset to the end-of-file once, when the file is
// opened; later writes go to the current offset).
func (f *File) Write(p []byte) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.inode.isDirectory() {
		return 0, newPathError("write", f.name, KindIsDirectory)
	}
	if !f.canWrite {
		return 0, newPathError("write", f.name, KindAccessError)
	}
	if f.v.readOnly {
		return 0, newPathError("write", f.name, KindAccessError)
	}
	return f.writeAt(p)
}

func (f *File) writeAt(p []byte) (int, error) {
	n, err := f.v.inodeWriteAt(f.inode, uint64(f.offset), p, newIndirectionCache())
	f.offset += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt: read_at in the spec's file-handle contract,
// distinct from Read in that it takes an explicit offset and never moves
// the handle's cursor.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.inode.isDirectory() {
		return 0, newPathError("read_at", f.name, KindIsDirectory)
	}
	if !f.canRead {
		return 0, newPathError("read_at", f.name, KindAccessError)
	}
	if off < 0 {
		return 0, newPathError("read_at", f.name, KindUnsupported)
	}
	n, err := f.v.inodeReadAt(f.inode, uint64(off), p, newIndirectionCache())
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt: write_at in the spec's file-handle
// contract, distinct from Write in that it takes an explicit offset and
// never moves the handle's cursor.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if !f.canWrite {
		return 0, newPathError("write_at", f.name, KindAccessError)
	}
	if f.v.readOnly {
		return 0, newPathError("write_at", f.name, KindAccessError)
	}
	if off < 0 {
		return 0, newPathError("write_at", f.name, KindUnsupported)
	}
	return f.v.inodeWriteAt(f.inode, uint64(off), p, newIndirectionCache())
}

// Seek implements io.Seeker. SeekEnd uses the inode's size at call time,
// not the size observed at open.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		base = int64(f.inode.size())
	default:
		return 0, newPathError("seek", f.name, KindUnsupported)
	}
	newOff := base + offset
	if newOff < 0 {
		return 0, newPathError("seek", f.name, KindUnsupported)
	}
	f.offset = newOff
	return f.offset, nil
}

// ReadDir implements fs.ReadDirFile. n <= 0 returns every remaining
// entry; n > 0 returns at most n, with io.EOF once the directory is
// exhausted and n was requested but nothing remains, matching fs.ReadDir.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if !f.inode.isDirectory() {
		return nil, newPathError("readdir", f.name, KindNotDirectory)
	}
	entries, err := f.v.readDirEntries(f.inode, newIndirectionCache())
	if err != nil {
		return nil, err
	}
	var out []fs.DirEntry
	for f.dirCursor < len(entries) {
		e := entries[f.dirCursor]
		f.dirCursor++
		if e.name == "." || e.name == ".." {
			continue
		}
		num := e.inodeNum
		out = append(out, &dirEntryInfo{
			name: e.name,
			ft:   direntTypeToFileType(e.etype),
			fetch: func() (*inode, error) {
				return f.v.readInode(num)
			},
		})
		if n > 0 && len(out) == n {
			return out, nil
		}
	}
	if n > 0 && len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

func direntTypeToFileType(t direntType) fileType {
	switch t {
	case direntTypeRegular:
		return fileTypeRegularFile
	case direntTypeDir:
		return fileTypeDirectory
	case direntTypeChardev:
		return fileTypeCharacterDevice
	case direntTypeBlockdev:
		return fileTypeBlockDevice
	case direntTypeFifo:
		return fileTypeFifo
	case direntTypeSocket:
		return fileTypeSocket
	case direntTypeSymlink:
		return fileTypeSymbolicLink
	default:
		return 0
	}
}
