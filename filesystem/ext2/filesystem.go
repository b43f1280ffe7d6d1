package ext2

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/mprimi/ext2fs/filesystem"
)

// FileSystem is the engine's entry point: a volume opened by Create or
// Read, exposing the POSIX-style surface (Component I) over absolute
// paths. It satisfies filesystem.FileSystem.
type FileSystem struct {
	v *volume
}

var _ filesystem.FileSystem = (*FileSystem)(nil)

// toAbsolute adapts the relative, io/fs-style paths filesystem.FileSystem
// callers pass (sync.CopyFileSystem and the converter package both walk
// paths the way fs.FS does, without a leading '/') into the absolute form
// path resolution requires internally. "." and "" mean the root.
func toAbsolute(p string) string {
	if p == "." || p == "" {
		return "/"
	}
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func (fs_ *FileSystem) Type() filesystem.Type { return filesystem.TypeExt2 }

func (fs_ *FileSystem) Label() string { return fs_.v.sb.label() }

func (fs_ *FileSystem) SetLabel(label string) error {
	if fs_.v.readOnly {
		return filesystem.ErrReadonlyFilesystem
	}
	fs_.v.sb.setLabel(label)
	return fs_.v.writeSuperblock()
}

// Mkdir implements create_dir: the new directory's permissions follow
// the original driver's def_mode()|AllExec convention (0755).
func (fs_ *FileSystem) Mkdir(pathname string) error {
	parent, name, err := fs_.v.resolveParent(toAbsolute(pathname))
	if err != nil {
		return err
	}
	_, err = fs_.v.createDirectory(parent, name, inodeTimeNow(), 0o755, 0, 0)
	return err
}

// Mknod is unsupported: device nodes are out of scope (no real host
// device backs special_device_id).
func (fs_ *FileSystem) Mknod(pathname string, mode uint32, dev int) error {
	return filesystem.ErrNotSupported
}

// Link implements link(): oldpath must already resolve to a regular
// file, and newpath must not exist.
func (fs_ *FileSystem) Link(oldpath, newpath string) error {
	target, err := fs_.v.resolveFull(toAbsolute(oldpath))
	if err != nil {
		return err
	}
	parent, name, err := fs_.v.resolveParent(toAbsolute(newpath))
	if err != nil {
		return err
	}
	return fs_.v.linkInode(parent, target, name)
}

// Symlink implements symlink(): target is stored verbatim, resolved only
// when traversed (this engine never follows symlinks mid-path, so the
// string is opaque to it).
func (fs_ *FileSystem) Symlink(oldpath, newpath string) error {
	parent, name, err := fs_.v.resolveParent(toAbsolute(newpath))
	if err != nil {
		return err
	}
	_, err = fs_.v.symlinkInode(parent, oldpath, name, inodeTimeNow())
	return err
}

// Chmod changes permission and special bits; the target path is resolved
// directly (this engine does not follow symlinks on any path argument).
func (fs_ *FileSystem) Chmod(name string, mode os.FileMode) error {
	target, err := fs_.v.resolveFull(toAbsolute(name))
	if err != nil {
		return err
	}
	perm := uint16(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		perm |= filePermissionsOwnerSetuid
	}
	if mode&os.ModeSetgid != 0 {
		perm |= filePermissionsGroupSetgid
	}
	if mode&os.ModeSticky != 0 {
		perm |= filePermissionsSticky
	}
	return fs_.v.chmodInode(target, perm)
}

// Chown changes uid/gid; -1 means "leave unchanged", translated to the
// engine's internal sentinel.
func (fs_ *FileSystem) Chown(name string, uid, gid int) error {
	target, err := fs_.v.resolveFull(toAbsolute(name))
	if err != nil {
		return err
	}
	u, g := noChangeID, noChangeID
	if uid >= 0 {
		u = uint16(uid)
	}
	if gid >= 0 {
		g = uint16(gid)
	}
	return fs_.v.chownInode(target, u, g)
}

// Chtimes implements utime(): only atime/mtime are applied and the ctime
// argument is ignored (the original driver has no separate change-time set
// operation either); the inode's change time keeps the value set when the
// inode was created.
func (fs_ *FileSystem) Chtimes(name string, ctime, atime, mtime time.Time) error {
	target, err := fs_.v.resolveFull(toAbsolute(name))
	if err != nil {
		return err
	}
	return fs_.v.utimeInode(target, uint32(atime.Unix()), uint32(mtime.Unix()))
}

// ReadDir implements read_dir, including "." and ".." per the original
// driver's behavior.
func (fs_ *FileSystem) ReadDir(pathname string) ([]os.FileInfo, error) {
	dir, err := fs_.v.resolveFull(toAbsolute(pathname))
	if err != nil {
		return nil, err
	}
	if !dir.isDirectory() {
		return nil, newPathError("read_dir", pathname, KindNotDirectory)
	}
	cache := newIndirectionCache()
	entries, err := fs_.v.readAllRecords(dir, cache)
	if err != nil {
		return nil, err
	}
	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.isHole() {
			continue
		}
		i, err := fs_.v.readInode(e.inodeNum)
		if err != nil {
			return nil, err
		}
		out = append(out, &fileInfo{name: e.name, inode: i})
	}
	return out, nil
}

// Stat returns the fixed-schema snapshot described by the stat operation.
// Not part of filesystem.FileSystem; a convenience for callers that want
// the raw ext2 record rather than an fs.FileInfo.
func (fs_ *FileSystem) Stat(pathname string) (Stat, error) {
	target, err := fs_.v.resolveFull(toAbsolute(pathname))
	if err != nil {
		return Stat{}, err
	}
	return statFromInode(target, fs_.v.sb.blockSize()), nil
}

// OpenFile implements open_file. flag is an OS-style os.O_* bitmask; the
// supplemented OpenFlag constants (§ SUPPLEMENTED FEATURES) map onto it
// one-for-one so callers may use either.
func (fs_ *FileSystem) OpenFile(pathname string, flag int) (filesystem.File, error) {
	absPath := toAbsolute(pathname)
	canRead := flag&os.O_WRONLY == 0
	canWrite := flag&(os.O_WRONLY|os.O_RDWR) != 0

	target, err := fs_.v.resolveFull(absPath)
	if err != nil {
		var extErr *Error
		if !errors.As(err, &extErr) || extErr.Kind != KindNotFound || flag&os.O_CREATE == 0 {
			return nil, err
		}
		parent, name, perr := fs_.v.resolveParent(absPath)
		if perr != nil {
			return nil, perr
		}
		target, err = fs_.v.createInode(parent, name, inodeTimeNow(), fileTypeRegularFile, 0o644, 0, 0)
		if err != nil {
			return nil, err
		}
	} else if flag&os.O_TRUNC != 0 {
		if fs_.v.readOnly || !canWrite {
			return nil, newPathError("open_file", pathname, KindAccessError)
		}
		if err := fs_.v.truncateInode(target, 0); err != nil {
			return nil, err
		}
	}

	var offset int64
	if flag&os.O_APPEND != 0 {
		offset = int64(target.size())
	}
	return &File{
		v:        fs_.v,
		inode:    target,
		name:     pathname,
		canRead:  canRead,
		canWrite: canWrite,
		offset:   offset,
		cache:    newIndirectionCache(),
	}, nil
}

// toOSFlag maps the supplemented OpenFlag bitmask onto the os.O_* bitmask
// OpenFile (and the filesystem.FileSystem interface it satisfies) accepts,
// so callers may compose flags either way.
func (f OpenFlag) toOSFlag() int {
	var flag int
	switch {
	case f.has(OpenRead) && f.has(OpenWrite):
		flag |= os.O_RDWR
	case f.has(OpenWrite):
		flag |= os.O_WRONLY
	default:
		flag |= os.O_RDONLY
	}
	if f.has(OpenCreate) {
		flag |= os.O_CREATE
	}
	if f.has(OpenTruncate) {
		flag |= os.O_TRUNC
	}
	if f.has(OpenAppend) {
		flag |= os.O_APPEND
	}
	return flag
}

// Open is the OpenFlag-typed counterpart to OpenFile, per the
// supplemented open_file(path, flags) signature.
func (fs_ *FileSystem) Open(pathname string, flags OpenFlag) (filesystem.File, error) {
	return fs_.OpenFile(pathname, flags.toOSFlag())
}

// Rename implements rename(): never clobbers an existing destination.
func (fs_ *FileSystem) Rename(oldpath, newpath string) error {
	oldParent, oldName, err := fs_.v.resolveParent(toAbsolute(oldpath))
	if err != nil {
		return err
	}
	newParent, newName, err := fs_.v.resolveParent(toAbsolute(newpath))
	if err != nil {
		return err
	}
	return fs_.v.renameInode(oldParent, oldName, newParent, newName)
}

// Remove implements unlink()/rmdir(), dispatching on the target's type.
func (fs_ *FileSystem) Remove(pathname string) error {
	absPath := toAbsolute(pathname)
	parent, name, err := fs_.v.resolveParent(absPath)
	if err != nil {
		return err
	}
	target, err := fs_.v.resolveFull(absPath)
	if err != nil {
		return err
	}
	if target.isDirectory() {
		return fs_.v.rmdirInode(parent, name)
	}
	return fs_.v.unlinkInode(parent, name)
}

