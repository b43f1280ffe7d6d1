package ext2

// Component I: the inode-level operations that compose the allocator
// (E), block map (F), and directory chain (H) into the create/unlink/
// truncate/read/write/symlink/link/rename/chmod/chown/utime/readdir/stat
// surface the rest of the package (and ultimately FileSystem) builds on.
// Every operation here works in terms of already-resolved inodes; path
// splitting and directory descent live in lookup.go.

// noChangeID is the sentinel chown callers use to mean "leave this
// field alone", matching the original driver's u16::MAX convention.
const noChangeID uint16 = 0xFFFF

// createInode implements create(): allocate a fresh inode of the given
// type/permissions, persist it, and push a matching directory entry into
// parent.
func (v *volume) createInode(parent *inode, name string, ts uint32, ft fileType, perm uint16, uid, gid uint16) (*inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	cache := newIndirectionCache()
	if _, exists, err := v.findEntry(parent, name, cache); err != nil {
		return nil, err
	} else if exists {
		return nil, newError("create", KindAlreadyExists)
	}

	num, err := v.allocInode()
	if err != nil {
		return nil, err
	}
	i := &inode{
		number:       num,
		fileType:     ft,
		permOwner:    parseOwnerPermissions(perm),
		permGroup:    parseGroupPermissions(perm),
		permOther:    parseOtherPermissions(perm),
		uid:          uid,
		gid:          gid,
		hardLinks:    1,
		accessTime:   ts,
		changeTime:   ts,
		modifyTime:   ts,
	}
	if err := v.writeInode(i); err != nil {
		return nil, err
	}
	if err := v.pushEntry(parent, num, name, direntTypeFor(ft), cache); err != nil {
		return nil, err
	}
	return i, nil
}

// createDirectory implements create_dir(): like createInode but with
// link count 2 (self-reference via ".") and a first data block holding
// "." and "..".
func (v *volume) createDirectory(parent *inode, name string, ts uint32, perm uint16, uid, gid uint16) (*inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	pushCache := newIndirectionCache()
	if _, exists, err := v.findEntry(parent, name, pushCache); err != nil {
		return nil, err
	} else if exists {
		return nil, newError("create_dir", KindAlreadyExists)
	}

	num, err := v.allocInode()
	if err != nil {
		return nil, err
	}
	i := &inode{
		number:       num,
		fileType:     fileTypeDirectory,
		permOwner:    parseOwnerPermissions(perm),
		permGroup:    parseGroupPermissions(perm),
		permOther:    parseOtherPermissions(perm),
		uid:          uid,
		gid:          gid,
		hardLinks:    2,
		accessTime:   ts,
		changeTime:   ts,
		modifyTime:   ts,
	}
	if err := v.writeInode(i); err != nil {
		return nil, err
	}
	dirCache := newIndirectionCache()
	if err := v.initDirectoryBlock(i, num, parent.number, dirCache); err != nil {
		return nil, err
	}
	if err := v.pushEntry(parent, num, name, direntTypeDir, pushCache); err != nil {
		return nil, err
	}
	parent.hardLinks++
	if err := v.writeInode(parent); err != nil {
		return nil, err
	}
	if err := v.adjustUsedDirsCount(num, 1); err != nil {
		return nil, err
	}
	return i, nil
}

// adjustUsedDirsCount updates the used_dirs_count counter of the group
// owning inodeNum by delta, mirrored alongside the inode bitmap that group
// descriptor already tracks.
func (v *volume) adjustUsedDirsCount(inodeNum uint32, delta int16) error {
	g, _ := groupOf(inodeNum-1, v.sb.inodesPerGroup)
	gd, err := v.readGroupDescriptor(g)
	if err != nil {
		return err
	}
	if delta > 0 {
		gd.usedDirsCount += uint16(delta)
	} else {
		gd.usedDirsCount -= uint16(-delta)
	}
	return v.writeGroupDescriptor(g)
}

// unlinkInode implements unlink(): directories must go through rmdir;
// otherwise decrement the link count, freeing the inode (and its data,
// unless it is a fast symlink) once the count reaches zero.
func (v *volume) unlinkInode(parent *inode, name string) error {
	cache := newIndirectionCache()
	entry, ok, err := v.findEntry(parent, name, cache)
	if !ok || err != nil {
		if err != nil {
			return err
		}
		return newError("unlink", KindNotFound)
	}
	target, err := v.readInode(entry.inodeNum)
	if err != nil {
		return err
	}
	if target.isDirectory() {
		return newError("unlink", KindIsDirectory)
	}

	if target.hardLinks <= 1 {
		if !target.isFastSymlink() {
			if err := v.truncateInode(target, 0); err != nil {
				return err
			}
		}
		if err := v.freeInode(target.number); err != nil {
			return err
		}
	} else {
		target.hardLinks--
		if err := v.writeInode(target); err != nil {
			return err
		}
	}
	return v.deleteEntry(parent, name, cache)
}

// rmdirInode implements rmdir(): require an empty directory (only "."
// and ".." present, verified rigorously per REDESIGN FLAGS rather than
// the source's lax entry-count check), then free it like any other
// inode and remove its entry from the parent.
func (v *volume) rmdirInode(parent *inode, name string) error {
	cache := newIndirectionCache()
	entry, ok, err := v.findEntry(parent, name, cache)
	if !ok || err != nil {
		if err != nil {
			return err
		}
		return newError("rmdir", KindNotFound)
	}
	target, err := v.readInode(entry.inodeNum)
	if err != nil {
		return err
	}
	if !target.isDirectory() {
		return newError("rmdir", KindNotDirectory)
	}
	empty, err := v.isDirEmpty(target, cache)
	if err != nil {
		return err
	}
	if !empty {
		return newError("rmdir", KindAccessError)
	}
	if err := v.truncateInode(target, 0); err != nil {
		return err
	}
	if err := v.adjustUsedDirsCount(target.number, -1); err != nil {
		return err
	}
	if err := v.freeInode(target.number); err != nil {
		return err
	}
	if err := v.deleteEntry(parent, name, cache); err != nil {
		return err
	}
	parent.hardLinks--
	return v.writeInode(parent)
}

// renameInode implements rename(): delete the old entry, relabel it, and
// push it into the new parent, preserving the inode number (no data is
// copied). If the destination name already exists it returns
// KindAlreadyExists and changes nothing (the original driver, and this
// engine, never clobber).
func (v *volume) renameInode(oldParent *inode, oldName string, newParent *inode, newName string) error {
	if err := validateName(newName); err != nil {
		return err
	}
	cache := newIndirectionCache()
	entry, ok, err := v.findEntry(oldParent, oldName, cache)
	if !ok || err != nil {
		if err != nil {
			return err
		}
		return newError("rename", KindNotFound)
	}
	if _, exists, err := v.findEntry(newParent, newName, cache); err != nil {
		return err
	} else if exists {
		return newError("rename", KindAlreadyExists)
	}

	if err := v.deleteEntry(oldParent, oldName, cache); err != nil {
		return err
	}
	if err := v.pushEntry(newParent, entry.inodeNum, newName, entry.etype, cache); err != nil {
		return err
	}

	if entry.etype == direntTypeDir && oldParent.number != newParent.number {
		target, err := v.readInode(entry.inodeNum)
		if err != nil {
			return err
		}
		if err := v.fixupDotDot(target, newParent.number, cache); err != nil {
			return err
		}
		oldParent.hardLinks--
		if err := v.writeInode(oldParent); err != nil {
			return err
		}
		newParent.hardLinks++
		return v.writeInode(newParent)
	}
	return nil
}

// fixupDotDot rewrites a moved directory's ".." entry to point at its new
// parent.
func (v *volume) fixupDotDot(dirInode *inode, newParentNum uint32, cache *indirectionCache) error {
	entries, err := v.readAllRecords(dirInode, cache)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.name == ".." {
			e.inodeNum = newParentNum
			return v.writeEntryAt(dirInode, e, cache)
		}
	}
	return nil
}

// linkInode implements link(): only regular files may be hard-linked
// (matching the original driver's AccessError on anything else); push a
// new directory entry referencing the same inode and bump its link count.
func (v *volume) linkInode(parent *inode, target *inode, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if !target.isRegularFile() {
		return newError("link", KindAccessError)
	}
	cache := newIndirectionCache()
	if _, exists, err := v.findEntry(parent, name, cache); err != nil {
		return err
	} else if exists {
		return newError("link", KindAlreadyExists)
	}
	if err := v.pushEntry(parent, target.number, name, direntTypeRegular, cache); err != nil {
		return err
	}
	target.hardLinks++
	return v.writeInode(target)
}

// symlinkInode implements symlink(): a "fast" symlink stores its target
// inline across the 15 pointer slots when it fits in 60 bytes; otherwise
// the target is written as ordinary file data.
func (v *volume) symlinkInode(parent *inode, target, name string, ts uint32) (*inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	cache := newIndirectionCache()
	if _, exists, err := v.findEntry(parent, name, cache); err != nil {
		return nil, err
	} else if exists {
		return nil, newError("symlink", KindAlreadyExists)
	}

	num, err := v.allocInode()
	if err != nil {
		return nil, err
	}
	i := &inode{
		number:     num,
		fileType:   fileTypeSymbolicLink,
		permOwner:  parseOwnerPermissions(0o777),
		permGroup:  parseGroupPermissions(0o777),
		permOther:  parseOtherPermissions(0o777),
		hardLinks:  1,
		accessTime: ts,
		changeTime: ts,
		modifyTime: ts,
	}
	if len(target) <= fastSymlinkMax {
		i.writeSymlinkTarget(target)
	}
	if err := v.writeInode(i); err != nil {
		return nil, err
	}
	if len(target) > fastSymlinkMax {
		dataCache := newIndirectionCache()
		if _, err := v.inodeWriteAt(i, 0, []byte(target), dataCache); err != nil {
			return nil, err
		}
	}
	if err := v.pushEntry(parent, num, name, direntTypeSymlink, cache); err != nil {
		return nil, err
	}
	return i, nil
}

// chmodInode masks mode to permission and special bits only, leaving file
// type untouched.
func (v *volume) chmodInode(i *inode, mode uint16) error {
	i.setModeBits(mode & (permissionMask | specialMask))
	return v.writeInode(i)
}

// chownInode skips any field set to the noChangeID sentinel.
func (v *volume) chownInode(i *inode, uid, gid uint16) error {
	if uid != noChangeID {
		i.uid = uid
	}
	if gid != noChangeID {
		i.gid = gid
	}
	return v.writeInode(i)
}

// utimeInode sets access and modification times to the given values and
// persists the inode.
func (v *volume) utimeInode(i *inode, atime, mtime uint32) error {
	i.accessTime = atime
	i.modifyTime = mtime
	return v.writeInode(i)
}
