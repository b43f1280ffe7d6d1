package ext2

// rootInodeNumber is inode #2, always allocated, per invariant 4.
const rootInodeNumber uint32 = 2

// resolvePath walks parts, a sequence of path components produced by
// splitPath, starting at the root directory, reading one directory entry
// per component via Component H's findEntry. This is the "thin convenience
// wrapper" the spec places out of scope as a design problem (§1) while
// still requiring it to back the path-taking public API (§6): it does no
// more than look up a name in each directory along the way; it never
// follows a symlink encountered mid-path, matching the original driver's
// get_path/_lookup_directory, which never dereferences symlinks either.
func (v *volume) resolvePath(parts []string) (*inode, error) {
	cur, err := v.readInode(rootInodeNumber)
	if err != nil {
		return nil, err
	}
	cache := newIndirectionCache()
	for _, name := range parts {
		if !cur.isDirectory() {
			return nil, newError("resolvePath", KindNotDirectory)
		}
		entry, ok, err := v.findEntry(cur, name, cache)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError("resolvePath", KindNotFound)
		}
		cur, err = v.readInode(entry.inodeNum)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// resolveParent resolves an absolute path down to its parent directory
// inode and final component name, rejecting the bare root (which has no
// parent to mutate).
func (v *volume) resolveParent(p string) (parent *inode, name string, err error) {
	parts, child, ok, err := splitParentChild(p)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", newPathError("resolveParent", p, KindAccessError)
	}
	parentInode, err := v.resolvePath(parts)
	if err != nil {
		return nil, "", err
	}
	if !parentInode.isDirectory() {
		return nil, "", newPathError("resolveParent", p, KindNotDirectory)
	}
	return parentInode, child, nil
}

// resolveFull resolves an absolute path all the way down to the target
// inode, failing with KindNotFound when any component (including the
// final one) is missing.
func (v *volume) resolveFull(p string) (*inode, error) {
	parts, err := splitPath(p)
	if err != nil {
		return nil, err
	}
	return v.resolvePath(parts)
}
