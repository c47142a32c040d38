package fs

import (
	"context"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/xattrs"
)

// Getxattr reads one extended attribute off the real file a tagged path
// resolves to, matching original_source/src/fuse/fs/xattr.rs's resolve-then-
// delegate shape.
func (fs *Filesystem) Getxattr(path string, name string) (int, []byte) {
	managed, ok := fs.resolveToManagedFile(context.Background(), path)
	if !ok {
		return -fuse.ENOATTR, nil
	}
	v, err := xattrs.Get(managed, name)
	if err != nil {
		return -fuse.ENOATTR, nil
	}
	return 0, v
}

// Setxattr writes an extended attribute onto the real file a tagged path
// resolves to.
func (fs *Filesystem) Setxattr(path string, name string, value []byte, flags int) int {
	managed, ok := fs.resolveToManagedFile(context.Background(), path)
	if !ok {
		return -fuse.ENOENT
	}
	if err := xattrs.Set(managed, name, value); err != nil {
		return -fuse.EIO
	}
	return 0
}

// Removexattr deletes an extended attribute off the real file a tagged path
// resolves to.
func (fs *Filesystem) Removexattr(path string, name string) int {
	managed, ok := fs.resolveToManagedFile(context.Background(), path)
	if !ok {
		return -fuse.ENOENT
	}
	if err := xattrs.Remove(managed, name); err != nil {
		return -fuse.ENOATTR
	}
	return 0
}

// Listxattr enumerates the extended attributes on the real file a tagged
// path resolves to; a path with no managed backing file lists empty rather
// than erroring, matching the original's fallback.
func (fs *Filesystem) Listxattr(path string, fill func(name string) bool) int {
	managed, ok := fs.resolveToManagedFile(context.Background(), path)
	if !ok {
		return 0
	}
	names, err := xattrs.List(managed)
	if err != nil {
		return -fuse.EIO
	}
	for _, n := range names {
		if !fill(n) {
			break
		}
	}
	return 0
}
