package fs

import (
	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/opcache"
	"github.com/supertagfs/supertag/pkg/settings"
)

// Create stages a macOS Finder alias: the bytes Finder is about to write get
// buffered and validated against the alias magic header before this
// collection decides whether a real link results. Grounded on
// original_source/src/fuse/fs/mod.rs's create handler's
// #[cfg(target_os = "macos")] branch.
func (fs *Filesystem) Create(path string, flags int, mode uint32) (int, uint64) {
	return fs.createAlias(path, mode)
}

// createAlias stages a managed file to receive the alias blob Finder is
// about to write.
func (fs *Filesystem) createAlias(path string, mode uint32) (int, uint64) {
	uid, gid, _ := fuse.Getcontext()
	managedPath := opcache.HashedManagedPath(fs.Settings.ManagedDir(fs.Collection))

	alias, err := fs.Cache.CreateAlias(path, mode, settings.UMask(0), uid, gid, managedPath)
	if err != nil {
		return -fuse.EIO, 0
	}
	fs.Cache.ClearReaddirEntry(path)

	fh := fs.nextHandle()
	handles.put(fh, alias.File())
	return 0, fh
}
