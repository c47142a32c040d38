//go:build !darwin
// +build !darwin

package fs

import (
	"github.com/billziss-gh/cgofuse/fuse"
)

// Create has no alias mechanism to stage outside macOS: Finder is the only
// thing that drags aliases, so any direct write into a tag directory here is
// a plain drag-and-drop copy, which this filesystem can't represent.
// Grounded on original_source/src/fuse/fs/mod.rs's create handler's
// #[cfg(not(target_os = "macos"))] branch.
func (fs *Filesystem) Create(path string, flags int, mode uint32) (int, uint64) {
	if fs.Notifier != nil {
		_ = fs.Notifier.BadCopy()
	}
	return -fuse.ENOSYS, 0
}
