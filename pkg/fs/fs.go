// Package fs binds the cgofuse FileSystemInterface to a single collection's
// pkg/store, translating every callback into a query.Engine lookup or a
// pkg/mutation call and mapping the stagerr taxonomy to cgofuse's errno
// constants. Grounded on the FileSystemInterface/FileSystemBase shape
// vendored into the pack's rclone copy of cgofuse, and on
// original_source/src/fuse/fs/mod.rs for the callback dispatch itself.
package fs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/notify"
	"github.com/supertagfs/supertag/pkg/opcache"
	"github.com/supertagfs/supertag/pkg/query"
	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/stagerr"
	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
	"github.com/supertagfs/supertag/pkg/utils"
)

var log = utils.GetLogger("fs")

// Filesystem is the cgofuse FileSystemInterface implementation for one
// mounted collection. Methods this struct doesn't override fall back to
// FileSystemBase's empty/ENOSYS defaults.
type Filesystem struct {
	fuse.FileSystemBase

	Store      *store.Store
	Engine     *query.Engine
	Symbols    tagtype.Symbols
	Settings   *settings.Settings
	Collection string
	Mountpoint string
	Cache      *opcache.Cache
	Notifier   notify.Notifier

	mount settings.Mount

	reqCounter uint64
}

// New builds a Filesystem ready to be passed to fuse.NewFileSystemHost.
func New(s *store.Store, eng *query.Engine, set *settings.Settings, collection, mountpoint string, cache *opcache.Cache, n notify.Notifier) *Filesystem {
	return &Filesystem{
		Store:      s,
		Engine:     eng,
		Symbols:    set.Symbols(),
		Settings:   set,
		Collection: collection,
		Mountpoint: mountpoint,
		Cache:      cache,
		Notifier:   n,
		mount:      set.Config().Mount,
	}
}

func (fs *Filesystem) Init() {
	log.WithField("collection", fs.Collection).Info("filesystem mounted")
}

func (fs *Filesystem) Destroy() {
	log.WithField("collection", fs.Collection).Info("filesystem unmounted")
}

func (fs *Filesystem) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 4096
	stat.Frsize = 4096
	stat.Namemax = 1024
	return 0
}

// symlinkCacheSlot is the opcache symlink bucket this filesystem uses.
// opcache.Cache's symlink store accepts a request-scoped key so concurrent
// unrelated lookups never share an entry; cgofuse doesn't surface a kernel
// request id to the callback layer, so every call here shares one slot,
// relying on the cache's own short TTL rather than request isolation.
const symlinkCacheSlot = uint64(0)

// nextHandle hands out a unique file handle for Open/Create, scoped to
// this mounted collection.
func (fs *Filesystem) nextHandle() uint64 {
	return atomic.AddUint64(&fs.reqCounter, 1)
}

// errno translates a pkg/query or pkg/mutation error into the negative
// cgofuse constant the callback layer must return.
func errno(err error) int {
	if err == nil {
		return 0
	}
	if err == query.ErrNotFound {
		return -fuse.ENOENT
	}
	switch stagerr.KindOf(err) {
	case stagerr.NotFound:
		return -fuse.ENOENT
	case stagerr.AlreadyExists:
		return -fuse.EEXIST
	case stagerr.InvalidPath, stagerr.RecursiveLink, stagerr.BadTag, stagerr.BadTagGroup:
		return -fuse.EIO
	case stagerr.PermissionDenied:
		return -fuse.EPERM
	case stagerr.NotSupported:
		return -fuse.ENOSYS
	case stagerr.NoAttribute:
		return -fuse.ENOATTR
	default:
		return -fuse.EIO
	}
}

// mutCtx is the context every mutation callback runs under; none of these
// calls are expected to block long enough to need cancellation from the
// caller, matching the original's synchronous fsops.
func mutCtx() context.Context { return context.Background() }

func toTimespec(t time.Time) fuse.Timespec {
	return fuse.NewTimespec(t)
}

// parseTags classifies path against this collection's symbol set, also
// reporting whether path carried a trailing sync-char cache-flush probe.
func (fs *Filesystem) parseTags(path string) (tags []tagtype.TagType, syncProbe bool) {
	col := tagtype.NewCollection(fs.Symbols, path)
	return col.Tags(), col.Unlinking
}

// relPath strips the leading slash cgofuse always supplies.
func relPath(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}
