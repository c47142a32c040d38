package fs

import (
	"strings"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/opcache"
	"github.com/supertagfs/supertag/pkg/query"
)

// Getattr resolves path and fills stat, short-circuiting through the
// synthetic-path table, the readdir cache, and finally the query engine,
// in that order — matching the lookup order original_source/src/fuse/fs/
// getattr.rs uses.
func (fs *Filesystem) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	if kind := classifySynthetic(path); kind != syntheticNone {
		return fs.fillSynthetic(kind, stat)
	}

	ctx := mutCtx()
	tags, syncProbe := fs.parseTags(path)

	if syncProbe {
		fs.Cache.ClearReaddirEntry(strings.TrimSuffix(path, string(fs.Symbols.SyncChar)))
		return -fuse.ENOENT
	}

	if len(tags) == 0 {
		node, err := fs.Engine.RootNode(ctx, fs.mount.UID, fs.mount.GID, fs.mount.Permissions)
		if err != nil {
			return errno(err)
		}
		fillDirStat(stat, node)
		return 0
	}

	if entry, ok := fs.Cache.CheckReaddirEntry(path); ok {
		return fillFromCacheEntry(stat, entry)
	}

	if fs.Cache.RenameDeleteActive(path) {
		fillDirStat(stat, &query.Node{UID: fs.mount.UID, GID: fs.mount.GID, Permissions: fs.mount.Permissions})
		return 0
	}

	if file, ok := fs.Cache.ConsumeSymlink(symlinkCacheSlot, path); ok {
		fillSymlinkStat(stat, file.(*query.Node))
		return 0
	}

	node, err := fs.Engine.Resolve(ctx, tags)
	if err != nil {
		if err == query.ErrNotFound {
			return -fuse.ENOENT
		}
		return errno(err)
	}

	switch node.Kind {
	case query.KindDir:
		fillDirStat(stat, node)
	case query.KindSymlink:
		fillSymlinkStat(stat, node)
	}
	return 0
}

func fillDirStat(stat *fuse.Stat_t, node *query.Node) {
	stat.Mode = fuse.S_IFDIR | (node.Permissions & 0o7777)
	stat.Nlink = 2
	stat.Uid = node.UID
	stat.Gid = node.GID
	ts := toTimespec(node.Mtime)
	stat.Atim, stat.Mtim, stat.Ctim, stat.Birthtim = ts, ts, ts, ts
}

func fillSymlinkStat(stat *fuse.Stat_t, node *query.Node) {
	stat.Mode = fuse.S_IFLNK | 0o777
	stat.Nlink = 1
	stat.Uid = node.UID
	stat.Gid = node.GID
	ts := toTimespec(node.Mtime)
	stat.Atim, stat.Mtim, stat.Ctim, stat.Birthtim = ts, ts, ts, ts
	if node.File != nil {
		stat.Size = int64(len(node.File.Path))
	}
}

func fillFromCacheEntry(stat *fuse.Stat_t, entry opcache.ReaddirEntry) int {
	switch entry.Kind {
	case opcache.EntryFile:
		fillSymlinkStat(stat, entry.File.(*query.Node))
	case opcache.EntryTag:
		fillDirStat(stat, entry.Tag.(*query.Node))
	case opcache.EntryTagGroup:
		fillDirStat(stat, entry.Group.(*query.Node))
	}
	return 0
}

// Readlink resolves path to a tagged file's real location, or to the real
// store path for the synthetic database symlink.
func (fs *Filesystem) Readlink(path string) (int, string) {
	if classifySynthetic(path) == syntheticDBSymlink {
		return 0, fs.Store.Path()
	}

	ctx := mutCtx()
	tags, _ := fs.parseTags(path)
	if len(tags) == 0 {
		return -fuse.ENOENT, ""
	}

	if entry, ok := fs.Cache.CheckReaddirEntry(path); ok && entry.Kind == opcache.EntryFile {
		node := entry.File.(*query.Node)
		if node.File != nil {
			return 0, resolveAliasTarget(node.File.Path, node.File.AliasFile)
		}
	}

	node, err := fs.Engine.Resolve(ctx, tags)
	if err != nil {
		if err == query.ErrNotFound {
			return -fuse.ENOENT, ""
		}
		return errno(err), ""
	}
	if node.Kind != query.KindSymlink || node.File == nil {
		return -fuse.EINVAL, ""
	}
	return 0, resolveAliasTarget(node.File.Path, node.File.AliasFile)
}

// resolveAliasTarget returns the alias file's real path if the tagged file
// carries one (a managed Finder alias), otherwise the original path
// recorded at link time.
func resolveAliasTarget(path string, aliasFile *string) string {
	if aliasFile != nil && *aliasFile != "" {
		return *aliasFile
	}
	return path
}
