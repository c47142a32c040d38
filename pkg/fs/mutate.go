package fs

import (
	"context"
	"database/sql"
	"path"
	"path/filepath"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/mutation"
	"github.com/supertagfs/supertag/pkg/query"
	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

// flushMutatedPath drops every op-cache entry a mutation on path could have
// invalidated: the path itself, each top-level tag component (the root
// listing, since any of them may have changed membership), and both
// filedir spellings under it — the rule SPEC_FULL.md's cache-maintenance
// section names explicitly.
func (fs *Filesystem) flushMutatedPath(p string) {
	fs.Cache.ClearReaddirEntry(p)
	fs.Cache.ClearReaddirEntry("/")

	tags, _ := fs.parseTags(p)
	walked := ""
	for _, t := range tags {
		switch v := t.(type) {
		case tagtype.Regular:
			walked = v.Tag
		case tagtype.Negation:
			walked = fs.Symbols.NegativeTag + v.Tag
		case tagtype.Group:
			walked = tagtype.SetExtPrefix(v.Tag, fs.Symbols.TagGroupStr)
		default:
			continue
		}
		fs.Cache.ClearReaddirEntry("/" + walked)
		fs.Cache.ClearReaddirEntry("/" + path.Join(walked, fs.Symbols.FileDirStr))
		fs.Cache.ClearReaddirEntry("/" + path.Join(walked, fs.Symbols.FileDirCLIStr))
	}
}

// Symlink implements drag-and-drop linking: newpath must carry at least
// one tag or the attempt is reported as a drop onto the root and refused.
func (fs *Filesystem) Symlink(target string, newpath string) int {
	uid, gid, _ := fuse.Getcontext()
	var umask settings.UMask

	canonical := target
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		canonical = resolved
	}

	var linked []store.TaggedFile
	err := fs.Store.Mutate(context.Background(), func(tx *sql.Tx) error {
		res, err := mutation.Ln(context.Background(), fs.Store, tx, fs.Symbols, fs.Mountpoint, canonical, relPath(path.Dir(newpath)), tagtype.GetFilename(newpath), uid, gid, umask, nil, fs.Notifier)
		linked = res
		return err
	})
	if err != nil {
		return errno(err)
	}

	if len(linked) > 0 {
		fs.Cache.AddSymlink(symlinkCacheSlot, newpath, &query.Node{Kind: query.KindSymlink, UID: uid, GID: gid})
	}
	fs.flushMutatedPath(newpath)
	return 0
}

// Rename dispatches FUSE's single rename callback across link-rename,
// tag-rename, tag-merge, and rename-to-delete depending on what oldpath's
// primary type resolves to.
func (fs *Filesystem) Rename(oldpath string, newpath string) int {
	if tagtype.ShouldUnlink(tagtype.GetFilename(newpath)) {
		return fs.renameToDelete(oldpath, newpath)
	}

	uid, gid, _ := fuse.Getcontext()
	var umask settings.UMask

	err := fs.Store.Mutate(context.Background(), func(tx *sql.Tx) error {
		return mutation.MoveOrMerge(context.Background(), fs.Store, tx, fs.Symbols, relPath(oldpath), relPath(newpath), uid, gid, umask, fs.Notifier)
	})
	if err != nil {
		return errno(err)
	}
	fs.flushMutatedPath(oldpath)
	fs.flushMutatedPath(newpath)
	return 0
}

func (fs *Filesystem) renameToDelete(oldpath, newpath string) int {
	tags, _ := fs.parseTags(oldpath)
	var err error
	switch lastTag(tags).(type) {
	case tagtype.DeviceFileSymlink, tagtype.Symlink:
		err = fs.Store.Mutate(context.Background(), func(tx *sql.Tx) error {
			_, e := mutation.Rm(context.Background(), fs.Store, tx, fs.Symbols, relPath(oldpath))
			return e
		})
	default:
		err = fs.Store.Mutate(context.Background(), func(tx *sql.Tx) error {
			return mutation.Rmdir(context.Background(), fs.Store, tx, fs.Symbols, relPath(oldpath))
		})
		if err == nil {
			fs.Cache.AddRenameDelete(newpath)
		}
	}
	if err != nil {
		return errno(err)
	}
	fs.flushMutatedPath(oldpath)
	return 0
}

// Unlink removes a linked file, blocking any process that has already
// touched the recursive-delete canary and recording any process that
// touches it now.
func (fs *Filesystem) Unlink(p string) int {
	_, _, pid := fuse.Getcontext()

	if fs.Cache.CheckDenyDeletePID(int32(pid)) {
		return -fuse.ENOSYS
	}
	if path.Base(p) == canaryBase {
		fs.Cache.AddDenyDeletePID(int32(pid))
		if fs.Notifier != nil {
			_ = fs.Notifier.Unlink(p)
		}
		return -fuse.ENOSYS
	}

	err := fs.Store.Mutate(context.Background(), func(tx *sql.Tx) error {
		_, e := mutation.Rm(context.Background(), fs.Store, tx, fs.Symbols, relPath(p))
		return e
	})
	if err != nil {
		return errno(err)
	}
	fs.Cache.ClearAlias(fs.Symbols.FileDirStr, p)
	fs.flushMutatedPath(p)
	return 0
}
