package fs

import (
	"context"
	"database/sql"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/mutation"
	"github.com/supertagfs/supertag/pkg/query"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

func (fs *Filesystem) Opendir(path string) (int, uint64) {
	return 0, fs.nextHandle()
}

func (fs *Filesystem) Releasedir(path string, fh uint64) int {
	return 0
}

func lastTag(tags []tagtype.TagType) tagtype.TagType {
	if len(tags) == 0 {
		return nil
	}
	return tags[len(tags)-1]
}

// Readdir lists path's children. FileDir listings get the synthetic
// recursive-delete canary seeded in ahead of the real files; non-root,
// non-filedir tag listings that have files at their intersection get a
// synthetic <filedir> entry appended so browsers can descend straight into
// the file view.
func (fs *Filesystem) Readdir(dirpath string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	ctx := context.Background()
	tags, _ := fs.parseTags(dirpath)

	fill(".", nil, 0)
	fill("..", nil, 0)

	if _, ok := lastTag(tags).(tagtype.FileDir); ok {
		fill(canaryBase, nil, 0)

		var entries []query.Entry
		var err error
		if len(tags) == 1 {
			// the root filedir has no preceding tag to intersect against;
			// it enumerates every tag in the collection instead.
			entries, err = fs.Engine.ReadDirRootFileDir(ctx)
		} else {
			entries, err = fs.Engine.ReadDirFileDir(ctx, tags)
		}
		if err != nil {
			return errno(err)
		}
		for _, e := range entries {
			fill(e.Name, nil, 0)
		}
		return 0
	}

	entries, err := fs.Engine.ReadDir(ctx, tags)
	if err != nil {
		return errno(err)
	}
	for _, e := range entries {
		fill(e.Name, nil, 0)
	}

	if len(tags) > 0 {
		n, err := fs.Store.NumFilesForIntersection(ctx, tags)
		if err == nil && n > 0 {
			fill(fs.Symbols.FileDirStr, nil, 0)
		}
	}
	return 0
}

// Mkdir ensures path exists as a tag or tag group (top-level) or pins it
// under an existing intersection.
func (fs *Filesystem) Mkdir(path string, mode uint32) int {
	uid, gid, _ := fuse.Getcontext()
	err := fs.Store.Mutate(context.Background(), func(tx *sql.Tx) error {
		return mutation.Mkdir(context.Background(), fs.Store, tx, fs.Symbols, relPath(path), uid, gid, mode)
	})
	if err != nil {
		return errno(err)
	}
	fs.flushMutatedPath(path)
	return 0
}

// Rmdir no-ops on a FileDir (some GUIs call rmdir on the file view as part
// of a recursive delete attempt). Any other path is not removed: an Unlink
// notification is sent and ENOSYS is returned.
func (fs *Filesystem) Rmdir(path string) int {
	tags, _ := fs.parseTags(path)
	if _, ok := lastTag(tags).(tagtype.FileDir); ok {
		return 0
	}
	if fs.Notifier != nil {
		_ = fs.Notifier.Unlink(path)
	}
	return -fuse.ENOSYS
}
