package mutation

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/mattn/go-sqlite3"

	"github.com/supertagfs/supertag/pkg/notify"
	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/stagerr"
	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

// mapRenameErr turns a unique-constraint violation during a rename into an
// AlreadyExists error carrying dst — renaming onto a name that's already
// taken.
func mapRenameErr(err error, dst string) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return stagerr.Wrap(stagerr.AlreadyExists, stderrors.New("path already exists: "+dst))
	}
	return err
}

// MoveOrMerge implements FUSE's single Rename callback, which this system
// overloads to cover five distinct intents: renaming a linked file,
// renaming a tag, merging one tag's files into another, moving a tag into
// a tag group, and renaming a tag group. src and dst are both
// collection-relative.
func MoveOrMerge(ctx context.Context, s *store.Store, tx *sql.Tx, sym tagtype.Symbols, src, dst string, uid, gid uint32, umask settings.UMask, n notify.Notifier) error {
	srcTags := tagtype.PathToTags(sym, src)
	if len(srcTags) == 0 {
		return ErrInvalidPath
	}
	now := store.NowSecs()

	switch v := srcTags[len(srcTags)-1].(type) {
	case tagtype.DeviceFileSymlink:
		newName, ok := tagtype.PrimaryTag(tagtype.GetFilename(dst), sym.DeviceChar)
		if !ok {
			return ErrInvalidPath
		}
		return mapRenameErr(s.RenameFile(ctx, tx, v.DeviceFile.Device, v.DeviceFile.Inode, newName, now), dst)

	case tagtype.Symlink:
		newName := tagtype.GetFilename(dst)
		tf, err := s.ContainsFile(ctx, srcTags, func(f store.TaggedFile) bool { return f.PrimaryTag == v.Name })
		if err != nil {
			return err
		}
		if tf == nil {
			return ErrInvalidPath
		}
		return mapRenameErr(s.RenameFile(ctx, tx, tf.Device, tf.Inode, newName, now), dst)

	case tagtype.Regular:
		return moveRegularTag(ctx, s, tx, sym, srcTags, v.Tag, dst, uid, gid, umask, n)

	case tagtype.Group:
		dstTags := tagtype.PathToTags(sym, dst)
		if len(dstTags) == 0 {
			return ErrInvalidPath
		}
		switch d := dstTags[len(dstTags)-1].(type) {
		case tagtype.Group:
			return s.RenameTagGroup(ctx, tx, v.Tag, d.Tag, now)
		case tagtype.Regular:
			return s.RenameTagGroup(ctx, tx, v.Tag, d.Tag, now)
		default:
			return ErrInvalidPath
		}

	default:
		return ErrInvalidPath
	}
}

func moveRegularTag(ctx context.Context, s *store.Store, tx *sql.Tx, sym tagtype.Symbols, srcTags []tagtype.TagType, srcTag, dst string, uid, gid uint32, umask settings.UMask, n notify.Notifier) error {
	exists, err := s.TagExists(ctx, srcTag)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBadTag
	}

	dstTags := tagtype.PathToTags(sym, dst)
	now := store.NowSecs()

	// A file browser doing `mv /t1 /t2` actually issues `mv /t1 /t2/t1` —
	// detect the echoed source name and drop it so the merge below targets
	// t2 itself rather than a nonexistent t2/t1.
	if len(dstTags) > 0 && len(srcTags) > 0 && srcTags[len(srcTags)-1] == dstTags[len(dstTags)-1] {
		dstTags = dstTags[:len(dstTags)-1]
	}
	if len(dstTags) == 0 {
		return ErrInvalidPath
	}

	switch d := dstTags[len(dstTags)-1].(type) {
	case tagtype.Regular:
		dstExists, err := s.TagExists(ctx, d.Tag)
		if err != nil {
			return err
		}
		if !dstExists {
			return s.RenameTag(ctx, tx, srcTag, d.Tag, now)
		}
		return s.MergeTags(ctx, tx, srcTag, srcTags, tagtype.CollectRegularNames(dstTags), now)

	case tagtype.Group:
		if !tagtype.CreatableTagGroup(sym, d.Tag) {
			return ErrBadTag
		}

		taggedFiles, err := s.FilesTaggedWith(ctx, []tagtype.TagType{tagtype.Regular{Tag: srcTag}})
		if err != nil {
			return err
		}

		groupExists, err := s.TagGroupExists(ctx, d.Tag)
		if err != nil {
			return err
		}
		if !groupExists {
			if len(taggedFiles) == 0 {
				if err := s.RemoveTag(ctx, tx, srcTag, now, true); err != nil {
					return err
				}
				return s.EnsureTagGroup(ctx, tx, d.Tag, uid, gid, umask.DirPerms(), now)
			}
			if n != nil {
				_ = n.TagToTagGroup(srcTag)
			}
			return ErrBadTag
		}

		if err := s.AddTagToGroup(ctx, tx, srcTag, d.Tag, uid, gid, umask.DirPerms(), now); err != nil {
			return err
		}

		if len(taggedFiles) == 0 {
			pinnable := tagtype.CollectPinnable(dstTags)
			if len(pinnable) > 0 {
				pinnable = append(pinnable, tagtype.Regular{Tag: srcTag})
				return s.PinTags(ctx, tx, pinnable, uid, gid, umask.DirPerms(), now)
			}
		}
		return nil

	default:
		return ErrBadTag
	}
}
