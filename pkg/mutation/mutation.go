// Package mutation is the single entry point for every write the
// filesystem supports: ln, rm, rmdir, mkdir, and the combined rename/merge
// dispatch FUSE's one Rename callback has to cover. Both the FUSE callback
// layer and the CLI commands call through here so the two front ends never
// duplicate — or drift apart on — the rules for what a given path mutation
// actually does, grounded on original_source/src/common/fsops/*.rs.
package mutation

import (
	"context"
	"database/sql"
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/supertagfs/supertag/pkg/notify"
	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/stagerr"
	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
	"github.com/supertagfs/supertag/pkg/utils"
)

var log = utils.GetLogger("mutation")

// ErrRecursiveLink is returned when ln's source lives inside the same
// collection as the destination — linking a supertag-managed path back
// into itself has no sane semantics.
var ErrRecursiveLink = stagerr.New(stagerr.RecursiveLink)

// ErrInvalidPath means a path doesn't classify as the kind of thing the
// requested mutation can act on (e.g. rmdir on a file, rm on a tagdir).
var ErrInvalidPath = stagerr.New(stagerr.InvalidPath)

// ErrBadTag means a tag/tag-group name failed validation (missing source
// tag, unmergeable name, or similar).
var ErrBadTag = stagerr.New(stagerr.BadTag)

// statDeviceInode stats path and returns its device/inode pair — the
// identity a collection tracks a linked file by, since names alone aren't
// stable across renames on the source filesystem.
func statDeviceInode(path string) (device, inode uint64, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, errors.New("could not read device/inode from file info")
	}
	return uint64(st.Dev), uint64(st.Ino), nil
}

// Ln links src (an absolute path outside the collection) into the
// collection at relDst, under primaryTag. mountRoot is this collection's
// own mountpoint, used only to detect and reject a recursive self-link.
func Ln(ctx context.Context, s *store.Store, tx *sql.Tx, sym tagtype.Symbols, mountRoot, src, relDst, primaryTag string, uid, gid uint32, umask settings.UMask, aliasFile *string, n notify.Notifier) ([]store.TaggedFile, error) {
	if mountRoot != "" && within(src, mountRoot) {
		return nil, ErrRecursiveLink
	}

	if relDst == "" {
		if n != nil {
			_ = n.DraggedToRoot()
		}
		return nil, ErrInvalidPath
	}

	tags := tagtype.PathToTags(sym, relDst)
	tagNames := tagtype.CollectRegularNames(tags)

	device, inode, err := statDeviceInode(src)
	if err != nil {
		return nil, errors.Wrap(err, "stat'ing link source")
	}

	return s.AddFile(ctx, tx, device, inode, src, primaryTag, tagNames, uid, gid, umask.DirPerms(), umask.FilePerms(), store.NowSecs(), aliasFile)
}

func within(path, root string) bool {
	if root == "" {
		return false
	}
	return len(path) >= len(root) && path[:len(root)] == root
}

// Rm removes the link named by relPath — either a device-qualified symlink
// or a plain one — from its closest enclosing tag.
func Rm(ctx context.Context, s *store.Store, tx *sql.Tx, sym tagtype.Symbols, relPath string) ([]int64, error) {
	tags := tagtype.PathToTags(sym, relPath)
	if len(tags) == 0 {
		return nil, ErrInvalidPath
	}
	now := store.NowSecs()

	switch v := tags[len(tags)-1].(type) {
	case tagtype.DeviceFileSymlink:
		names := tagtype.CollectRegularNames(tags)
		if len(names) == 0 {
			return nil, ErrInvalidPath
		}
		lastTag := names[len(names)-1]
		return s.RemoveDeviceFile(ctx, tx, v.DeviceFile.Device, v.DeviceFile.Inode, []string{lastTag}, now)

	case tagtype.Symlink:
		regular := tagtype.CollectRegular(tags)
		if len(regular) == 0 {
			return nil, ErrInvalidPath
		}
		last := regular[len(regular)-1]
		return s.RemoveLinks(ctx, tx, v.Name, []tagtype.TagType{last}, now)

	default:
		return nil, ErrInvalidPath
	}
}

// Rmdir removes the tagdir or tag-group dir named by relPath, either
// outright (if it's the only component) or just from the intersection
// named by the whole path.
func Rmdir(ctx context.Context, s *store.Store, tx *sql.Tx, sym tagtype.Symbols, relPath string) error {
	tags := tagtype.PathToTags(sym, relPath)
	if len(tags) == 0 {
		return ErrInvalidPath
	}
	now := store.NowSecs()

	switch v := tags[len(tags)-1].(type) {
	case tagtype.Group:
		parts := tagtype.CollectTagsAndGroups(tags)
		switch len(parts) {
		case 0:
			return ErrInvalidPath
		case 1:
			return s.RemoveTagGroup(ctx, tx, v.Tag)
		default:
			return s.RemoveTagGroupFromIntersection(ctx, tx, v.Tag, tags)
		}

	case tagtype.Regular:
		parts := tagtype.CollectTagsAndGroups(tags)
		switch len(parts) {
		case 0:
			return ErrInvalidPath
		case 1:
			return s.RemoveTag(ctx, tx, v.Tag, now, true)
		default:
			_, err := s.RemoveTagFromIntersection(ctx, tx, v.Tag, parts, now)
			return err
		}

	default:
		return ErrInvalidPath
	}
}

// Mkdir creates dir as a top-level tag or tag group, or — if it's nested
// under an existing intersection — pins it as an always-present empty
// directory.
func Mkdir(ctx context.Context, s *store.Store, tx *sql.Tx, sym tagtype.Symbols, dir string, uid, gid uint32, perms uint32) error {
	tags := tagtype.PathToTags(sym, dir)
	now := store.NowSecs()

	if len(tags) == 1 {
		switch v := tags[0].(type) {
		case tagtype.Group:
			return s.EnsureTagGroup(ctx, tx, v.Tag, uid, gid, perms, now)
		case tagtype.Regular:
			_, _, err := s.EnsureTag(ctx, tx, v.Tag, uid, gid, perms, now)
			return err
		default:
			return nil
		}
	}

	pinnable := tagtype.CollectPinnable(tags)
	if len(pinnable) == 0 {
		return nil
	}
	return s.PinTags(ctx, tx, pinnable, uid, gid, perms, now)
}
