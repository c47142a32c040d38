// Package query composes pkg/store's relational primitives into the two
// decisions the FS callback layer needs for every path: what would stat(2)
// return for it (Resolve), and what does it contain (ReadDir). Both are
// pure functions of the store and a parsed path — the op cache that short-
// circuits repeat lookups lives one layer up, in pkg/fs, which is why
// neither function here touches it.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

// Kind classifies what a resolved path turned out to be, so pkg/fs can
// build the right cgofuse stat_t without re-deriving it from TagType.
type Kind int

const (
	KindDir Kind = iota
	KindFile
	KindSymlink
)

// Node is the result of resolving a path: either a directory (tag, tag
// group, filedir, or the collection root) or a leaf (a tagged file, always
// surfaced to FUSE as a symlink to its real location).
type Node struct {
	Kind        Kind
	Mtime       time.Time
	UID         uint32
	GID         uint32
	Permissions uint32
	NumFiles    int64
	File        *store.TaggedFile
}

// ErrNotFound means the path has no referent — translates to ENOENT at the
// FS boundary.
var ErrNotFound = fmt.Errorf("not found")

// Entry is one child name in a directory listing.
type Entry struct {
	Name  string
	Mtime time.Time
}

// Engine answers Resolve/ReadDir questions against a single collection's
// store.
type Engine struct {
	Store   *store.Store
	Symbols tagtype.Symbols
}

func New(s *store.Store, symbols tagtype.Symbols) *Engine {
	return &Engine{Store: s, Symbols: symbols}
}

// checkTagGroupPairs validates that every (Group, Regular) pair along the
// path actually has that tag as a member of that group — a path like
// /wrong_group+/some_other_tag is never resolvable even if both components
// individually exist.
func (e *Engine) checkTagGroupPairs(ctx context.Context, tags []tagtype.TagType) (bool, error) {
	for _, pair := range tagtype.TaggroupPairs(tags) {
		ok, err := e.Store.TagIsInGroup(ctx, pair[0], pair[1])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// RootNode resolves the collection root itself ("/"), which carries the
// mount's configured ownership rather than any tag's.
func (e *Engine) RootNode(ctx context.Context, uid, gid uint32, perms uint32) (*Node, error) {
	mtime, err := e.Store.GetRootMtime(ctx)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindDir, Mtime: mtime, UID: uid, GID: gid, Permissions: perms}, nil
}

// Resolve answers what path (already parsed into tags) refers to.
func (e *Engine) Resolve(ctx context.Context, tags []tagtype.TagType) (*Node, error) {
	if ok, err := e.checkTagGroupPairs(ctx, tags); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}

	if len(tags) == 0 {
		return nil, ErrNotFound
	}
	primary := tags[len(tags)-1]
	allButLast := tags[:len(tags)-1]

	switch v := primary.(type) {
	case tagtype.DeviceFileSymlink:
		tf, err := e.Store.ContainsFile(ctx, allButLast, func(f store.TaggedFile) bool {
			return v.DeviceFile.Matches(f.PrimaryTag, f.Device, f.Inode)
		})
		if err != nil {
			return nil, err
		}
		if tf == nil {
			return nil, ErrNotFound
		}
		return fileNode(tf), nil

	case tagtype.Symlink:
		files, err := e.Store.FilesTaggedWith(ctx, allButLast)
		if err != nil {
			return nil, err
		}
		var matches []store.TaggedFile
		for _, f := range files {
			if f.PrimaryTag == v.Name {
				matches = append(matches, f)
			}
		}
		if len(matches) != 1 {
			return nil, ErrNotFound
		}
		return fileNode(&matches[0]), nil

	case tagtype.Group:
		return e.resolveGroup(ctx, tags, v.Tag)

	case tagtype.FileDir:
		return e.resolveFileDir(ctx, tags)

	case tagtype.Regular:
		return e.resolveTagdir(ctx, tags, v.Tag)

	case tagtype.Negation:
		return e.resolveTagdir(ctx, tags, v.Tag)

	default:
		return nil, ErrNotFound
	}
}

func fileNode(tf *store.TaggedFile) *Node {
	return &Node{
		Kind:        KindSymlink,
		Mtime:       tf.Mtime,
		UID:         tf.UID,
		GID:         tf.GID,
		Permissions: tf.Permissions,
		File:        tf,
	}
}

func (e *Engine) resolveGroup(ctx context.Context, tags []tagtype.TagType, name string) (*Node, error) {
	if len(tags) == 1 {
		g, err := e.Store.GetTagGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, ErrNotFound
		}
		n, err := e.Store.NumFilesForTagGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindDir, Mtime: g.Mtime, UID: g.UID, GID: g.GID, Permissions: g.Permissions, NumFiles: n}, nil
	}

	lastWasGroup := false
	for _, t := range tags {
		if _, ok := t.(tagtype.Group); ok {
			if lastWasGroup {
				return nil, ErrNotFound
			}
			lastWasGroup = true
		} else {
			lastWasGroup = false
		}
	}

	groups, err := e.Store.TagGroupIntersections(ctx, tags)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == name {
			return &Node{Kind: KindDir, Mtime: g.Mtime, UID: g.UID, GID: g.GID, Permissions: g.Permissions, NumFiles: g.NumFiles}, nil
		}
	}
	return nil, ErrNotFound
}

func (e *Engine) resolveFileDir(ctx context.Context, tags []tagtype.TagType) (*Node, error) {
	if len(tags) < 2 {
		return nil, ErrNotFound
	}
	parent := tags[len(tags)-2]
	var parentTag string
	switch p := parent.(type) {
	case tagtype.Regular:
		parentTag = p.Tag
	case tagtype.Negation:
		parentTag = p.Tag
	default:
		return nil, ErrNotFound
	}

	tag, err := e.Store.GetTag(ctx, parentTag)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, ErrNotFound
	}
	numFiles, err := e.Store.NumFilesForIntersection(ctx, tags)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindDir, Mtime: tag.Mtime, UID: tag.UID, GID: tag.GID, Permissions: tag.Permissions, NumFiles: numFiles}, nil
}

func (e *Engine) resolveTagdir(ctx context.Context, tags []tagtype.TagType, name string) (*Node, error) {
	if len(tags) == 1 {
		tag, err := e.Store.GetTag(ctx, name)
		if err != nil {
			return nil, err
		}
		if tag == nil {
			return nil, ErrNotFound
		}
		return &Node{Kind: KindDir, Mtime: tag.Mtime, UID: tag.UID, GID: tag.GID, Permissions: tag.Permissions, NumFiles: tag.NumFiles}, nil
	}

	allButLast := tags[:len(tags)-1]
	itags, err := e.Store.IntersectTag(ctx, allButLast, true)
	if err != nil {
		return nil, err
	}
	for _, t := range itags {
		if t.Name == name {
			return &Node{Kind: KindDir, Mtime: t.Mtime, UID: t.UID, GID: t.GID, Permissions: t.Permissions, NumFiles: t.NumFiles}, nil
		}
	}

	// maybe this tagdir was created empty via mkdir and persisted as a pin.
	pinned, err := e.Store.IsPinned(ctx, tags)
	if err != nil {
		return nil, err
	}
	if !pinned {
		return nil, ErrNotFound
	}

	switch last := tags[len(tags)-1].(type) {
	case tagtype.Regular:
		tag, err := e.Store.GetTag(ctx, last.Tag)
		if err != nil {
			return nil, err
		}
		if tag == nil {
			return nil, ErrNotFound
		}
		return &Node{Kind: KindDir, Mtime: tag.Mtime, UID: tag.UID, GID: tag.GID, Permissions: tag.Permissions, NumFiles: tag.NumFiles}, nil
	case tagtype.Group:
		g, err := e.Store.GetTagGroup(ctx, last.Tag)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, ErrNotFound
		}
		return &Node{Kind: KindDir, Mtime: g.Mtime, UID: g.UID, GID: g.GID, Permissions: g.Permissions}, nil
	default:
		return nil, ErrNotFound
	}
}
