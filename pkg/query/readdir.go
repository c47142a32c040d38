package query

import (
	"context"

	"github.com/supertagfs/supertag/pkg/tagtype"
)

// ReadDirRoot lists every top-level tag and tag group, excluding any tag
// that's a member of a listed group — those only show up nested under
// their group, never loose at the root too.
func (e *Engine) ReadDirRoot(ctx context.Context) ([]Entry, error) {
	tags, err := e.Store.GetAllTags(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := e.Store.GetAllTagGroups(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[int64]bool)
	for _, g := range groups {
		for _, id := range g.TagIDs {
			grouped[id] = true
		}
	}

	var out []Entry
	for _, t := range tags {
		if grouped[t.ID] {
			continue
		}
		out = append(out, Entry{Name: t.Name, Mtime: t.Mtime})
	}
	for _, g := range groups {
		out = append(out, Entry{Name: tagtype.NameToTagGroup(e.Symbols, g.Name), Mtime: g.Mtime})
	}
	return out, nil
}

// ReadDirRootFileDir lists every tag in the collection as a file entry —
// the root filedir (e.g. "/⋂") has no preceding tags to intersect against,
// so rather than an empty intersection it enumerates the whole tag space.
func (e *Engine) ReadDirRootFileDir(ctx context.Context) ([]Entry, error) {
	tags, err := e.Store.GetAllTags(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(tags))
	for i, t := range tags {
		out[i] = Entry{Name: t.Name, Mtime: t.Mtime}
	}
	return out, nil
}

// ReadDirFileDir lists the files at the intersection named by tags,
// qualifying any name that collides with another file in the same
// listing by its device/inode suffix (inodify) so both remain addressable.
// The synthetic unlink-canary entry is added by pkg/fs, not here, alongside
// "." and ".." — this only reports the tagged files themselves.
func (e *Engine) ReadDirFileDir(ctx context.Context, tags []tagtype.TagType) ([]Entry, error) {
	files, err := e.Store.FilesTaggedWith(ctx, tags)
	if err != nil {
		return nil, err
	}

	nameCount := make(map[string]int)
	for _, f := range files {
		nameCount[f.PrimaryTag]++
	}

	var out []Entry
	for _, f := range files {
		name := f.PrimaryTag
		if nameCount[f.PrimaryTag] > 1 {
			name = tagtype.InodifyFilename(e.Symbols, f.PrimaryTag, f.Device, f.Inode)
		}
		out = append(out, Entry{Name: name, Mtime: f.Mtime})
	}
	return out, nil
}

// ReadDirTagdir lists the tagdirs, tag groups, and pinned subdirectories
// that intersect with tags — the listing shown for any non-root,
// non-filedir directory.
func (e *Engine) ReadDirTagdir(ctx context.Context, tags []tagtype.TagType) ([]Entry, error) {
	itags, err := e.Store.IntersectTag(ctx, tags, true)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(itags))
	for i, t := range itags {
		ids[i] = t.ID
	}
	groups, err := e.Store.TagGroupsForTags(ctx, ids)
	if err != nil {
		return nil, err
	}

	var parentGroup string
	inTagGroup := false
	if len(tags) > 0 {
		if g, ok := tags[len(tags)-1].(tagtype.Group); ok {
			inTagGroup = true
			parentGroup = g.Tag
		}
	}

	grouped := make(map[int64]bool)
	if !inTagGroup {
		for _, g := range groups {
			if g.Name == parentGroup {
				continue
			}
			for _, id := range g.TagIDs {
				grouped[id] = true
			}
		}
	}

	var out []Entry
	if !inTagGroup {
		for _, g := range groups {
			out = append(out, Entry{Name: tagtype.NameToTagGroup(e.Symbols, g.Name), Mtime: g.Mtime})
		}
	}

	seen := make(map[int64]bool)
	for _, t := range itags {
		if grouped[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, Entry{Name: t.Name, Mtime: t.Mtime})
	}

	pinned, err := e.Store.PinnedSubdirs(ctx, tags)
	if err != nil {
		return nil, err
	}
	for _, p := range pinned {
		switch {
		case p.Tag != nil:
			if seen[p.Tag.ID] || grouped[p.Tag.ID] {
				continue
			}
			seen[p.Tag.ID] = true
			out = append(out, Entry{Name: p.Tag.Name, Mtime: p.Tag.Mtime})
		case p.Group != nil:
			out = append(out, Entry{Name: tagtype.NameToTagGroup(e.Symbols, p.Group.Name), Mtime: p.Group.Mtime})
		}
	}

	return out, nil
}

// ReadDir dispatches to the right listing based on what tags resolves to.
// An empty tags slice means the collection root.
func (e *Engine) ReadDir(ctx context.Context, tags []tagtype.TagType) ([]Entry, error) {
	if len(tags) == 0 {
		return e.ReadDirRoot(ctx)
	}
	if ok, err := e.checkTagGroupPairs(ctx, tags); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}

	if _, ok := tags[len(tags)-1].(tagtype.FileDir); ok {
		if len(tags) == 1 {
			return e.ReadDirRootFileDir(ctx)
		}
		return e.ReadDirFileDir(ctx, tags)
	}
	return e.ReadDirTagdir(ctx, tags)
}
