package tagtype

import (
	"errors"
	"strings"
)

// ErrNotEnoughTags is returned by PrimaryType when the collection is empty.
var ErrNotEnoughTags = errors.New("not enough tags")

// Collection holds the parsed token sequence for a path, plus whether the
// path carried a trailing sync-char (a cache-flush probe).
type Collection struct {
	symbols   Symbols
	tags      []TagType
	Unlinking bool
}

// NewCollection parses p into a Collection using the given symbol set.
func NewCollection(s Symbols, p string) *Collection {
	unlinking := strings.HasSuffix(p, string(s.SyncChar))
	return &Collection{
		symbols:   s,
		tags:      PathToTags(s, p),
		Unlinking: unlinking,
	}
}

// Len returns the number of tokens in the collection.
func (c *Collection) Len() int { return len(c.tags) }

// Tags returns the underlying token slice.
func (c *Collection) Tags() []TagType { return c.tags }

// Pop removes and returns the last token, or nil if the collection is empty.
func (c *Collection) Pop() TagType {
	if len(c.tags) == 0 {
		return nil
	}
	last := c.tags[len(c.tags)-1]
	c.tags = c.tags[:len(c.tags)-1]
	return last
}

// Push appends a token.
func (c *Collection) Push(t TagType) {
	c.tags = append(c.tags, t)
}

// First returns the first token, or nil if empty.
func (c *Collection) First() TagType {
	if len(c.tags) == 0 {
		return nil
	}
	return c.tags[0]
}

// Last returns the last token, or nil if empty.
func (c *Collection) Last() TagType {
	if len(c.tags) == 0 {
		return nil
	}
	return c.tags[len(c.tags)-1]
}

// PrimaryType is the last token; every getattr/readdir decision dispatches
// on it.
func (c *Collection) PrimaryType() (TagType, error) {
	if len(c.tags) == 0 {
		return nil, ErrNotEnoughTags
	}
	return c.tags[len(c.tags)-1], nil
}

// PrimaryParent is the second-to-last token, or nil if there isn't one.
func (c *Collection) PrimaryParent() TagType {
	idx := len(c.tags) - 2
	if idx < 0 {
		return nil
	}
	return c.tags[idx]
}

// AllButLast returns every token except the last.
func (c *Collection) AllButLast() []TagType {
	if len(c.tags) == 0 {
		return nil
	}
	return c.tags[:len(c.tags)-1]
}

// JoinPath renders the collection back into a slash-joined path using the
// on-disk form of each token.
func (c *Collection) JoinPath() string {
	parts := make([]string, len(c.tags))
	for i, t := range c.tags {
		parts[i] = toPathPart(c.symbols, t)
	}
	return strings.Join(parts, "/")
}

func toPathPart(s Symbols, t TagType) string {
	switch v := t.(type) {
	case Regular:
		return v.Tag
	case Negation:
		return s.NegativeTag + v.Tag
	case Group:
		return SetExtPrefix(v.Tag, s.TagGroupStr)
	case FileDir:
		return s.FileDirStr
	case DeviceFileSymlink:
		return InodifyFilename(s, v.DeviceFile.Filename, v.DeviceFile.Device, v.DeviceFile.Inode)
	case Symlink:
		return v.Name
	default:
		return ""
	}
}
