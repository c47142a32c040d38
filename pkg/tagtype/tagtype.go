// Package tagtype implements the path grammar: the closed set of token
// kinds a path component can classify as, and the ordered TagCollection
// those tokens form once a path has been parsed.
package tagtype

import "fmt"

// DeviceFile identifies a file by its real name plus the device/inode pair
// that disambiguates it from any other file sharing that name in the same
// filedir.
type DeviceFile struct {
	Filename string
	Device   uint64
	Inode    uint64
}

func (df DeviceFile) String() string {
	return fmt.Sprintf("<DeviceFile filename=%s device=%d inode=%d>", df.Filename, df.Device, df.Inode)
}

// Matches reports whether df identifies the same file as the given
// primary tag, device and inode triple.
func (df DeviceFile) Matches(primaryTag string, device, inode uint64) bool {
	return df.Filename == primaryTag && df.Device == device && df.Inode == inode
}

// TagType is the closed union of path-component classifications. Every
// concrete implementation lives in this file; exhaustive switches over it
// are expected throughout the codebase, matching the original's `match`
// over a Rust enum.
type TagType interface {
	isTagType()
	fmt.Stringer
}

// Regular is an ordinary tag name.
type Regular struct{ Tag string }

func (Regular) isTagType()       {}
func (r Regular) String() string { return fmt.Sprintf("Regular(%s)", r.Tag) }

// Negation is a tag name prefixed with the negation marker.
type Negation struct{ Tag string }

func (Negation) isTagType()       {}
func (n Negation) String() string { return fmt.Sprintf("Negation(%s)", n.Tag) }

// Group is a tag-group name (extension, if any, already stripped).
type Group struct{ Tag string }

func (Group) isTagType()       {}
func (g Group) String() string { return fmt.Sprintf("Group(%s)", g.Tag) }

// FileDir is the synthetic "show files at this intersection" component.
type FileDir struct{}

func (FileDir) isTagType()     {}
func (FileDir) String() string { return "FileDir" }

// DeviceFileSymlink identifies a disambiguated symlink target.
type DeviceFileSymlink struct{ DeviceFile DeviceFile }

func (DeviceFileSymlink) isTagType() {}
func (d DeviceFileSymlink) String() string {
	return d.DeviceFile.String()
}

// Symlink is a bare filename appearing directly under a FileDir.
type Symlink struct{ Name string }

func (Symlink) isTagType()       {}
func (s Symlink) String() string { return fmt.Sprintf("Symlink(%s)", s.Name) }

// CollectRegularNames returns the names of every Regular token.
func CollectRegularNames(tags []TagType) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if r, ok := t.(Regular); ok {
			out = append(out, r.Tag)
		}
	}
	return out
}

// CollectRegular returns every Regular token, in order.
func CollectRegular(tags []TagType) []TagType {
	out := make([]TagType, 0, len(tags))
	for _, t := range tags {
		if _, ok := t.(Regular); ok {
			out = append(out, t)
		}
	}
	return out
}

// CollectPinnable collects the tokens valid for pinning: Regular and
// Group, but collapsing consecutive Groups down to the first one (two
// adjacent tag-group components make no sense to pin as nested).
func CollectPinnable(tags []TagType) []TagType {
	out := make([]TagType, 0, len(tags))
	lastWasGroup := false
	for _, t := range tags {
		switch t.(type) {
		case Regular:
			out = append(out, t)
			lastWasGroup = false
		case Group:
			if lastWasGroup {
				continue
			}
			out = append(out, t)
			lastWasGroup = true
		default:
			lastWasGroup = false
		}
	}
	return out
}

// CollectTagsAndGroups returns every Regular or Group token, in order.
func CollectTagsAndGroups(tags []TagType) []TagType {
	out := make([]TagType, 0, len(tags))
	for _, t := range tags {
		switch t.(type) {
		case Regular, Group:
			out = append(out, t)
		}
	}
	return out
}

// TaggroupPairs returns every consecutive (Group, Regular) pair in the
// collection, used to validate which tags belong to which groups along a
// path.
func TaggroupPairs(tags []TagType) [][2]string {
	var out [][2]string
	for i := 0; i+1 < len(tags); i++ {
		g, ok1 := tags[i].(Group)
		r, ok2 := tags[i+1].(Regular)
		if ok1 && ok2 {
			out = append(out, [2]string{g.Tag, r.Tag})
		}
	}
	return out
}
