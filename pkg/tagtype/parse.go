package tagtype

import (
	"path"
	"strconv"
	"strings"

	"github.com/supertagfs/supertag/pkg/settings"
)

// StripNegativeTag strips the negation prefix from a path component, if
// present.
func StripNegativeTag(s Symbols, comp string) (string, bool) {
	if strings.HasPrefix(comp, s.NegativeTag) {
		return comp[len(s.NegativeTag):], true
	}
	return "", false
}

// Symbols is re-exported so callers of this package don't need to import
// settings directly just to build a parser.
type Symbols = settings.Symbols

// HasExtPrefix reports whether name, with any trailing ".ext" set aside,
// ends with toCheck.
func HasExtPrefix(name, toCheck string) bool {
	base, _, hasExt := splitExt(name)
	if hasExt {
		return strings.HasSuffix(base, toCheck)
	}
	return strings.HasSuffix(name, toCheck)
}

// StripExtPrefix removes toCheck from the end of name's base (extension
// preserved), returning the stripped name and whether toCheck was present.
func StripExtPrefix(name, toCheck string) (string, bool) {
	base, ext, hasExt := splitExt(name)
	if hasExt {
		if !strings.HasSuffix(base, toCheck) {
			return "", false
		}
		return base[:len(base)-len(toCheck)] + "." + ext, true
	}
	if !strings.HasSuffix(name, toCheck) {
		return "", false
	}
	return name[:len(name)-len(toCheck)], true
}

// SetExtPrefix appends toPrefix to name's base, preserving any extension.
func SetExtPrefix(name, toPrefix string) string {
	base, ext, hasExt := splitExt(name)
	if hasExt {
		return base + toPrefix + "." + ext
	}
	return name + toPrefix
}

// splitExt mimics the original's rsplitn(2, ".") behavior: at most one
// split, from the right.
func splitExt(name string) (base, ext string, hasExt bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}

// CreatableTagGroup reports whether name is legal as a fresh tag-group
// name: it must not already carry the tag-group suffix, must not contain
// the path separator, and must not equal the filedir marker.
func CreatableTagGroup(s Symbols, name string) bool {
	return !HasExtPrefix(name, s.TagGroupStr) &&
		!strings.ContainsRune(name, '/') &&
		name != s.FileDirStr
}

// NameToTagGroup renders a bare tag-group name as its on-disk form (with
// the tag-group suffix attached).
func NameToTagGroup(s Symbols, name string) string {
	return SetExtPrefix(name, s.TagGroupStr)
}

// GetFilename returns the final path component.
func GetFilename(p string) string {
	return path.Base(p)
}

// PrimaryTag extracts the primary-tag portion of a device-qualified
// filename: everything up to (but not including) the device marker. Returns
// ok=false if the result would be a single character or empty (not a
// meaningful primary tag).
func PrimaryTag(filename string, deviceChar rune) (string, bool) {
	var b strings.Builder
	for _, r := range filename {
		if r == deviceChar {
			break
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len([]rune(out)) > 1 {
		return out, true
	}
	return "", false
}

// ShouldUnlink reports whether name is the rename-to-delete sentinel. On
// macOS, Finder cannot rename a file and drop its extension, so "delete.ext"
// is accepted too; the macOS build tag supplies that variant.
func ShouldUnlink(name string) bool {
	return shouldUnlinkPlatform(name)
}

// InodifyFilename reconstructs the device-qualified filename for a real
// filename plus its device/inode pair.
func InodifyFilename(s Symbols, filename string, device, inode uint64) string {
	var b strings.Builder
	b.WriteString(filename)
	b.WriteRune(s.DeviceChar)
	b.WriteString(strconv.FormatUint(device, 10))
	b.WriteRune(s.InodeChar)
	b.WriteString(strconv.FormatUint(inode, 10))
	return b.String()
}

// FilenameToDeviceFile attempts to parse filename as a device-qualified
// name. It carries a small character-scan state machine (not a regex, for
// the same performance reason the original avoids one): once the device
// marker is seen, subsequent characters are captured as the device number
// until the inode marker switches to capturing the inode number. The sync
// character is skipped wherever it appears. If the inode capture is never
// entered, filename is not a device file and (nil, nil) is returned.
func FilenameToDeviceFile(s Symbols, filename string) (*DeviceFile, error) {
	var deviceNums, inodeNums, realName []rune
	capturingDevice := false
	capturingInode := false

	for _, r := range filename {
		switch {
		case r == s.DeviceChar:
			capturingDevice = true
		case r == s.InodeChar && capturingDevice:
			capturingInode = true
			capturingDevice = false
		case r == s.SyncChar:
			// ignored entirely
		case capturingDevice:
			deviceNums = append(deviceNums, r)
		case capturingInode:
			inodeNums = append(inodeNums, r)
		default:
			realName = append(realName, r)
		}
	}

	if !capturingInode {
		return nil, nil
	}

	device, err := strconv.ParseUint(string(deviceNums), 10, 64)
	if err != nil {
		return nil, &BadDeviceFileError{Filename: filename}
	}
	inode, err := strconv.ParseUint(string(inodeNums), 10, 64)
	if err != nil {
		return nil, &BadDeviceFileError{Filename: filename}
	}

	return &DeviceFile{Filename: string(realName), Device: device, Inode: inode}, nil
}

// BadDeviceFileError indicates a filename looked like a device-qualified
// name but its device/inode digits didn't parse.
type BadDeviceFileError struct {
	Filename string
}

func (e *BadDeviceFileError) Error() string {
	return "bad device file: " + e.Filename
}

// PathToTags parses path into an ordered TagCollection token list. The
// classification is context-sensitive: a component is a Symlink only if
// the immediately preceding component classified as FileDir, so the scan
// carries that one bit of state forward rather than classifying each
// component in isolation.
func PathToTags(s Symbols, p string) []TagType {
	var tags []TagType
	var prev TagType

	for _, comp := range strings.Split(strings.Trim(p, "/"), "/") {
		if comp == "" {
			continue
		}
		var t TagType
		if trimmed, ok := StripNegativeTag(s, comp); ok {
			t = Negation{Tag: trimmed}
		} else if trimmed, ok := StripExtPrefix(comp, s.TagGroupStr); ok {
			t = Group{Tag: trimmed}
		} else if comp == s.FileDirStr || comp == s.FileDirCLIStr {
			t = FileDir{}
		} else if df, err := FilenameToDeviceFile(s, comp); err == nil && df != nil {
			t = DeviceFileSymlink{DeviceFile: *df}
		} else if _, ok := prev.(FileDir); ok {
			t = Symlink{Name: comp}
		} else {
			t = Regular{Tag: comp}
		}
		prev = t
		tags = append(tags, t)
	}
	return tags
}
