// Package xattrs bridges FUSE's xattr callbacks and the macOS alias-file
// write path to the real file underneath a Supertag symlink, using
// github.com/pkg/xattr the same way original_source/src/common/xattr.rs
// wraps the Rust xattr crate.
package xattrs

import (
	"github.com/pkg/errors"
	"github.com/pkg/xattr"
)

func List(path string) ([]string, error) {
	names, err := xattr.List(path)
	if err != nil {
		return nil, errors.Wrap(err, "listing xattrs")
	}
	return names, nil
}

func Get(path, name string) ([]byte, error) {
	v, err := xattr.Get(path, name)
	if err != nil {
		return nil, errors.Wrap(err, "getting xattr")
	}
	return v, nil
}

func Set(path, name string, value []byte) error {
	if err := xattr.Set(path, name, value); err != nil {
		return errors.Wrap(err, "setting xattr")
	}
	return nil
}

func Remove(path, name string) error {
	if err := xattr.Remove(path, name); err != nil {
		return errors.Wrap(err, "removing xattr")
	}
	return nil
}

// RenamePreservingXattrs renames from to to on the real filesystem, first
// copying every extended attribute across so macOS Finder metadata (tags,
// Finder info) survives the move of the file backing a Supertag link.
func RenamePreservingXattrs(from, to string) error {
	names, err := xattr.List(from)
	if err != nil {
		return errors.Wrap(err, "listing xattrs before rename")
	}
	saved := make(map[string][]byte, len(names))
	for _, name := range names {
		v, err := xattr.Get(from, name)
		if err != nil {
			return errors.Wrapf(err, "reading xattr %s before rename", name)
		}
		saved[name] = v
	}

	if err := renameFile(from, to); err != nil {
		return err
	}

	for name, v := range saved {
		if err := xattr.Set(to, name, v); err != nil {
			return errors.Wrapf(err, "restoring xattr %s after rename", name)
		}
	}
	return nil
}
