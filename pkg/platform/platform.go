// Package platform answers the "what's on disk / what's mounted right now"
// questions the CLI commands need but pkg/settings, being pure
// configuration, doesn't: which collections exist, which of those are
// currently mounted, and how to tear a mount down. Grounded on
// original_source/src/platform/{linux,macos}.rs.
package platform

import (
	"os"

	"github.com/pkg/errors"

	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/utils"
)

var log = utils.GetLogger("platform")

// AllCollections lists every collection with a config directory under s,
// mounted or not.
func AllCollections(s *settings.Settings) ([]string, error) {
	entries, err := os.ReadDir(s.CollectionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading collections dir")
	}
	var cols []string
	for _, e := range entries {
		if e.IsDir() {
			cols = append(cols, e.Name())
		}
	}
	return cols, nil
}

// PrimaryCollection returns the single mounted collection when exactly one
// exists, the only signal a relative tag path has to pick a default.
func PrimaryCollection(s *settings.Settings) (string, bool, error) {
	mounted, err := MountedCollections(s)
	if err != nil {
		return "", false, err
	}
	if len(mounted) != 1 {
		return "", false, nil
	}
	for col := range mounted {
		return col, true, nil
	}
	return "", false, nil
}

// Unmount tears down a live FUSE mount at mountpoint.
func Unmount(mountpoint string) error {
	if err := unmount(mountpoint); err != nil {
		return errors.Wrapf(err, "unmounting %s", mountpoint)
	}
	log.WithField("mountpoint", mountpoint).Info("unmounted")
	return nil
}
