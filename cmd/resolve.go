package main

import (
	"github.com/supertagfs/supertag/pkg/platform"
	"github.com/supertagfs/supertag/pkg/settings"
)

// resolveCollection determines which mounted collection path falls under,
// falling back to the sole mounted collection when path isn't itself
// rooted under a collection directory (a bare relative tag path).
func resolveCollection(set *settings.Settings, path string) (string, error) {
	return set.ResolveCollection(path, func() ([]string, error) {
		mounted, err := platform.MountedCollections(set)
		if err != nil {
			return nil, err
		}
		cols := make([]string, 0, len(mounted))
		for col := range mounted {
			cols = append(cols, col)
		}
		return cols, nil
	})
}
