package main

import (
	"os"
	"path/filepath"

	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

// flushPath tells a live mount to drop path from its readdir cache: the CLI
// mutates the database directly, out of band from the FUSE process, so the
// only way to reach its in-memory cache is the sync-char stat probe
// Getattr already recognizes.
func flushPath(set *settings.Settings, path string) {
	sync := path + string(set.Symbols().SyncChar)
	_, _ = os.Stat(sync)
}

// flushTags flushes every regular tag named in relPath, so a tag directory
// whose membership just changed reports the right size/mtime on next stat.
func flushTags(set *settings.Settings, mountpoint, relPath string) {
	col := tagtype.NewCollection(set.Symbols(), "/"+relPath)
	for _, t := range col.Tags() {
		if r, ok := t.(tagtype.Regular); ok {
			flushPath(set, filepath.Join(mountpoint, r.Tag))
		}
	}
}
