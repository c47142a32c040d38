package fs

import (
	"path"
	"time"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/settings"
)

// syntheticKind classifies one of the handful of paths that must always
// report as existing regardless of what's in the store: platform indexer
// opt-outs, the recursive-delete canary, and the config dir exposing the
// real database file.
type syntheticKind int

const (
	syntheticNone syntheticKind = iota
	syntheticDir
	syntheticFile
	syntheticCanary
	syntheticDBSymlink
)

var syntheticTopLevel = map[string]syntheticKind{
	settings.FSEventsPath:      syntheticDir,
	settings.FSEventsNoLogPath: syntheticFile,
	settings.NoIndexPath:       syntheticFile,
	settings.TrackerIgnore:     syntheticFile,
	settings.UnlinkCanary:      syntheticCanary,
	settings.StagRootConfPath:  syntheticDir,
	settings.DBFilePath:        syntheticDBSymlink,
}

// canaryBase is the bare filename a recursive-delete probe looks for —
// readdir seeds it into every filedir listing, not just the mount root, so
// a GUI deleting "/tag/_/" trips it just as reliably as "/".
var canaryBase = path.Base(settings.UnlinkCanary)

// classifySynthetic reports whether path is one of the always-present
// entries. A bare canary filename matches anywhere, since readdir seeds it
// into every filedir.
func classifySynthetic(path_ string) syntheticKind {
	if k, ok := syntheticTopLevel[path_]; ok {
		return k
	}
	if path.Base(path_) == canaryBase {
		return syntheticCanary
	}
	return syntheticNone
}

func (fs *Filesystem) fillSynthetic(kind syntheticKind, stat *fuse.Stat_t) int {
	now := toTimespec(time.Now())
	stat.Uid = fs.mount.UID
	stat.Gid = fs.mount.GID
	stat.Atim, stat.Mtim, stat.Ctim, stat.Birthtim = now, now, now, now
	switch kind {
	case syntheticDir:
		stat.Mode = fuse.S_IFDIR | 0o755
		stat.Nlink = 2
	case syntheticFile, syntheticCanary:
		stat.Mode = fuse.S_IFREG | 0o444
		stat.Nlink = 1
		stat.Size = 0
	case syntheticDBSymlink:
		stat.Mode = fuse.S_IFLNK | 0o644
		stat.Nlink = 1
		stat.Size = int64(len(fs.Store.Path()))
	default:
		return -fuse.ENOENT
	}
	return 0
}
