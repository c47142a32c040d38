package fs

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/supertagfs/supertag/pkg/mutation"
	"github.com/supertagfs/supertag/pkg/opcache"
	"github.com/supertagfs/supertag/pkg/query"
)

// handles maps the fh cgofuse hands back on every call to the *os.File a
// Create/Open produced it for — cgofuse only gives us an integer, so this
// is the only way Read/Write/Release recover the Go file value.
type handleTable struct {
	mu    sync.Mutex
	files map[uint64]*os.File
}

func newHandleTable() *handleTable { return &handleTable{files: make(map[uint64]*os.File)} }

func (t *handleTable) put(fh uint64, f *os.File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[fh] = f
}

func (t *handleTable) get(fh uint64) (*os.File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fh]
	return f, ok
}

func (t *handleTable) remove(fh uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, fh)
}

var handles = newHandleTable()

// resolveToManagedFile finds the real on-disk file a path resolves to when
// that file is one this collection manages directly (a macOS alias), as
// opposed to a symlink pointing outside the mount entirely. Checked in the
// same order as the original: readdir cache, alias cache, then the store.
func (fs *Filesystem) resolveToManagedFile(ctx context.Context, path string) (string, bool) {
	tags, _ := fs.parseTags(path)
	if len(tags) == 0 {
		return "", false
	}

	if entry, ok := fs.Cache.CheckReaddirEntry(path); ok && entry.Kind == opcache.EntryFile {
		node := entry.File.(*query.Node)
		if node.File != nil && node.File.AliasFile != nil {
			return *node.File.AliasFile, true
		}
		return "", false
	}

	if alias, ok := fs.Cache.CheckAlias(path); ok {
		return alias.File().Name(), true
	}

	node, err := fs.Engine.Resolve(ctx, tags)
	if err != nil || node.Kind != query.KindSymlink || node.File == nil {
		return "", false
	}
	if node.File.AliasFile == nil {
		return "", false
	}
	return *node.File.AliasFile, true
}

func (fs *Filesystem) Open(path string, flags int) (int, uint64) {
	managed, ok := fs.resolveToManagedFile(context.Background(), path)
	if !ok {
		return -fuse.ENOENT, 0
	}
	f, err := os.OpenFile(managed, openFlagsFromFuse(flags), 0o644)
	if err != nil {
		return -fuse.ENOENT, 0
	}
	fh := fs.nextHandle()
	handles.put(fh, f)
	return 0, fh
}

func openFlagsFromFuse(flags int) int {
	out := os.O_RDONLY
	switch flags & fuse.O_ACCMODE {
	case fuse.O_WRONLY:
		out = os.O_WRONLY
	case fuse.O_RDWR:
		out = os.O_RDWR
	}
	if flags&fuse.O_APPEND != 0 {
		out |= os.O_APPEND
	}
	if flags&fuse.O_TRUNC != 0 {
		out |= os.O_TRUNC
	}
	return out
}

func (fs *Filesystem) Read(path string, buff []byte, ofst int64, fh uint64) int {
	f, ok := handles.get(fh)
	if !ok {
		return -fuse.EBADF
	}
	n, err := f.ReadAt(buff, ofst)
	if err != nil && n == 0 {
		return 0
	}
	return n
}

// Write is only ever valid against a staged alias — every other path in a
// tag directory is read-only from the filesystem's perspective, since its
// real content lives wherever the linked source file does.
func (fs *Filesystem) Write(path string, data []byte, ofst int64, fh uint64) int {
	alias, ok := fs.Cache.CheckAlias(path)
	if !ok {
		return -fuse.EPERM
	}
	if err := alias.Write(data, int(ofst)); err != nil {
		fs.Cache.ClearAlias(fs.Symbols.FileDirStr, path)
		if fs.Notifier != nil {
			_ = fs.Notifier.BadCopy()
		}
		return -fuse.EPERM
	}
	return len(data)
}

func (fs *Filesystem) Flush(path string, fh uint64) int {
	return fs.processAlias(path)
}

func (fs *Filesystem) Release(path string, fh uint64) int {
	if f, ok := handles.get(fh); ok {
		f.Close()
		handles.remove(fh)
	}
	return fs.processAlias(path)
}

func (fs *Filesystem) Truncate(path string, size int64, fh uint64) int {
	managed, ok := fs.resolveToManagedFile(context.Background(), path)
	if !ok {
		return -fuse.ENOENT
	}
	if err := os.Truncate(managed, size); err != nil {
		return -fuse.EIO
	}
	if alias, ok := fs.Cache.CheckAlias(path); ok {
		alias.ResetWritten()
	}
	return 0
}

// processAlias is called on flush/release: once a staged alias's bytes
// pass header validation, the managed file is linked into the store as the
// file backing the path the user dragged something onto.
func (fs *Filesystem) processAlias(path string) int {
	alias, ok := fs.Cache.CheckAlias(path)
	if !ok {
		return 0
	}
	if !alias.IsValid() || alias.Linked {
		return 0
	}

	primaryTag := filepath.Base(path)
	managedPath := alias.File().Name()

	// The alias blob itself is treated as the real content: genuinely
	// resolving a macOS alias record to its original target requires
	// CoreServices APIs this module doesn't bind, so the managed copy
	// Finder wrote serves both roles (link source and alias_file).
	err := fs.Store.Mutate(context.Background(), func(tx *sql.Tx) error {
		_, e := mutation.Ln(context.Background(), fs.Store, tx, fs.Symbols, fs.Mountpoint, managedPath, relPath(path), primaryTag, alias.UID, alias.GID, alias.UMask, aliasFilePtr(alias), fs.Notifier)
		return e
	})
	if err != nil {
		fs.Cache.ClearAlias(fs.Symbols.FileDirStr, path)
		return errno(err)
	}

	alias.Linked = true
	fs.flushMutatedPath(path)
	return 0
}

func aliasFilePtr(a *opcache.Alias) *string {
	name := a.File().Name()
	return &name
}
