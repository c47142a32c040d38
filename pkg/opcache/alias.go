package opcache

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/supertagfs/supertag/pkg/settings"
)

// Alias is a macOS Finder alias file in progress: a pseudo-fd the kernel is
// writing bytes into while we decide whether those bytes are a genuine
// alias blob. Finder never drags real symlinks, only aliases, so this is
// the only way drag-and-drop into a collection can work on macOS.
type Alias struct {
	mu sync.Mutex

	file *os.File

	// path is what the OS believes it's writing to; the real data lands in
	// managedFile once validation passes.
	path        string
	managedFile string

	headerPtr int
	written   int
	valid     *bool

	Btime time.Time
	Mtime time.Time
	Mode  uint32
	UMask settings.UMask
	UID   uint32
	GID   uint32

	// Linked is set once the alias has been turned into a real symlink on
	// release; writes after that point are refused.
	Linked bool
}

// NewAlias opens (creating if needed) the managed file backing path and
// returns an Alias staged to receive writes.
func NewAlias(path string, mode uint32, umask settings.UMask, uid, gid uint32, managedFile string) (*Alias, error) {
	if err := os.MkdirAll(filepath.Dir(managedFile), 0o755); err != nil {
		return nil, errors.Wrap(err, "ensuring managed file directory exists")
	}
	f, err := os.OpenFile(managedFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(mode))
	if err != nil {
		return nil, errors.Wrap(err, "opening managed file")
	}
	now := time.Now()
	return &Alias{
		file:        f,
		path:        path,
		managedFile: managedFile,
		Btime:       now,
		Mtime:       now,
		Mode:        mode,
		UMask:       umask,
		UID:         uid,
		GID:         gid,
	}, nil
}

// IsValid reports whether the bytes written so far passed alias-header
// validation and exceed the header's own length (a bare header with no
// payload isn't a usable alias).
func (a *Alias) IsValid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.valid != nil && *a.valid && a.written > len(settings.AliasHeader)
}

// Write validates and buffers data at offset, matching it byte-by-byte
// against the alias header until validation succeeds or fails outright.
// Once failed, every subsequent write to this Alias is refused.
func (a *Alias) Write(data []byte, offset int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Linked {
		return os.ErrPermission
	}
	a.Mtime = time.Now()

	if _, err := a.file.Seek(int64(offset), io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking managed file")
	}
	a.written = offset
	if offset < len(settings.AliasHeader) && (a.valid == nil || *a.valid) {
		a.headerPtr = offset
		a.valid = nil
	}

	switch {
	case a.valid != nil && !*a.valid:
		return os.ErrPermission
	case a.valid != nil && *a.valid:
		// already past validation, fall through to the write below
	default:
		if a.written < len(settings.AliasHeader) {
			for _, ch := range data {
				if a.headerPtr > len(settings.AliasHeader)-1 {
					ok := true
					a.valid = &ok
					break
				}
				if settings.AliasHeader[a.headerPtr] != ch {
					bad := false
					a.valid = &bad
					return os.ErrPermission
				}
				a.headerPtr++
			}
			if a.valid == nil && a.headerPtr >= len(settings.AliasHeader) {
				ok := true
				a.valid = &ok
			}
		}
	}

	if _, err := a.file.Write(data); err != nil {
		return errors.Wrap(err, "writing managed file")
	}
	a.written += len(data)
	return nil
}

// File returns the underlying managed file descriptor for reads.
func (a *Alias) File() *os.File { return a.file }

// ResetWritten zeroes the write-progress counter after a truncate, so a
// subsequent write is re-validated against the alias header from scratch
// instead of being treated as continuing past it.
func (a *Alias) ResetWritten() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.written = 0
	a.valid = nil
	a.headerPtr = 0
}

// aliasKeys returns both the filedir and non-filedir spellings of path so
// callers can clear an alias cache entry regardless of which variant the
// OS used to reach it — a drag can land on either a tagdir or its filedir.
func aliasKeys(filedirSym string, path string) [2]string {
	dir, base := filepath.Split(path)
	dir = filepath.Clean(dir)

	lastComponent := filepath.Base(dir)
	if lastComponent == filedirSym {
		// path already has a filedir component; the no-filedir variant
		// drops just that component.
		parent := filepath.Dir(dir)
		return [2]string{path, filepath.Join(parent, base)}
	}
	return [2]string{filepath.Join(dir, filedirSym, base), path}
}

// CreateAlias stages a new Alias in the cache, keyed to path, expiring
// after AliasTTL unless released or re-touched first.
func (c *Cache) CreateAlias(path string, mode uint32, umask settings.UMask, uid, gid uint32, managedFile string) (*Alias, error) {
	a, err := NewAlias(path, mode, umask, uid, gid, managedFile)
	if err != nil {
		return nil, err
	}
	c.aliases.set(path, a, AliasTTL)
	return a, nil
}

// CheckAlias returns the staged Alias for path, if one is still live.
func (c *Cache) CheckAlias(path string) (*Alias, bool) {
	v, ok := c.aliases.get(path)
	if !ok {
		return nil, false
	}
	return v.(*Alias), true
}

// ClearAlias drops both the filedir and non-filedir spellings of path from
// the alias cache.
func (c *Cache) ClearAlias(filedirSym, path string) {
	for _, k := range aliasKeys(filedirSym, path) {
		if c.aliases.remove(k) {
			log.WithField("path", k).Debug("cleared alias cache entry")
		}
	}
}

// HashedManagedPath returns a fresh random (UUID) file name under root for
// the real file backing an alias, so two aliases with the same display name
// in different tags never collide on disk. The name is not derived from the
// alias's path: every call returns a different path.
func HashedManagedPath(root string) string {
	return filepath.Join(root, uuid.New().String())
}
