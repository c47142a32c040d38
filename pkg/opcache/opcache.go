// Package opcache holds the short-lived, purely-optimizational state the FS
// callback layer needs to behave like a regular filesystem: readdir results
// worth reusing for the getattr calls that immediately follow them, a
// per-request symlink resolution buffer, a grace window for renaming a file
// to "delete" instead of unlinking it outright, a way to reject a recursive
// delete once its canary file has been touched, and (macOS only) a staging
// area for Finder alias files being written. None of these caches are
// load-bearing for correctness — every entry can be recomputed from
// pkg/store — so each is a plain mutex-guarded map rather than anything
// pulled from a generic cache library, grounded on
// original_source/src/fuse/opcache.rs's five independent stores.
package opcache

import (
	"sync"
	"time"

	"github.com/supertagfs/supertag/pkg/utils"
)

var log = utils.GetLogger("opcache")

const (
	SymlinkTTL      = 500 * time.Millisecond
	ReaddirTTL      = time.Second
	AliasTTL        = 500 * time.Millisecond
	RenameDeleteTTL = 500 * time.Millisecond
	DenyDeleteTTL   = 2 * time.Second
)

// EntryKind distinguishes what a readdir cache entry actually holds.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryTag
	EntryTagGroup
)

// ReaddirEntry is whatever readdir last resolved a path to: exactly one of
// File/Tag/Group is populated, matching Kind.
type ReaddirEntry struct {
	Kind  EntryKind
	File  interface{}
	Tag   interface{}
	Group interface{}
}

type ttlMap struct {
	mu      sync.Mutex
	entries map[string]ttlEntry
}

type ttlEntry struct {
	value   interface{}
	expires time.Time
}

func newTTLMap() *ttlMap {
	return &ttlMap{entries: make(map[string]ttlEntry)}
}

func (m *ttlMap) set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = ttlEntry{value: value, expires: time.Now().Add(ttl)}
}

func (m *ttlMap) get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

// remove deletes key unconditionally and reports whether it was present
// (and unexpired).
func (m *ttlMap) remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	delete(m.entries, key)
	return ok && time.Now().Before(e.expires)
}

func (m *ttlMap) has(key string) bool {
	_, ok := m.get(key)
	return ok
}

// Cache bundles the five sub-caches the FS callback layer consults. Safe
// for concurrent use: every sub-cache is independently locked.
type Cache struct {
	symlinks      *ttlMap
	readdirs      *ttlMap
	aliases       *ttlMap
	renameDeletes *ttlMap
	denyDeletes   *ttlMap
}

func New() *Cache {
	return &Cache{
		symlinks:      newTTLMap(),
		readdirs:      newTTLMap(),
		aliases:       newTTLMap(),
		renameDeletes: newTTLMap(),
		denyDeletes:   newTTLMap(),
	}
}

// symlinkKey scopes a cached resolution to the request that produced it —
// two callers racing the same path must not see each other's cached file.
func symlinkKey(requestID uint64, path string) string {
	return path + "\x00" + itoa(requestID)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// AddSymlink remembers a freshly created link for the short window between
// the symlink call creating it and the getattr the kernel issues right
// after for the same path.
func (c *Cache) AddSymlink(requestID uint64, path string, file interface{}) {
	c.symlinks.set(symlinkKey(requestID, path), file, SymlinkTTL)
}

// ConsumeSymlink returns and clears a cached resolution, if still live.
func (c *Cache) ConsumeSymlink(requestID uint64, path string) (interface{}, bool) {
	key := symlinkKey(requestID, path)
	c.symlinks.mu.Lock()
	defer c.symlinks.mu.Unlock()
	e, ok := c.symlinks.entries[key]
	delete(c.symlinks.entries, key)
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

// AddReaddirEntry remembers what readdir resolved path to, so the getattr
// calls a file browser issues right after listing a directory hit this
// cache instead of recomputing the intersection query.
func (c *Cache) AddReaddirEntry(path string, entry ReaddirEntry) {
	log.WithField("path", path).Debug("caching readdir entry")
	c.readdirs.set(path, entry, ReaddirTTL)
}

func (c *Cache) CheckReaddirEntry(path string) (ReaddirEntry, bool) {
	v, ok := c.readdirs.get(path)
	if !ok {
		return ReaddirEntry{}, false
	}
	return v.(ReaddirEntry), true
}

// ClearReaddirEntry drops path from the cache; callers flush every affected
// path after a mutation commits.
func (c *Cache) ClearReaddirEntry(path string) bool {
	return c.readdirs.remove(path)
}

// AddRenameDelete marks path as having just been "renamed to delete" —
// some file browsers rename a tag directory to "delete" as a workaround for
// not having a delete key, then immediately stat the result, so this lets
// that stat briefly keep reporting a directory under its new name.
func (c *Cache) AddRenameDelete(path string) {
	c.renameDeletes.set(path, struct{}{}, RenameDeleteTTL)
}

func (c *Cache) ConsumeRenameDelete(path string) bool {
	return c.renameDeletes.remove(path)
}

// RenameDeleteActive reports whether path is still within its post-
// rename-to-delete grace window, without consuming the entry — a racing
// getattr may be followed by more than one re-stat before the kernel gives
// up on the path.
func (c *Cache) RenameDeleteActive(path string) bool {
	return c.renameDeletes.has(path)
}

// AddDenyDeletePID remembers that pid just touched the unlink canary — any
// further delete from that pid is refused, which safely aborts a recursive
// delete before it reaches real tags.
func (c *Cache) AddDenyDeletePID(pid int32) {
	c.denyDeletes.set(pidKey(pid), struct{}{}, DenyDeleteTTL)
}

func (c *Cache) CheckDenyDeletePID(pid int32) bool {
	return c.denyDeletes.has(pidKey(pid))
}

func pidKey(pid int32) string {
	neg := pid < 0
	if neg {
		pid = -pid
	}
	s := itoa(uint64(pid))
	if neg {
		return "-" + s
	}
	return s
}
