package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Mount holds the owner/permissions a collection's root directory is
// mounted with — everything else inside the collection derives its
// ownership from these at creation time.
type Mount struct {
	UID         uint32 `json:"uid"`
	GID         uint32 `json:"gid"`
	Permissions uint32 `json:"permissions"`
}

// Config is the per-collection configuration persisted to disk as JSON:
// the magic path symbols plus the mount defaults. Config structs like
// this, populated by plain encoding/json rather than a TOML library, are
// the pattern the rest of this module's ambient config follows.
type Config struct {
	Symbols Symbols `json:"symbols"`
	Mount   Mount   `json:"mount"`
}

// DefaultConfig is the built-in configuration merged first, before any
// user or collection override.
func DefaultConfig() Config {
	return Config{
		Symbols: DefaultSymbols(),
		Mount: Mount{
			UID:         uint32(os.Getuid()),
			GID:         uint32(os.Getgid()),
			Permissions: 0o755,
		},
	}
}

// mergeConfig overlays any fields override explicitly sets onto base.
// Since JSON-unmarshaling only touches fields present in the file, a
// config file that omits a section leaves base's value for it untouched.
func mergeConfig(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, errors.Wrapf(err, "reading config file %s", path)
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return base, errors.Wrapf(err, "parsing config file %s", path)
	}
	return base, nil
}

// Dirs abstracts the platform-specific standard directories a collection's
// files live under, mirroring original_source/src/common/settings/dirs.rs's
// per-OS Dirs trait implementations without hardcoding one platform.
type Dirs interface {
	ConfigDir() string
	DataDir() string
	MountBaseDir() string
}

type xdgDirs struct{}

func (xdgDirs) ConfigDir() string {
	if d := os.Getenv("SUPERTAG_CONFIG_DIR"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "supertag")
}

func (xdgDirs) DataDir() string {
	if d := os.Getenv("SUPERTAG_DATA_DIR"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "supertag")
}

func (xdgDirs) MountBaseDir() string {
	if d := os.Getenv("SUPERTAG_MOUNT_DIR"); d != "" {
		return d
	}
	if runtime.GOOS == "darwin" {
		return "/Volumes"
	}
	return "/mnt"
}

// NewDirs returns the platform-appropriate Dirs, honoring
// SUPERTAG_{CONFIG,DATA,MOUNT}_DIR overrides ahead of OS defaults — the Go
// analogue of the original's directories crate indirection, without
// pulling in a directories library the teacher and pack never reach for.
func NewDirs() Dirs { return xdgDirs{} }

// Settings is the merged view of configuration and platform directories
// every other package consults: where a collection's store, mountpoint,
// and notifier socket live, and what magic characters its paths use.
type Settings struct {
	mu         sync.RWMutex
	dirs       Dirs
	base       Config
	collection string
}

// New loads (or seeds, if absent) the base config file under dirs and
// returns Settings ready to have a collection selected.
func New(dirs Dirs) (*Settings, error) {
	if err := os.MkdirAll(dirs.ConfigDir(), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating config dir")
	}
	if err := os.MkdirAll(dirs.DataDir(), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating data dir")
	}

	s := &Settings{dirs: dirs}
	baseFile := filepath.Join(dirs.ConfigDir(), "config.json")
	cfg, err := mergeConfig(DefaultConfig(), baseFile)
	if err != nil {
		return nil, err
	}
	s.base = cfg
	return s, nil
}

// SetCollection selects the active collection. If loadConfig is true, the
// collection's own config.json is merged on top of the base config.
func (s *Settings) SetCollection(col string, loadConfig bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = col
	if !loadConfig {
		return nil
	}
	cfg, err := mergeConfig(s.base, s.configFileLocked(col))
	if err != nil {
		return err
	}
	s.base = cfg
	return nil
}

// Collection returns the currently-selected collection name.
func (s *Settings) Collection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// Config returns the currently-merged configuration.
func (s *Settings) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Symbols returns the active path-grammar magic characters.
func (s *Settings) Symbols() Symbols {
	return s.Config().Symbols
}

// SetMount overrides the active collection's mount ownership/permissions,
// letting the mount CLI command's --uid/--gid/--permissions flags take
// precedence over whatever config.json last persisted.
func (s *Settings) SetMount(m Mount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.Mount = m
}

func (s *Settings) SupertagDir() string {
	return s.dirs.MountBaseDir()
}

func (s *Settings) ConfigDir() string {
	return s.dirs.ConfigDir()
}

func (s *Settings) DataDir() string {
	return s.dirs.DataDir()
}

func (s *Settings) CollectionsDir() string {
	return filepath.Join(s.dirs.ConfigDir(), "collections")
}

func (s *Settings) CollectionDir(col string) string {
	return filepath.Join(s.CollectionsDir(), col)
}

func (s *Settings) LogDir(col string) string {
	return filepath.Join(s.CollectionDir(col), "logs")
}

func (s *Settings) ManagedDir(col string) string {
	return filepath.Join(s.CollectionDir(col), "managed")
}

// Mountpoint is the absolute directory a collection is mounted at.
func (s *Settings) Mountpoint(col string) string {
	return filepath.Join(s.SupertagDir(), col)
}

func (s *Settings) DBFile(col string) string {
	return filepath.Join(s.CollectionDir(col), col+".db")
}

func (s *Settings) NotifySocketFile(col string) string {
	return filepath.Join(s.CollectionDir(col), "notify.sock")
}

func (s *Settings) configFileLocked(col string) string {
	return filepath.Join(s.CollectionsDir(), col, "config.json")
}

func (s *Settings) ConfigFile(col string) string {
	return filepath.Join(s.CollectionsDir(), col, "config.json")
}

// EnsureCollectionDirs creates every directory a collection needs before
// it can be mounted.
func (s *Settings) EnsureCollectionDirs(col string) error {
	for _, d := range []string{s.CollectionDir(col), s.LogDir(col)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", d)
		}
	}
	return nil
}

// CollectionFromPath determines which collection a path falls under by
// stripping the mount base dir and taking the first remaining component.
// If confirmExists is set, the collection's own directory must also exist
// on disk for the match to count.
func (s *Settings) CollectionFromPath(path string, confirmExists bool) (string, bool) {
	rel, err := filepath.Rel(s.SupertagDir(), path)
	if err != nil || rel == "." || len(rel) == 0 || rel[0] == '.' {
		return "", false
	}
	col := firstComponent(rel)
	if col == "" {
		return "", false
	}
	if confirmExists {
		if _, err := os.Stat(s.CollectionDir(col)); err != nil {
			return "", false
		}
	}
	return col, true
}

func firstComponent(rel string) string {
	for i := 0; i < len(rel); i++ {
		if rel[i] == filepath.Separator {
			return rel[:i]
		}
	}
	return rel
}

// ResolveCollection determines path's collection, falling back to the
// lone mounted collection if path doesn't resolve to one directly, and
// records the result as the active collection.
func (s *Settings) ResolveCollection(path string, listMounted func() ([]string, error)) (string, error) {
	if col, ok := s.CollectionFromPath(path, true); ok {
		return col, s.SetCollection(col, false)
	}
	cols, err := listMounted()
	if err != nil {
		return "", err
	}
	if len(cols) != 1 {
		return "", errors.New("could not resolve a collection for " + path)
	}
	return cols[0], s.SetCollection(cols[0], false)
}

// NotificationIcon returns the path to the AppImage-bundled tray icon, if
// this process is running from one (APPDIR set).
func (s *Settings) NotificationIcon() (string, bool) {
	appdir := os.Getenv("APPDIR")
	if appdir == "" {
		return "", false
	}
	p := filepath.Join(appdir, "supertag.png")
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}
