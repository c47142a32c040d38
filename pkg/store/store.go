package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"xorm.io/xorm"

	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/utils"
)

var log = utils.GetLogger("store")

// Store is the handle a collection's FUSE host and CLI commands share: a
// raw *sql.DB that every query and mutation in this package goes through,
// and an xorm.Engine opened over the same file and closed with the store
// (no query is issued through it).
type Store struct {
	path string
	db   *sql.DB
	x    *xorm.Engine
}

// Open migrates (if necessary) and opens the SQLite database at dbPath.
// It tries (without blocking) to take a gofrs/flock lock on dbPath+".lock"
// and holds it until Open returns, so two processes mounting the same
// collection concurrently don't race each other's schema creation. If
// another process already holds the lock, Open proceeds without it.
func Open(dbPath string) (*Store, error) {
	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring migration lock")
	}
	if locked {
		defer lock.Unlock()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_txlock=immediate")
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite3 database")
	}
	// SQLite only tolerates one writer; cap the pool so database/sql
	// doesn't hand out a second connection mid-write and trip
	// SQLITE_BUSY under load. Reads go through this same single
	// connection; the xorm engine opened below is not used for queries.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}

	x, err := xorm.NewEngine("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "opening xorm engine")
	}
	x.SetMaxOpenConns(4)

	log.WithField("path", dbPath).Debug("store opened")

	return &Store{
		path: dbPath,
		db:   db,
		x:    x,
	}, nil
}

// DefaultDBPath returns the conventional database location within a
// collection rooted at dir.
func DefaultDBPath(dir string) string {
	return dir + settings.DBFilePath
}

// Path returns the on-disk location of the backing SQLite file, exposed to
// callers (the synthetic /.supertag/db.sqlite3 readlink target) needing to
// point at it.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	s.x.Close()
	return s.db.Close()
}

// Mutate runs fn inside an immediate (write lock taken at BEGIN; see the
// _txlock DSN option in Open) transaction, matching the original's use of SQLite's IMMEDIATE mode for
// every mutation so writers serialize deterministically rather than
// discovering a conflict partway through. Every pkg/mutation entry point
// and CLI command wraps its store calls in a single Mutate so a failure
// partway through leaves the database untouched.
func (s *Store) Mutate(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if _, err := tx.Exec("PRAGMA foreign_keys=1"); err != nil {
		tx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetMeta reads the singleton supertag_meta row.
func (s *Store) GetMeta(ctx context.Context) (*Meta, error) {
	row := s.db.QueryRowContext(ctx, "SELECT migration_version, supertag_version, root_mtime FROM supertag_meta LIMIT 1")
	var m Meta
	var rootMtime float64
	if err := row.Scan(&m.MigrationVersion, &m.SupertagVersion, &rootMtime); err != nil {
		return nil, errors.Wrap(err, "reading supertag_meta")
	}
	m.RootMtime = floatToTime(rootMtime)
	return &m, nil
}

// GetRootMtime returns the root directory's logical mtime — bumped
// whenever a top-level tag or tag group is created or removed so clients
// invalidate their readdir cache of "/".
func (s *Store) GetRootMtime(ctx context.Context) (time.Time, error) {
	var rootMtime float64
	err := s.db.QueryRowContext(ctx, "SELECT root_mtime FROM supertag_meta LIMIT 1").Scan(&rootMtime)
	if err != nil {
		return time.Time{}, err
	}
	return floatToTime(rootMtime), nil
}

// UpdateRootMtime bumps the root mtime to now, inside tx if non-nil or as
// its own transaction otherwise.
func (s *Store) UpdateRootMtime(ctx context.Context, tx *sql.Tx) error {
	exec := func(q string, args ...interface{}) error {
		var err error
		if tx != nil {
			_, err = tx.ExecContext(ctx, q, args...)
		} else {
			_, err = s.db.ExecContext(ctx, q, args...)
		}
		return err
	}
	return exec("UPDATE supertag_meta SET root_mtime = ?", NowSecs())
}

// dbQuerier is satisfied by both *sql.DB and *sql.Tx, letting the read
// helpers in query.go run unmodified whether called from a plain lookup
// or from inside an in-flight mutation (where they must see writes the
// transaction has made but not yet committed).
type dbQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func argsOf(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
