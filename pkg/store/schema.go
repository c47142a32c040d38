package store

import "database/sql"

// schemaV0 is migration 0, ported table-for-table from the original's
// `m0.rs`: the supertag_meta singleton, files, tags, file_tag,
// tag_groups, tag_group_tag, and pins.
var schemaV0 = []string{
	`CREATE TABLE IF NOT EXISTS supertag_meta (
		migration_version INTEGER NOT NULL DEFAULT 0,
		supertag_version TEXT NOT NULL,
		root_mtime FLOAT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY NOT NULL,
		device INTEGER NOT NULL,
		inode INTEGER NOT NULL,
		path TEXT NOT NULL UNIQUE,
		primary_tag TEXT NOT NULL,
		ts FLOAT NOT NULL,
		mtime FLOAT NOT NULL,
		alias_file TEXT,
		UNIQUE (device, inode)
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY NOT NULL,
		tag_name TEXT NOT NULL UNIQUE,
		ts FLOAT NOT NULL,
		mtime FLOAT NOT NULL,
		uid INTEGER NOT NULL,
		gid INTEGER NOT NULL,
		permissions INTEGER NOT NULL,
		num_files INTEGER NOT NULL DEFAULT 0,
		rm_time FLOAT
	)`,
	`CREATE TABLE IF NOT EXISTS file_tag (
		file_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		ts FLOAT NOT NULL,
		mtime FLOAT NOT NULL,
		uid INTEGER NOT NULL,
		gid INTEGER NOT NULL,
		permissions INTEGER NOT NULL,
		PRIMARY KEY (file_id, tag_id),
		FOREIGN KEY (file_id) REFERENCES files (id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags (id) ON DELETE CASCADE
	)`,
	// Pins represent a hierarchical tag path persisted so an otherwise
	// empty subpath still browses as a directory. Modeled as a flat
	// string of id tokens rather than a proper prefix tree because the
	// sqlite3 versions this must run against don't reliably support
	// FTS5 prefix search (same tradeoff the original made).
	`CREATE TABLE IF NOT EXISTS pins (tag_ids TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS tag_groups (
		id INTEGER PRIMARY KEY NOT NULL,
		name TEXT NOT NULL UNIQUE,
		ts FLOAT NOT NULL,
		mtime FLOAT NOT NULL,
		uid INTEGER NOT NULL,
		gid INTEGER NOT NULL,
		permissions INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tag_group_tag (
		tg_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		ts FLOAT NOT NULL,
		mtime FLOAT NOT NULL,
		uid INTEGER NOT NULL,
		gid INTEGER NOT NULL,
		permissions INTEGER NOT NULL,
		PRIMARY KEY (tg_id, tag_id),
		FOREIGN KEY (tg_id) REFERENCES tag_groups (id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags (id) ON DELETE CASCADE
	)`,
}

const supertagVersion = "0.1.0"

// runMigrations applies schemaV0 and seeds the meta row if this is a
// fresh store. Safe to call against an already-migrated database.
func runMigrations(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("PRAGMA foreign_keys=1"); err != nil {
		return err
	}

	for _, stmt := range schemaV0 {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM supertag_meta").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := tx.Exec(
			"INSERT INTO supertag_meta (migration_version, supertag_version, root_mtime) VALUES (0, ?, ?)",
			supertagVersion, NowSecs(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
