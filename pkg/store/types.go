// Package store is the transactional relational store backing a Supertag
// collection: files, tags, tag groups, their associations, and pins.
// Concurrency is handled the same way the teacher's sqlite-backed stores do
// it: database/sql's pool is capped to a single open connection
// (db.SetMaxOpenConns(1) in Open), so every write serializes through one
// real SQLite connection rather than through any connection-affinity
// bookkeeping of our own. Every query, hand-built set-algebra and plain row
// lookup alike, goes through database/sql; Open also opens an xorm engine
// over the same file, but no query is issued through it.
package store

import "time"

// Tag is a named label; it manifests as a directory at the root (or,
// if it belongs to a TagGroup, nested under that group's directory).
type Tag struct {
	ID          int64
	Name        string
	Mtime       time.Time
	UID         uint32
	GID         uint32
	Permissions uint32
	NumFiles    int64
}

// TagGroup is a named set of tags; it manifests as a directory whose
// children are its member tags.
type TagGroup struct {
	ID          int64
	Name        string
	Mtime       time.Time
	UID         uint32
	GID         uint32
	Permissions uint32
	TagIDs      []int64
	NumFiles    int64
}

// TaggedFile is a File row joined with the tag association that produced
// it in a query result.
type TaggedFile struct {
	ID          int64
	Inode       uint64
	Device      uint64
	Path        string
	PrimaryTag  string
	Mtime       time.Time
	UID         uint32
	GID         uint32
	Permissions uint32
	AliasFile   *string
}

// TagOrTagGroup is the closed result type of a pinned-subdirectory or
// readdir-collapse lookup: exactly one of Tag or Group is set.
type TagOrTagGroup struct {
	Tag   *Tag
	Group *TagGroup
}

// Meta is the collection-wide singleton metadata row.
type Meta struct {
	MigrationVersion int
	SupertagVersion  string
	RootMtime        time.Time
}

// NowSecs returns the current time as a fractional Unix-epoch second
// count, the same representation the store persists timestamps in.
func NowSecs() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func floatToTime(v float64) time.Time {
	secs := int64(v)
	nsecs := int64((v - float64(secs)) * 1e9)
	return time.Unix(secs, nsecs).UTC()
}

func timeToFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
