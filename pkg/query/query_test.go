package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, settings.DefaultSymbols()), s
}

func TestEngineReadDirAndResolve(t *testing.T) {
	Convey("Given a collection with two tags intersecting on one file", t, func() {
		e, s := newTestEngine(t)
		ctx := context.Background()
		sym := settings.DefaultSymbols()

		mustAddFile := func(device, inode uint64, path, primaryTag string, tags []string) {
			err := s.Mutate(ctx, func(tx *sql.Tx) error {
				_, err := s.AddFile(ctx, tx, device, inode, path, primaryTag, tags, 1000, 1000, 0o777, 0o666, store.NowSecs(), nil)
				return err
			})
			So(err, ShouldBeNil)
		}

		mustAddFile(1, 100, "/real/report.pdf", "report.pdf", []string{"proj", "urgent"})
		mustAddFile(1, 101, "/real/notes.txt", "notes.txt", []string{"proj"})

		Convey("ReadDirRoot lists every top-level tag", func() {
			entries, err := e.ReadDirRoot(ctx)
			So(err, ShouldBeNil)
			So(names(entries), ShouldContain, "proj")
			So(names(entries), ShouldContain, "urgent")
		})

		Convey("ReadDirFileDir at a single tag lists every file tagged with it", func() {
			tags := tagtype.PathToTags(sym, "proj/"+sym.FileDirStr)
			entries, err := e.ReadDirFileDir(ctx, tags)
			So(err, ShouldBeNil)
			So(names(entries), ShouldContain, "report.pdf")
			So(names(entries), ShouldContain, "notes.txt")
		})

		Convey("ReadDirFileDir at an intersection of two tags lists only the shared file", func() {
			tags := tagtype.PathToTags(sym, "proj/urgent/"+sym.FileDirStr)
			entries, err := e.ReadDirFileDir(ctx, tags)
			So(err, ShouldBeNil)
			So(names(entries), ShouldResemble, []string{"report.pdf"})
		})

		Convey("ReadDirFileDir under a negated tag excludes files carrying it", func() {
			tags := tagtype.PathToTags(sym, "proj/-urgent/"+sym.FileDirStr)
			entries, err := e.ReadDirFileDir(ctx, tags)
			So(err, ShouldBeNil)
			So(names(entries), ShouldResemble, []string{"notes.txt"})
		})

		Convey("the root filedir enumerates every tag, not the (empty) root intersection", func() {
			entries, err := e.ReadDirRootFileDir(ctx)
			So(err, ShouldBeNil)
			So(names(entries), ShouldContain, "proj")
			So(names(entries), ShouldContain, "urgent")
			So(len(entries), ShouldEqual, 2)
		})

		Convey("ReadDir dispatches a root filedir path the same way, rather than an empty intersection", func() {
			tags := tagtype.PathToTags(sym, sym.FileDirStr)
			entries, err := e.ReadDir(ctx, tags)
			So(err, ShouldBeNil)
			So(names(entries), ShouldContain, "proj")
			So(names(entries), ShouldContain, "urgent")
			So(len(entries), ShouldEqual, 2)
		})

		Convey("Resolve on a symlink path returns the tagged file", func() {
			tags := tagtype.PathToTags(sym, "proj/"+sym.FileDirStr+"/report.pdf")
			node, err := e.Resolve(ctx, tags)
			So(err, ShouldBeNil)
			So(node.Kind, ShouldEqual, KindSymlink)
			So(node.File.PrimaryTag, ShouldEqual, "report.pdf")
		})

		Convey("Resolve on a nonexistent symlink name reports not found", func() {
			tags := tagtype.PathToTags(sym, "proj/"+sym.FileDirStr+"/missing.txt")
			_, err := e.Resolve(ctx, tags)
			So(err, ShouldEqual, ErrNotFound)
		})
	})
}
