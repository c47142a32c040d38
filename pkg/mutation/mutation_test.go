package mutation

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSource(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return p
}

func mutate(t *testing.T, s *store.Store, fn func(tx *sql.Tx) error) error {
	t.Helper()
	return s.Mutate(context.Background(), fn)
}

func TestLn(t *testing.T) {
	Convey("Given an empty collection and a real source file", t, func() {
		s := newTestStore(t)
		sym := settings.DefaultSymbols()
		ctx := context.Background()
		src := newTestSource(t, "report.pdf")

		Convey("Ln under a tag path links it and it shows up tagged", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				_, err := Ln(ctx, s, tx, sym, "", src, "proj", "report.pdf", 1000, 1000, settings.UMask(0), nil, nil)
				return err
			})
			So(err, ShouldBeNil)

			files, err := s.FilesTaggedWith(ctx, []tagtype.TagType{tagtype.Regular{Tag: "proj"}})
			So(err, ShouldBeNil)
			So(len(files), ShouldEqual, 1)
			So(files[0].PrimaryTag, ShouldEqual, "report.pdf")
		})

		Convey("Ln under an intersection of two tags links under both", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				_, err := Ln(ctx, s, tx, sym, "", src, "proj/urgent", "report.pdf", 1000, 1000, settings.UMask(0), nil, nil)
				return err
			})
			So(err, ShouldBeNil)

			files, err := s.FilesTaggedWith(ctx, []tagtype.TagType{tagtype.Regular{Tag: "proj"}, tagtype.Regular{Tag: "urgent"}})
			So(err, ShouldBeNil)
			So(len(files), ShouldEqual, 1)
		})

		Convey("Ln with an empty destination is rejected as dragged-to-root", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				_, err := Ln(ctx, s, tx, sym, "", src, "", "report.pdf", 1000, 1000, settings.UMask(0), nil, nil)
				return err
			})
			So(err, ShouldEqual, ErrInvalidPath)
		})

		Convey("Ln from inside the collection's own mountpoint is rejected as recursive", func() {
			mountRoot := filepath.Dir(src)
			err := mutate(t, s, func(tx *sql.Tx) error {
				_, err := Ln(ctx, s, tx, sym, mountRoot, src, "proj", "report.pdf", 1000, 1000, settings.UMask(0), nil, nil)
				return err
			})
			So(err, ShouldEqual, ErrRecursiveLink)
		})
	})
}

func TestRm(t *testing.T) {
	Convey("Given a file linked under a tag", t, func() {
		s := newTestStore(t)
		sym := settings.DefaultSymbols()
		ctx := context.Background()
		src := newTestSource(t, "report.pdf")

		err := mutate(t, s, func(tx *sql.Tx) error {
			_, err := Ln(ctx, s, tx, sym, "", src, "proj", "report.pdf", 1000, 1000, settings.UMask(0), nil, nil)
			return err
		})
		So(err, ShouldBeNil)

		Convey("Rm on its symlink path removes it from that tag", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				_, err := Rm(ctx, s, tx, sym, "proj/"+sym.FileDirStr+"/report.pdf")
				return err
			})
			So(err, ShouldBeNil)

			files, err := s.FilesTaggedWith(ctx, []tagtype.TagType{tagtype.Regular{Tag: "proj"}})
			So(err, ShouldBeNil)
			So(len(files), ShouldEqual, 0)
		})

		Convey("Rm on a bare tagdir path is rejected as an invalid path", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				_, err := Rm(ctx, s, tx, sym, "proj")
				return err
			})
			So(err, ShouldEqual, ErrInvalidPath)
		})
	})
}

func TestMkdirAndRmdir(t *testing.T) {
	Convey("Given an empty collection", t, func() {
		s := newTestStore(t)
		sym := settings.DefaultSymbols()
		ctx := context.Background()

		Convey("Mkdir on a top-level name creates a tag", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				return Mkdir(ctx, s, tx, sym, "proj", 1000, 1000, 0o755)
			})
			So(err, ShouldBeNil)

			exists, err := s.TagExists(ctx, "proj")
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)

			Convey("Rmdir on that same top-level name removes the tag outright", func() {
				err := mutate(t, s, func(tx *sql.Tx) error {
					return Rmdir(ctx, s, tx, sym, "proj")
				})
				So(err, ShouldBeNil)

				exists, err := s.TagExists(ctx, "proj")
				So(err, ShouldBeNil)
				So(exists, ShouldBeFalse)
			})
		})

		Convey("Mkdir under an existing tag pins an always-present empty subdirectory", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				return Mkdir(ctx, s, tx, sym, "proj", 1000, 1000, 0o755)
			})
			So(err, ShouldBeNil)

			err = mutate(t, s, func(tx *sql.Tx) error {
				return Mkdir(ctx, s, tx, sym, "proj/urgent", 1000, 1000, 0o755)
			})
			So(err, ShouldBeNil)

			pinned, err := s.PinnedSubdirs(ctx, []tagtype.TagType{tagtype.Regular{Tag: "proj"}})
			So(err, ShouldBeNil)
			So(len(pinned), ShouldBeGreaterThan, 0)
		})
	})
}

func TestMoveOrMerge(t *testing.T) {
	Convey("Given two tags, one of them with a tagged file", t, func() {
		s := newTestStore(t)
		sym := settings.DefaultSymbols()
		ctx := context.Background()
		src := newTestSource(t, "report.pdf")

		err := mutate(t, s, func(tx *sql.Tx) error {
			_, err := Ln(ctx, s, tx, sym, "", src, "proj", "report.pdf", 1000, 1000, settings.UMask(0), nil, nil)
			return err
		})
		So(err, ShouldBeNil)

		Convey("renaming a tag to a name that doesn't exist yet is a plain rename", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				return MoveOrMerge(ctx, s, tx, sym, "proj", "project", 1000, 1000, settings.UMask(0), nil)
			})
			So(err, ShouldBeNil)

			exists, err := s.TagExists(ctx, "proj")
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)

			exists, err = s.TagExists(ctx, "project")
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)

			files, err := s.FilesTaggedWith(ctx, []tagtype.TagType{tagtype.Regular{Tag: "project"}})
			So(err, ShouldBeNil)
			So(len(files), ShouldEqual, 1)
		})

		Convey("renaming a tag onto an existing tag merges their files", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				return Mkdir(ctx, s, tx, sym, "archive", 1000, 1000, 0o755)
			})
			So(err, ShouldBeNil)

			err = mutate(t, s, func(tx *sql.Tx) error {
				return MoveOrMerge(ctx, s, tx, sym, "proj", "archive", 1000, 1000, settings.UMask(0), nil)
			})
			So(err, ShouldBeNil)

			files, err := s.FilesTaggedWith(ctx, []tagtype.TagType{tagtype.Regular{Tag: "archive"}})
			So(err, ShouldBeNil)
			So(len(files), ShouldEqual, 1)
		})

		Convey("renaming the file's own symlink renames the link, not the tag", func() {
			err := mutate(t, s, func(tx *sql.Tx) error {
				return MoveOrMerge(ctx, s, tx, sym, "proj/"+sym.FileDirStr+"/report.pdf", "proj/"+sym.FileDirStr+"/final.pdf", 1000, 1000, settings.UMask(0), nil)
			})
			So(err, ShouldBeNil)

			files, err := s.FilesTaggedWith(ctx, []tagtype.TagType{tagtype.Regular{Tag: "proj"}})
			So(err, ShouldBeNil)
			So(len(files), ShouldEqual, 1)
			So(files[0].PrimaryTag, ShouldEqual, "final.pdf")
		})
	})
}
