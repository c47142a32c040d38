package opcache

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/supertagfs/supertag/pkg/settings"
)

func newTestAlias(t *testing.T) *Alias {
	t.Helper()
	managed := filepath.Join(t.TempDir(), "managed")
	a, err := NewAlias("/col/tag/file.alias", 0o644, settings.UMask(0), 0, 0, managed)
	if err != nil {
		t.Fatalf("NewAlias: %v", err)
	}
	return a
}

func TestAliasWriteValidation(t *testing.T) {
	Convey("Given a freshly staged alias", t, func() {
		a := newTestAlias(t)

		Convey("writing the magic header byte-by-byte validates it", func() {
			err := a.Write(settings.AliasHeader, 0)
			So(err, ShouldBeNil)
			So(a.IsValid(), ShouldBeFalse) // header alone, no payload yet

			err = a.Write([]byte("payload"), len(settings.AliasHeader))
			So(err, ShouldBeNil)
			So(a.IsValid(), ShouldBeTrue)
		})

		Convey("a mismatched header is refused and stays refused", func() {
			err := a.Write([]byte("not-an-alias"), 0)
			So(err, ShouldEqual, os.ErrPermission)

			err = a.Write([]byte("more"), len("not-an-alias"))
			So(err, ShouldEqual, os.ErrPermission)
			So(a.IsValid(), ShouldBeFalse)
		})

		Convey("ResetWritten clears validation state so a re-write is checked from scratch", func() {
			So(a.Write(settings.AliasHeader, 0), ShouldBeNil)
			So(a.Write([]byte("payload"), len(settings.AliasHeader)), ShouldBeNil)
			So(a.IsValid(), ShouldBeTrue)

			a.ResetWritten()
			So(a.IsValid(), ShouldBeFalse)

			Convey("and a subsequent write is validated against the header again", func() {
				err := a.Write([]byte("garbage"), 0)
				So(err, ShouldEqual, os.ErrPermission)
				So(a.IsValid(), ShouldBeFalse)
			})
		})

		Convey("writes after Linked are refused outright", func() {
			a.Linked = true
			err := a.Write(settings.AliasHeader, 0)
			So(err, ShouldEqual, os.ErrPermission)
		})
	})
}

func TestHashedManagedPath(t *testing.T) {
	Convey("Given a managed root", t, func() {
		root := "/data/managed"

		Convey("two calls never collide", func() {
			a := HashedManagedPath(root)
			b := HashedManagedPath(root)
			So(a, ShouldNotEqual, b)
			So(filepath.Dir(a), ShouldEqual, root)
		})
	})
}
