package opcache

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestReaddirEntryLifecycle(t *testing.T) {
	Convey("Given a fresh Cache", t, func() {
		c := New()

		Convey("a path with no cached entry misses", func() {
			_, ok := c.CheckReaddirEntry("/work/proj")
			So(ok, ShouldBeFalse)
		})

		Convey("AddReaddirEntry then CheckReaddirEntry round-trips the entry", func() {
			entry := ReaddirEntry{Kind: EntryTag, Tag: "proj"}
			c.AddReaddirEntry("/work/proj", entry)

			got, ok := c.CheckReaddirEntry("/work/proj")
			So(ok, ShouldBeTrue)
			So(got.Kind, ShouldEqual, EntryTag)
			So(got.Tag, ShouldEqual, "proj")
		})

		Convey("ClearReaddirEntry removes a live entry and reports it was present", func() {
			c.AddReaddirEntry("/work/proj", ReaddirEntry{Kind: EntryTag})
			So(c.ClearReaddirEntry("/work/proj"), ShouldBeTrue)

			_, ok := c.CheckReaddirEntry("/work/proj")
			So(ok, ShouldBeFalse)
		})

		Convey("ClearReaddirEntry on an absent path reports false", func() {
			So(c.ClearReaddirEntry("/never/cached"), ShouldBeFalse)
		})
	})
}

func TestSymlinkCacheIsScopedPerRequestAndConsumedOnce(t *testing.T) {
	Convey("Given a fresh Cache and two concurrent requests resolving the same path", t, func() {
		c := New()
		path := "/work/⋂/report.pdf"

		c.AddSymlink(1, path, "file-for-request-1")
		c.AddSymlink(2, path, "file-for-request-2")

		Convey("each request consumes only its own cached resolution", func() {
			v1, ok := c.ConsumeSymlink(1, path)
			So(ok, ShouldBeTrue)
			So(v1, ShouldEqual, "file-for-request-1")

			v2, ok := c.ConsumeSymlink(2, path)
			So(ok, ShouldBeTrue)
			So(v2, ShouldEqual, "file-for-request-2")
		})

		Convey("consuming a request's entry clears it, so a second consume misses", func() {
			_, ok := c.ConsumeSymlink(1, path)
			So(ok, ShouldBeTrue)

			_, ok = c.ConsumeSymlink(1, path)
			So(ok, ShouldBeFalse)
		})

		Convey("an unrelated path under the same request ID misses", func() {
			_, ok := c.ConsumeSymlink(1, "/work/⋂/other.pdf")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRenameDeleteGraceWindow(t *testing.T) {
	Convey("Given a path just renamed to its delete marker", t, func() {
		c := New()
		path := "/work/proj/report.pdf"
		c.AddRenameDelete(path)

		Convey("RenameDeleteActive reports true without consuming it", func() {
			So(c.RenameDeleteActive(path), ShouldBeTrue)
			So(c.RenameDeleteActive(path), ShouldBeTrue)
		})

		Convey("ConsumeRenameDelete consumes it exactly once", func() {
			So(c.ConsumeRenameDelete(path), ShouldBeTrue)
			So(c.ConsumeRenameDelete(path), ShouldBeFalse)
			So(c.RenameDeleteActive(path), ShouldBeFalse)
		})
	})
}

func TestDenyDeletePIDHandlesNegativePIDs(t *testing.T) {
	Convey("Given a Cache with no deny-delete entries", t, func() {
		c := New()

		Convey("an untouched pid is allowed to delete", func() {
			So(c.CheckDenyDeletePID(4242), ShouldBeFalse)
		})

		Convey("touching the canary as a pid denies further deletes from that exact pid", func() {
			c.AddDenyDeletePID(4242)
			So(c.CheckDenyDeletePID(4242), ShouldBeTrue)
			So(c.CheckDenyDeletePID(-4242), ShouldBeFalse)
		})

		Convey("a negative pid (thread-group id) is tracked independently of its positive form", func() {
			c.AddDenyDeletePID(-99)
			So(c.CheckDenyDeletePID(-99), ShouldBeTrue)
			So(c.CheckDenyDeletePID(99), ShouldBeFalse)
		})
	})
}

func TestTTLMapExpiry(t *testing.T) {
	Convey("Given a ttlMap entry with a very short TTL", t, func() {
		m := newTTLMap()
		m.set("k", "v", time.Millisecond)

		Convey("it is gone once the TTL elapses", func() {
			time.Sleep(5 * time.Millisecond)
			_, ok := m.get("k")
			So(ok, ShouldBeFalse)
		})
	})
}
