package main

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStripMountpoint(t *testing.T) {
	Convey("Given a mountpoint", t, func() {
		mountpoint := "/home/alice/supertag/work"

		Convey("an absolute path under it strips to a relative tag path", func() {
			So(stripMountpoint(mountpoint+"/proj/file.txt", mountpoint), ShouldEqual, "proj/file.txt")
		})

		Convey("the mountpoint itself strips to the empty relative path", func() {
			So(stripMountpoint(mountpoint, mountpoint), ShouldEqual, "")
		})

		Convey("a bare relative tag path passes through with any leading slash trimmed", func() {
			So(stripMountpoint("proj/file.txt", mountpoint), ShouldEqual, "proj/file.txt")
			So(stripMountpoint("/proj/file.txt", mountpoint), ShouldEqual, "proj/file.txt")
		})

		Convey("a path outside the mountpoint entirely is treated as a bare relative path", func() {
			So(stripMountpoint("/other/place/file.txt", mountpoint), ShouldEqual, "other/place/file.txt")
		})
	})
}
