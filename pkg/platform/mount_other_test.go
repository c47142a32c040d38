//go:build !linux
// +build !linux

package platform

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseMountOutput(t *testing.T) {
	Convey("Given mount(8) output for two collections and one unrelated mount", t, func() {
		base := "/Users/alice/Library/Application Support/supertag/collections"
		output := "" +
			"/dev/disk1s1 on / (apfs, local, journaled)\n" +
			"supertag on " + base + "/work (fuse, nodev, nosuid, synchronous, mounted by alice)\n" +
			"supertag on " + base + "/personal (fuse, nodev, nosuid, synchronous, mounted by alice)\n" +
			"supertag on " + base + "/work/nested (fuse)\n"

		Convey("it maps only the directly-rooted collections", func() {
			out := parseMountOutput(base, output)
			So(out, ShouldHaveLength, 2)
			So(out["work"], ShouldEqual, base+"/work")
			So(out["personal"], ShouldEqual, base+"/personal")
		})
	})
}
