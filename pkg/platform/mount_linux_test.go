package platform

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseMountinfo(t *testing.T) {
	Convey("Given mountinfo lines for two collections and one unrelated mount", t, func() {
		base := "/home/alice/.local/share/supertag/collections"
		lines := strings.Join([]string{
			"36 35 0:32 / " + base + "/work rw,nosuid,nodev - fuse.supertag supertag rw",
			"37 35 0:33 / " + base + "/personal rw,nosuid,nodev - fuse.supertag supertag rw",
			"38 35 0:34 / " + base + "/work/nested rw - fuse.supertag supertag rw",
			"39 35 0:35 / /boot rw - ext4 /dev/sda1 rw",
			"bogus line too short",
		}, "\n")

		Convey("it maps only the directly-rooted collections", func() {
			out, err := parseMountinfo(base, strings.NewReader(lines))
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 2)
			So(out["work"], ShouldEqual, base+"/work")
			So(out["personal"], ShouldEqual, base+"/personal")
		})
	})
}
