package notify

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClientAgainstUnreachableSocket(t *testing.T) {
	Convey("Given a Client pointed at a socket nothing is listening on", t, func() {
		c := NewClient(filepath.Join(t.TempDir(), "notify.sock"))

		Convey("every send no-ops instead of erroring", func() {
			So(c.BadCopy(), ShouldBeNil)
			So(c.DraggedToRoot(), ShouldBeNil)
			So(c.Unlink("/col/tag/file"), ShouldBeNil)
			So(c.TagToTagGroup("tag"), ShouldBeNil)
		})
	})
}

func TestClientAgainstLiveListener(t *testing.T) {
	Convey("Given a live unix listener standing in for a mounted collection", t, func() {
		sock := filepath.Join(t.TempDir(), "notify.sock")
		ln, err := net.Listen("unix", sock)
		So(err, ShouldBeNil)
		defer ln.Close()

		received := make(chan []byte, 1)
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 4096)
			n, _ := conn.Read(buf)
			received <- buf[:n]
		}()

		c := NewClient(sock)

		Convey("Unlink reaches the listener as an encoded Note", func() {
			So(c.Unlink("/col/tag/file"), ShouldBeNil)

			select {
			case blob := <-received:
				want, err := Encode(Note{Kind: KindUnlink, Path: "/col/tag/file"})
				So(err, ShouldBeNil)
				So(blob, ShouldResemble, want)
			case <-time.After(2 * time.Second):
				t.Fatal("listener never received a notification")
			}
		})
	})
}
