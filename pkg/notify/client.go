package notify

import (
	"net"
	"time"
)

// Client is the CLI side of the notifier socket: it lets a command that
// mutates the database directly (ln, mv, rm, rmdir) still raise the same
// notifications a FUSE-driven mutation would, by dialing the running
// mount's socket instead of broadcasting through an in-process Hub.
// Grounded on original_source/src/common/notify/uds.rs's client half.
type Client struct {
	socketPath string
}

// NewClient returns a Client targeting socketPath; dialing is deferred to
// each send, so a CLI command still works against an unmounted collection
// (every send just silently no-ops).
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) send(n Note) error {
	conn, err := net.DialTimeout("unix", c.socketPath, 200*time.Millisecond)
	if err != nil {
		return nil
	}
	defer conn.Close()
	blob, err := Encode(n)
	if err != nil {
		return err
	}
	_, err = conn.Write(blob)
	return err
}

func (c *Client) BadCopy() error           { return c.send(Note{Kind: KindBadCopy}) }
func (c *Client) DraggedToRoot() error     { return c.send(Note{Kind: KindDraggedToRoot}) }
func (c *Client) Unlink(path string) error { return c.send(Note{Kind: KindUnlink, Path: path}) }
func (c *Client) TagToTagGroup(tag string) error {
	return c.send(Note{Kind: KindTagToTagGroup, Tag: tag})
}
