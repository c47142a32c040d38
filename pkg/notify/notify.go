// Package notify is the pub/sub side channel a collection uses to tell
// desktop-integration listeners about events the filesystem can observe but
// can't act on itself: a drag-and-drop copy instead of a link, a symlink
// dropped straight on the root, a plain delete where a rename-to-delete was
// expected, a non-empty tag someone tried to turn into a tag group.
// Delivery is best-effort and JSON-lines over a Unix domain socket, grounded
// on original_source/src/common/notify/{mod,uds}.rs.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/supertagfs/supertag/pkg/utils"
)

var log = utils.GetLogger("notify")

// Kind is the closed set of events a Notifier can emit.
type Kind string

const (
	KindBadCopy       Kind = "bad_copy"
	KindDraggedToRoot Kind = "dragged_to_root"
	KindUnlink        Kind = "unlink"
	KindTagToTagGroup Kind = "tag_to_tg"
)

// Note is one wire message, JSON-encoded as a single line.
type Note struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// Notifier is what the mutation and FS callback layers depend on — they
// never talk to a socket directly.
type Notifier interface {
	BadCopy() error
	DraggedToRoot() error
	Unlink(path string) error
	TagToTagGroup(tag string) error
}

// peer is one connected listener's outbound queue.
type peer struct {
	ch     chan Note
	bucket *ratelimit.Bucket
}

// Hub is the concrete, in-process Notifier: it fans Note values out to
// every currently-registered peer channel, coalescing bursts per peer with
// a token bucket so a flurry of unlinks doesn't flood a slow listener.
type Hub struct {
	mu    sync.Mutex
	peers []*peer
}

// NewHub returns an unbound Hub; callers wire peers in via Register (Serve,
// in uds.go, does this per accepted connection).
func NewHub() *Hub {
	return &Hub{}
}

// Register adds a new peer with its own 500ms-refill, burst-of-1 token
// bucket and returns the channel Note values for it arrive on. Call
// Unregister when the peer's connection closes.
func (h *Hub) Register() (<-chan Note, func()) {
	p := &peer{
		ch:     make(chan Note, 10000),
		bucket: ratelimit.NewBucket(500*time.Millisecond, 1),
	}
	h.mu.Lock()
	h.peers = append(h.peers, p)
	h.mu.Unlock()

	unregister := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, cur := range h.peers {
			if cur == p {
				h.peers = append(h.peers[:i], h.peers[i+1:]...)
				close(p.ch)
				return
			}
		}
	}
	return p.ch, unregister
}

func (h *Hub) broadcast(n Note) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var live []*peer
	for _, p := range h.peers {
		if p.bucket.TakeAvailable(1) == 0 {
			log.WithField("kind", n.Kind).Debug("rate limit dropped a burst duplicate for a peer")
			live = append(live, p)
			continue
		}
		select {
		case p.ch <- n:
			live = append(live, p)
		default:
			log.WithField("kind", n.Kind).Warn("peer queue full, dropping peer")
		}
	}
	h.peers = live
	return nil
}

func (h *Hub) BadCopy() error           { return h.broadcast(Note{Kind: KindBadCopy}) }
func (h *Hub) DraggedToRoot() error     { return h.broadcast(Note{Kind: KindDraggedToRoot}) }
func (h *Hub) Unlink(path string) error { return h.broadcast(Note{Kind: KindUnlink, Path: path}) }
func (h *Hub) TagToTagGroup(t string) error {
	return h.broadcast(Note{Kind: KindTagToTagGroup, Tag: t})
}

// Encode renders n as a single JSON line, newline included.
func Encode(n Note) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
