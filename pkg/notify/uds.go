package notify

import (
	"net"
	"os"

	"github.com/pkg/errors"
)

// Serve accepts connections on socketPath and streams each one's Note
// values as JSON lines until the connection breaks or l is closed. Removes
// any stale socket file left behind by a prior, uncleanly-exited mount.
func Serve(h *Hub, socketPath string) (net.Listener, error) {
	if _, err := os.Stat(socketPath); err == nil {
		log.WithField("path", socketPath).Warn("notifier socket exists, removing before bind")
		if err := os.Remove(socketPath); err != nil {
			return nil, errors.Wrap(err, "removing stale notifier socket")
		}
	}

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, errors.Wrap(err, "binding notifier socket")
	}

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				log.WithError(err).Debug("notifier listener stopped accepting")
				return
			}
			go serveConn(h, conn)
		}
	}()

	return l, nil
}

func serveConn(h *Hub, conn net.Conn) {
	defer conn.Close()
	notes, unregister := h.Register()
	defer unregister()

	for n := range notes {
		blob, err := Encode(n)
		if err != nil {
			log.WithError(err).Error("encoding note")
			continue
		}
		if _, err := conn.Write(blob); err != nil {
			log.WithError(err).Debug("peer write failed, dropping connection")
			return
		}
	}
}
