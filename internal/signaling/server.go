package signaling

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// DefaultTimeout bounds one signaling exchange on the answering side.
const DefaultTimeout = 20 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler answers signaling requests. Authorize runs before the upgrade and
// rejects the request with 401 when it returns an error. OnPeer receives
// every peer whose datagram channel opened.
type Handler struct {
	Peer      transport.PeerOptions
	Timeout   time.Duration
	Authorize func(r *http.Request) error
	OnPeer    func(r *http.Request, peer *transport.Peer)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Authorize != nil {
		if err := h.Authorize(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	peer, err := Answer(ctx, conn, h.Peer)
	if err != nil {
		util.LogWarning("signaling from %s failed: %v", r.RemoteAddr, err)
		return
	}

	if h.OnPeer == nil {
		peer.Close()
		return
	}
	h.OnPeer(r, peer)
}
