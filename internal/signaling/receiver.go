package signaling

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/Firebrandv3/game/internal/transport"
)

// receiver applies inbound signaling messages to the peer. Candidates that
// arrive before the remote description are held back until it is set.
type receiver struct {
	peer    *transport.Peer
	conn    *websocket.Conn
	sender  *sender
	pending []webrtc.ICECandidateInit
	hasSDP  bool
}

// watch runs until the WebSocket fails or is closed.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		switch msg.Type {
		case msgTypeOffer:
			if err := r.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
				return err
			}
			if err := r.sender.sendAnswer(); err != nil {
				return fmt.Errorf("failed to send answer: %w", err)
			}

		case msgTypeAnswer:
			if err := r.setRemote(webrtc.SDPTypeAnswer, msg.SDP); err != nil {
				return err
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if !r.hasSDP {
				r.pending = append(r.pending, init)
				continue
			}
			if err := r.peer.AddICECandidate(init); err != nil {
				return err
			}
		}
	}
}

func (r *receiver) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := r.peer.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("failed to set remote %s: %w", typ, err)
	}
	r.hasSDP = true

	for _, c := range r.pending {
		if err := r.peer.AddICECandidate(c); err != nil {
			return err
		}
	}
	r.pending = nil
	return nil
}
