package transport

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/Firebrandv3/game/internal/util"
)

// DefaultICEServers are public STUN servers. No TURN: datagram channels are
// for direct connectivity only and fall back to the stream path otherwise.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// PeerOptions configures a PeerConnection.
type PeerOptions struct {
	ICEServers []string
	// Loopback gathers 127.0.0.1 host candidates. Only useful on a single
	// machine, mostly in tests.
	Loopback bool
}

// NewPeerConnection creates a PeerConnection using the given STUN servers.
func NewPeerConnection(opts PeerOptions) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: opts.ICEServers}}
	}

	if !opts.Loopback {
		return webrtc.NewPeerConnection(config)
	}

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	return api.NewPeerConnection(config)
}

// CreateDatagramChannel creates a pre-negotiated DataChannel with datagram
// semantics: unordered and never retransmitted. Negotiated mode (ID 0) lets
// both sides create the channel without OnDataChannel.
func CreateDatagramChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	maxRetransmits := uint16(0)
	id := uint16(0)

	return pc.CreateDataChannel("datagram", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
		Negotiated:     &negotiated,
		ID:             &id,
	})
}

// Peer is one PeerConnection with its datagram channel. Signaling code drives
// the SDP/ICE methods; the data path is Channel.
type Peer struct {
	pc      *webrtc.PeerConnection
	channel *DataChannel

	openSignal chan struct{}

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewPeer creates a PeerConnection and its negotiated datagram channel.
func NewPeer(opts PeerOptions) (*Peer, error) {
	pc, err := NewPeerConnection(opts)
	if err != nil {
		return nil, err
	}

	dc, err := CreateDatagramChannel(pc)
	if err != nil {
		return nil, errors.Join(err, pc.Close())
	}

	p := &Peer{
		pc:         pc,
		channel:    NewDataChannel(dc),
		openSignal: make(chan struct{}),
		pcState:    webrtc.PeerConnectionStateNew,
	}
	p.channel.pc = pc

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(p.openSignal) })
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()

		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.channel.markClosed()
		}
	})

	return p, nil
}

// Ready is closed when the DataChannel opens.
func (p *Peer) Ready() <-chan struct{} { return p.openSignal }

// Channel returns the datagram transport. Closing it closes the Peer.
func (p *Peer) Channel() *DataChannel { return p.channel }

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error { return p.channel.Close() }

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback for gathered local candidates. A nil
// candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}
