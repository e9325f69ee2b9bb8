package message

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Kind tags a game message.
type Kind string

const (
	KindConnect        Kind = "connect"
	KindWelcome        Kind = "welcome"
	KindChat           Kind = "chat"
	KindEntityUpdate   Kind = "entity_update"
	KindDatagramOpened Kind = "datagram_opened"
	KindPing           Kind = "ping"
	KindPong           Kind = "pong"
	KindDisconnect     Kind = "disconnect"
)

// ErrInvalidMessage is returned for messages whose body does not match Kind.
var ErrInvalidMessage = errors.New("invalid message")

// Connect is the first message a client sends.
type Connect struct {
	Alias   string `json:"alias"`
	Version string `json:"version"`
}

// Welcome answers Connect. DatagramAddr is the UDP address the server has
// bound for this session, empty when UDP is disabled.
type Welcome struct {
	Session      string `json:"session"`
	DatagramAddr string `json:"datagram_addr,omitempty"`
}

type Chat struct {
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EntityUpdate is sent unreliably; a lost update is superseded by the next.
type EntityUpdate struct {
	Entity uint64 `json:"entity"`
	Pos    Vec3   `json:"pos"`
}

// DatagramOpened tells the server which UDP address the client is bound to.
type DatagramOpened struct {
	Addr string `json:"addr"`
}

type Ping struct {
	Nonce uint64 `json:"nonce"`
}

type Pong struct {
	Nonce uint64 `json:"nonce"`
}

type Disconnect struct {
	Reason string `json:"reason,omitempty"`
}

// Message is the tagged union exchanged by the demo client and server.
// Exactly the field matching Kind is set.
type Message struct {
	Kind Kind `json:"kind"`

	Connect        *Connect        `json:"connect,omitempty"`
	Welcome        *Welcome        `json:"welcome,omitempty"`
	Chat           *Chat           `json:"chat,omitempty"`
	EntityUpdate   *EntityUpdate   `json:"entity_update,omitempty"`
	DatagramOpened *DatagramOpened `json:"datagram_opened,omitempty"`
	Ping           *Ping           `json:"ping,omitempty"`
	Pong           *Pong           `json:"pong,omitempty"`
	Disconnect     *Disconnect     `json:"disconnect,omitempty"`
}

func NewConnect(alias, version string) Message {
	return Message{Kind: KindConnect, Connect: &Connect{Alias: alias, Version: version}}
}

func NewWelcome(session, datagramAddr string) Message {
	return Message{Kind: KindWelcome, Welcome: &Welcome{Session: session, DatagramAddr: datagramAddr}}
}

func NewChat(from, text string) Message {
	return Message{Kind: KindChat, Chat: &Chat{From: from, Text: text}}
}

func NewEntityUpdate(entity uint64, pos Vec3) Message {
	return Message{Kind: KindEntityUpdate, EntityUpdate: &EntityUpdate{Entity: entity, Pos: pos}}
}

func NewDatagramOpened(addr string) Message {
	return Message{Kind: KindDatagramOpened, DatagramOpened: &DatagramOpened{Addr: addr}}
}

func NewPing(nonce uint64) Message {
	return Message{Kind: KindPing, Ping: &Ping{Nonce: nonce}}
}

func NewPong(nonce uint64) Message {
	return Message{Kind: KindPong, Pong: &Pong{Nonce: nonce}}
}

func NewDisconnect(reason string) Message {
	return Message{Kind: KindDisconnect, Disconnect: &Disconnect{Reason: reason}}
}

// Validate checks that exactly the body named by Kind is present.
func (m Message) Validate() error {
	bodies := map[Kind]bool{
		KindConnect:        m.Connect != nil,
		KindWelcome:        m.Welcome != nil,
		KindChat:           m.Chat != nil,
		KindEntityUpdate:   m.EntityUpdate != nil,
		KindDatagramOpened: m.DatagramOpened != nil,
		KindPing:           m.Ping != nil,
		KindPong:           m.Pong != nil,
		KindDisconnect:     m.Disconnect != nil,
	}

	present, ok := bodies[m.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	if !present {
		return fmt.Errorf("%w: %s without body", ErrInvalidMessage, m.Kind)
	}
	for k, set := range bodies {
		if set && k != m.Kind {
			return fmt.Errorf("%w: %s carries a %s body", ErrInvalidMessage, m.Kind, k)
		}
	}
	return nil
}

func (m Message) String() string {
	switch m.Kind {
	case KindChat:
		if m.Chat != nil {
			return fmt.Sprintf("chat{%s: %q}", m.Chat.From, m.Chat.Text)
		}
	case KindEntityUpdate:
		if m.EntityUpdate != nil {
			return fmt.Sprintf("entity_update{%d}", m.EntityUpdate.Entity)
		}
	}
	return string(m.Kind)
}

// GameCodec is the JSON codec for Message. Both directions validate.
type GameCodec struct{}

func (GameCodec) Marshal(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (GameCodec) Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
