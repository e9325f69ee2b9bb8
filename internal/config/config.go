// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Firebrandv3/game/internal/conn"
	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// Role represents the chosen role (server or client).
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Stream transports a client may dial.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

// Datagram channels a client may open.
const (
	DatagramNone   = "none"
	DatagramUDP    = "udp"
	DatagramWebRTC = "webrtc"
)

// Config stores every parameter of one voxnet process. Flags override the
// values loaded from the YAML file.
type Config struct {
	Role          Role          `yaml:"role"`
	LogLevel      string        `yaml:"log_level"`
	StatsInterval time.Duration `yaml:"stats_interval"` // 0 disables the reporter

	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Conn   ConnConfig   `yaml:"conn"`
}

type ServerConfig struct {
	Listen     string   `yaml:"listen"`      // TCP address
	HTTP       string   `yaml:"http"`        // WebSocket and /signal endpoint, "" disables
	QUIC       string   `yaml:"quic"`        // UDP address for QUIC, "" disables
	UDPHost    string   `yaml:"udp_host"`    // host for per-session UDP sockets, "" disables
	ChatRate   float64  `yaml:"chat_rate"`   // chat messages per second per session
	ChatBurst  int      `yaml:"chat_burst"`  // chat burst per session
	ICEServers []string `yaml:"ice_servers"` // STUN servers for WebRTC datagram channels
}

type ClientConfig struct {
	Server     string   `yaml:"server"`    // host:port, or a ws:// URL for websocket
	Transport  string   `yaml:"transport"` // tcp, websocket or quic
	Datagram   string   `yaml:"datagram"`  // none, udp or webrtc
	SignalURL  string   `yaml:"signal_url"`
	Alias      string   `yaml:"alias"`
	Insecure   bool     `yaml:"insecure"` // skip QUIC certificate verification
	ICEServers []string `yaml:"ice_servers"`
}

// ConnConfig mirrors conn.Options.
type ConnConfig struct {
	DefaultLane      int           `yaml:"default_lane"`
	ChunkSize        int           `yaml:"chunk_size"`
	MaxMessageSize   uint64        `yaml:"max_message_size"`
	MaxInFlight      int           `yaml:"max_in_flight"`
	MaxInFlightBytes uint64        `yaml:"max_in_flight_bytes"`
	ReassemblyTTL    time.Duration `yaml:"reassembly_ttl"`
	DuplicateWindow  int           `yaml:"duplicate_window"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	opts := conn.DefaultOptions()
	return &Config{
		LogLevel:      "info",
		StatsInterval: util.DefaultReportInterval,
		Server: ServerConfig{
			Listen:     ":7777",
			HTTP:       ":7778",
			UDPHost:    "0.0.0.0",
			ChatRate:   5,
			ChatBurst:  10,
			ICEServers: transport.DefaultICEServers,
		},
		Client: ClientConfig{
			Server:     "127.0.0.1:7777",
			Transport:  TransportTCP,
			Datagram:   DatagramNone,
			Alias:      "player",
			ICEServers: transport.DefaultICEServers,
		},
		Conn: ConnConfig{
			DefaultLane:      opts.DefaultLane,
			ChunkSize:        opts.ChunkSize,
			MaxMessageSize:   opts.MaxMessageSize,
			MaxInFlight:      opts.MaxInFlight,
			MaxInFlightBytes: opts.MaxInFlightBytes,
			ReassemblyTTL:    opts.ReassemblyTTL,
			DuplicateWindow:  opts.DuplicateWindow,
		},
	}
}

// Load reads the configuration from the given YAML file path on top of the
// defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, errors.New("stats_interval must not be negative"))
	}

	switch c.Role {
	case RoleServer:
		errs = append(errs, c.Server.validate()...)
	case RoleClient:
		errs = append(errs, c.Client.validate()...)
	default:
		errs = append(errs, fmt.Errorf("invalid role %q: must be 'server' or 'client'", c.Role))
	}

	errs = append(errs, c.Conn.validate()...)
	return errors.Join(errs...)
}

func (s ServerConfig) validate() []error {
	var errs []error
	if err := checkAddr("server.listen", s.Listen); err != nil {
		errs = append(errs, err)
	}
	if s.HTTP != "" {
		if err := checkAddr("server.http", s.HTTP); err != nil {
			errs = append(errs, err)
		}
	}
	if s.QUIC != "" {
		if err := checkAddr("server.quic", s.QUIC); err != nil {
			errs = append(errs, err)
		}
	}
	if s.ChatRate <= 0 || s.ChatBurst < 1 {
		errs = append(errs, errors.New("server.chat_rate and server.chat_burst must be positive"))
	}
	return errs
}

func (c ClientConfig) validate() []error {
	var errs []error

	switch c.Transport {
	case TransportTCP, TransportQUIC:
		if err := checkAddr("client.server", c.Server); err != nil {
			errs = append(errs, err)
		}
	case TransportWebSocket:
		if !strings.HasPrefix(c.Server, "ws://") && !strings.HasPrefix(c.Server, "wss://") {
			errs = append(errs, fmt.Errorf("client.server must be a ws:// or wss:// URL for websocket, got %q", c.Server))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid client.transport %q", c.Transport))
	}

	switch c.Datagram {
	case DatagramNone, DatagramUDP:
	case DatagramWebRTC:
		if c.SignalURL == "" {
			errs = append(errs, errors.New("client.signal_url is required for webrtc datagrams"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid client.datagram %q", c.Datagram))
	}

	if strings.TrimSpace(c.Alias) == "" {
		errs = append(errs, errors.New("client.alias must not be empty"))
	}
	return errs
}

func (c ConnConfig) validate() []error {
	var errs []error
	if c.DefaultLane < 0 || c.DefaultLane >= conn.LaneCount {
		errs = append(errs, fmt.Errorf("conn.default_lane must be 0~%d", conn.LaneCount-1))
	}
	if c.ChunkSize < 0 || c.ChunkSize > 65000 {
		errs = append(errs, errors.New("conn.chunk_size must be 1~65000"))
	}
	if c.MaxInFlight < 0 || c.DuplicateWindow < 0 || c.ReassemblyTTL < 0 {
		errs = append(errs, errors.New("conn limits must not be negative"))
	}
	return errs
}

// ConnOptions converts the conn section into connection options.
func (c *Config) ConnOptions() []conn.Option {
	return []conn.Option{
		conn.WithOptions(conn.Options{
			ChunkSize:        c.Conn.ChunkSize,
			MaxMessageSize:   c.Conn.MaxMessageSize,
			MaxInFlight:      c.Conn.MaxInFlight,
			MaxInFlightBytes: c.Conn.MaxInFlightBytes,
			ReassemblyTTL:    c.Conn.ReassemblyTTL,
			DuplicateWindow:  c.Conn.DuplicateWindow,
		}),
		conn.WithDefaultLane(c.Conn.DefaultLane),
	}
}

func checkAddr(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, addr, err)
	}
	return nil
}
