package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Firebrandv3/game/internal/app"
	"github.com/Firebrandv3/game/internal/config"
	"github.com/Firebrandv3/game/internal/message"
	"github.com/Firebrandv3/game/internal/util"
)

func newClientCmd() *cobra.Command {
	var (
		server, transportName, datagram, signalURL, alias string
		insecure, interactive                             bool
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a game server and chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.Client.Server = server
			}
			if flags.Changed("transport") {
				cfg.Client.Transport = transportName
			}
			if flags.Changed("datagram") {
				cfg.Client.Datagram = datagram
			}
			if flags.Changed("signal") {
				cfg.Client.SignalURL = signalURL
			}
			if flags.Changed("alias") {
				cfg.Client.Alias = alias
			}
			if flags.Changed("insecure") {
				cfg.Client.Insecure = insecure
			}
			if interactive {
				runPrompts(&cfg.Client)
			}
			if err := prepare(cmd, config.RoleClient); err != nil {
				return err
			}
			return runClient(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Server address, or ws:// URL for websocket")
	cmd.Flags().StringVar(&transportName, "transport", "", "tcp, websocket or quic")
	cmd.Flags().StringVar(&datagram, "datagram", "", "none, udp or webrtc")
	cmd.Flags().StringVar(&signalURL, "signal", "", "Signaling URL for webrtc, e.g. ws://host:7778/signal")
	cmd.Flags().StringVar(&alias, "alias", "", "Player name")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Skip QUIC certificate verification")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Ask for connection settings")
	return cmd
}

func runClient(ctx context.Context) error {
	cl, err := app.Connect(ctx, cfg, app.Handlers{
		OnChat: func(c message.Chat) {
			if c.From == app.ServerName {
				pterm.Info.Println(c.Text)
				return
			}
			pterm.Println(pterm.Bold.Sprint(c.From) + ": " + c.Text)
		},
	})
	if err != nil {
		return err
	}
	defer cl.Close()

	startStats(ctx)
	util.LogInfo("Type to chat, /ping to measure latency, /quit to leave")

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-cl.Done():
			util.LogWarning("disconnected: %s", cl.Reason())
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := command(ctx, cl, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// command handles one input line and reports whether the client should exit.
func command(ctx context.Context, cl *app.Client, line string) bool {
	switch line {
	case "":
	case "/quit":
		return true
	case "/ping":
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rtt, err := cl.Ping(pctx)
		if err != nil {
			util.LogWarning("ping failed: %v", err)
			break
		}
		util.LogInfo("rtt %s", rtt.Round(time.Microsecond))
	default:
		if err := cl.Chat(line); err != nil {
			util.LogWarning("chat failed: %v", err)
		}
	}
	return false
}

// runPrompts asks for the client settings with the current values as defaults.
func runPrompts(c *config.ClientConfig) {
	c.Transport, _ = pterm.DefaultInteractiveSelect.
		WithOptions([]string{config.TransportTCP, config.TransportWebSocket, config.TransportQUIC}).
		WithDefaultOption(c.Transport).
		WithDefaultText("Stream transport").
		Show()
	pterm.Println()

	c.Server = ask(fmt.Sprintf("Server address (%s)", c.Server), c.Server)
	c.Alias = ask(fmt.Sprintf("Alias (%s)", c.Alias), c.Alias)

	c.Datagram, _ = pterm.DefaultInteractiveSelect.
		WithOptions([]string{config.DatagramNone, config.DatagramUDP, config.DatagramWebRTC}).
		WithDefaultOption(c.Datagram).
		WithDefaultText("Datagram channel").
		Show()
	pterm.Println()

	if c.Datagram == config.DatagramWebRTC && c.SignalURL == "" {
		c.SignalURL = ask("Signaling URL (e.g. ws://127.0.0.1:7778/signal)", "")
	}
}

// ask prompts for a value, keeping def when the answer is empty.
func ask(prompt, def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()

	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return def
}
