package main

import (
	"github.com/spf13/cobra"

	"github.com/Firebrandv3/game/internal/app"
	"github.com/Firebrandv3/game/internal/config"
	"github.com/Firebrandv3/game/internal/util"
)

func newServerCmd() *cobra.Command {
	var listen, httpAddr, quicAddr, udpHost string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Server.Listen = listen
			}
			if flags.Changed("http") {
				cfg.Server.HTTP = httpAddr
			}
			if flags.Changed("quic") {
				cfg.Server.QUIC = quicAddr
			}
			if flags.Changed("udp-host") {
				cfg.Server.UDPHost = udpHost
			}
			if err := prepare(cmd, config.RoleServer); err != nil {
				return err
			}

			ctx := cmd.Context()
			srv := app.NewServer(cfg)
			if err := srv.Listen(); err != nil {
				return err
			}
			startStats(ctx)
			util.LogSuccess("Server ready, press Ctrl+C to stop")

			if err := srv.Serve(ctx); err != nil {
				return err
			}
			util.LogInfo("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "TCP listen address")
	cmd.Flags().StringVar(&httpAddr, "http", "", "WebSocket and signaling address, empty disables")
	cmd.Flags().StringVar(&quicAddr, "quic", "", "QUIC listen address, empty disables")
	cmd.Flags().StringVar(&udpHost, "udp-host", "", "Host for per-session UDP sockets, empty disables")
	return cmd
}
