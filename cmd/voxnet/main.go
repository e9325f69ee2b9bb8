// Voxnet CLI entry point.
//
// Runs the demo game server or an interactive chat client on top of the
// message connection layer. Settings come from an optional YAML file and are
// overridden by flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Firebrandv3/game/internal/config"
	"github.com/Firebrandv3/game/internal/util"
)

var version = "dev"

var (
	cfgFile   string
	logLevel  string
	debugMode bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "voxnet",
	Short:         "Voxel game networking demo: server and chat client",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if debugMode {
			cfg.LogLevel = "debug"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Duration("stats", 0, "Traffic report interval, 0 keeps the configured value")

	rootCmd.AddCommand(newServerCmd(), newClientCmd())
}

// prepare validates the final configuration and applies the ambient settings.
func prepare(cmd *cobra.Command, role config.Role) error {
	cfg.Role = role
	if d, _ := cmd.Flags().GetDuration("stats"); d > 0 {
		cfg.StatsInterval = d
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := util.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	pterm.Info.Println(fmt.Sprintf("Voxnet v%s (%s)", version, role))
	pterm.Println()
	return nil
}

func startStats(ctx context.Context) {
	if cfg.StatsInterval > 0 {
		util.StartStatsReporter(ctx, cfg.StatsInterval)
	}
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
