package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/reckoning/internal/client"
	"github.com/danmuck/reckoning/internal/config"
	"github.com/spf13/cobra"
)

func probeCmd() *cobra.Command {
	var (
		path    string
		addr    string
		wsURL   string
		moves   int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to a realm and exercise the protocol",
		Long: `Connect to a realm, move the entity through a few positions, and
measure one sync round trip.

Examples:
  reckonctl probe --addr 127.0.0.1:7400
  reckonctl probe --ws ws://127.0.0.1:7401/ws --moves 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := client.DefaultConfig()
			if strings.TrimSpace(path) != "" {
				fileCfg, err := config.Load(path)
				if err != nil {
					return err
				}
				cfg.Addr = fileCfg.Client.Addr
				cfg.MaxConnectAttempts = fileCfg.Client.MaxConnectAttempts
				cfg.Session = fileCfg.Session
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if strings.TrimSpace(wsURL) != "" {
				cfg.Addr = wsURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			_, err := client.Probe(ctx, cfg, moves, cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "Optional realm TOML config providing [client] and [session]")
	cmd.Flags().StringVarP(&addr, "addr", "a", client.DefaultConfig().Addr, "Realm host:port")
	cmd.Flags().StringVar(&wsURL, "ws", "", "Connect over WebSocket to this URL instead")
	cmd.Flags().IntVarP(&moves, "moves", "m", 3, "Number of positions to walk through")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall probe deadline")
	return cmd
}
