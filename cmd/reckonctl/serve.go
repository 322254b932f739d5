package main

import (
	"fmt"

	"github.com/danmuck/reckoning/internal/config"
	"github.com/danmuck/reckoning/internal/logging"
	"github.com/danmuck/reckoning/internal/realm"
	"github.com/danmuck/reckoning/internal/simulation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a realm server",
		Long: `Run a realm server until SIGINT or SIGTERM.

A default config is written to --config when the file does not exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, created, err := config.LoadOrWriteDefault(path)
			if err != nil {
				return err
			}
			logCfg, err := logging.RuntimeConfig(cfg.Logging.Level, cfg.Logging.File)
			if err != nil {
				return err
			}
			if err := logging.Apply(logCfg); err != nil {
				return err
			}
			if created {
				log.Info().Str("path", path).Msg("reckonctl.serve wrote default config")
			}
			return realm.NewService(realmConfig(cfg)).Run()
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "realm.toml", "Path to the realm TOML config")
	return cmd
}

func realmConfig(cfg config.Config) realm.Config {
	return realm.Config{
		RealmID:       cfg.Server.RealmID,
		ListenAddr:    cfg.Server.ListenAddr,
		WebSocketAddr: cfg.Server.WebSocketAddr,
		AdminAddr:     cfg.Server.AdminAddr,
		AdminToken:    cfg.Server.AdminToken,
		CORSOrigins:   cfg.Server.CORSOrigins,
		TickLength:    cfg.Simulation.TickLength,
		Session:       cfg.Session,
		Simulation: simulation.Config{
			SpawnHealth: cfg.Simulation.SpawnHealth,
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage realm config files",
	}

	var (
		out       string
		overwrite bool
	)
	defaultCmd := &cobra.Command{
		Use:   "default",
		Short: "Write the default realm config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), config.DefaultTemplate)
				return err
			}
			if err := config.WriteDefault(out, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	defaultCmd.Flags().StringVarP(&out, "out", "o", "realm.toml", "Destination path, or - for stdout")
	defaultCmd.Flags().BoolVar(&overwrite, "force", false, "Overwrite an existing file")

	cmd.AddCommand(defaultCmd)
	return cmd
}
