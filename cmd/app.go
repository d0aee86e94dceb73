package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/hashmap-kz/pgreplmon/config"
	"github.com/hashmap-kz/pgreplmon/internal/logger"
	"github.com/hashmap-kz/pgreplmon/internal/version"
)

const defaultStatusAddr = "127.0.0.1:9188"

func App() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to config file",
		Aliases: []string{"c"},
		Sources: cli.EnvVars("PGREPLMON_CONFIG_PATH"),
	}

	app := &cli.Command{
		Name:    "pgreplmon",
		Usage:   "PostgreSQL primary/standby replication health monitor",
		Version: version.Version,
		Commands: []*cli.Command{
			// server mode
			{
				Name:  "daemon",
				Usage: "Collect periodically and serve /health, /ready, /live and /metrics",
				Flags: []cli.Flag{
					configFlag,
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(ctx, c, true)
					if err != nil {
						return err
					}
					return RunMonitorMode(ctx, cfg)
				},
			},

			// single collection
			{
				Name:  "probe",
				Usage: "Probe both servers once and print the JSON health report",
				Flags: []cli.Flag{
					configFlag,
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(ctx, c, false)
					if err != nil {
						return err
					}
					return RunProbeOnce(ctx, cfg, newProber(cfg), os.Stdout)
				},
			},

			// query a running daemon
			{
				Name:  "status",
				Usage: "Print the health of a running monitor",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "The address of pgreplmon running in a daemon mode",
						Value:   defaultStatusAddr,
						Sources: cli.EnvVars("PGREPLMON_ADDR"),
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Request timeout",
					},
				},
				Action: func(_ context.Context, c *cli.Command) error {
					return FetchStatus(os.Stdout, &StatusOpts{
						Addr:    c.String("addr"),
						Timeout: c.Duration("timeout"),
					})
				},
			},

			// Validate command
			{
				Name:  "validate",
				Usage: "Validate the config file without running the application",
				Flags: []cli.Flag{
					configFlag,
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(ctx, c, false)
					if err != nil {
						return err
					}
					fmt.Println(cfg.String())
					fmt.Println("Configuration is valid.")
					return nil
				},
			},
		},
	}

	return app
}

func loadConfig(ctx context.Context, c *cli.Command, print bool) (*config.Config, error) {
	configPath := c.String("config")

	// 1) if -c flag is set -> read config from file, then fill the gaps from env
	// 2) if $PGREPLMON_CONFIG_PATH is set -> same as above
	// 3) read config with go-envconfig otherwise
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}

	if print {
		// debug config (NOTE: sensitive fields are hidden)
		_, _ = fmt.Fprintf(os.Stderr, "STARTING WITH CONFIGURATION (%s):\n%s\n\n",
			filepath.ToSlash(configPath),
			cfg.String(),
		)
	}

	logger.Init(&logger.Opts{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	return cfg, nil
}
