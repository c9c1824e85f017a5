package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/flutterctl/flutterctl/internal/config"
	"github.com/flutterctl/flutterctl/internal/mcpserver"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Run the MCP server on stdio",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to TOML configuration file",
			Aliases: []string{"c"},
		},
		&cli.StringFlag{
			Name:    "uri",
			Usage:   "VM service WebSocket URI to connect to at startup (e.g. ws://127.0.0.1:50505/ws)",
			Aliases: []string{"u"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (trace, debug, info, warn, error)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Write logs as JSON",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := config.Load(cmd.String("config"))
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to load config: %w", err), 1)
		}
		if uri := cmd.String("uri"); uri != "" {
			cfg.VMServiceURI = uri
		}
		if lvl := cmd.String("log-level"); lvl != "" {
			cfg.LogLevel = lvl
		}
		if cmd.Bool("json") {
			cfg.LogFormat = "json"
		}
		if err := cfg.Validate(); err != nil {
			return cli.Exit(fmt.Errorf("invalid configuration: %w", err), 1)
		}

		SetupLogger(cfg.LogLevel, cfg.LogFormat)

		srv, err := mcpserver.New(cmd.Root().Version, cfg)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to create MCP server: %w", err), 1)
		}
		return srv.Run(ctx)
	},
}
