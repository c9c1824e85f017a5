package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:    "flutterctl",
		Version: Version,
		Usage:   "MCP server for driving a running Flutter app through its VM service",
		Commands: []*cli.Command{
			serveCmd,
			toolsCmd,
			versionCmd,
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
