package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/flutterctl/flutterctl/internal/config"
	"github.com/flutterctl/flutterctl/internal/fancy"
	"github.com/flutterctl/flutterctl/internal/mcpserver"
)

var toolsCmd = &cli.Command{
	Name:  "tools",
	Usage: "Print the MCP tool catalog",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		SetupLogger("error", "text")

		srv, err := mcpserver.New(cmd.Root().Version, config.Default())
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to create MCP server: %w", err), 1)
		}

		tools, err := listTools(ctx, srv)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to list tools: %w", err), 1)
		}

		fmt.Println(renderToolTree(tools))
		return nil
	},
}

// listTools drives the server through in-memory transports, the same path a
// real MCP client takes.
func listTools(ctx context.Context, srv *mcpserver.Server) ([]*mcp.Tool, error) {
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverTransport)
	if err != nil {
		return nil, err
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "flutterctl-cli"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cs.Close()
		_ = ss.Wait()
	}()

	res, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func renderToolTree(tools []*mcp.Tool) string {
	t := fancy.Tree().Root(fancy.RootStyle.Render("flutter-control tools"))
	for _, tool := range tools {
		branch := tree.New().Root(fancy.ToolStyle.Render(tool.Name))
		branch.Child(fancy.InfoStyle.Render(fancy.TruncateString(firstLine(tool.Description), 96)))
		t.Child(branch)
	}
	return t.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
