// Package mcpserver assembles the MCP server that exposes a running Flutter
// application to an LLM client. Each tool is a pass-through: validate the
// arguments, perform one VM service operation, return the result as text.
// The only state is the current VM service connection, one per MCP session.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flutterctl/flutterctl/internal/config"
	"github.com/flutterctl/flutterctl/internal/vmservice"
)

const serverName = "flutter-control"

// Server wires the MCP tool registry to a single outbound VM service
// connection.
type Server struct {
	log  *slog.Logger
	cfg  *config.Config
	dial DialFunc
	mcp  *mcp.Server

	mu     sync.Mutex
	client VMClient
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithDialFunc replaces how VM service connections are opened.
func WithDialFunc(dial DialFunc) Option {
	return func(s *Server) {
		if dial != nil {
			s.dial = dial
		}
	}
}

func defaultDial(ctx context.Context, uri string) (VMClient, error) {
	return vmservice.Dial(ctx, uri)
}

// New builds the MCP server and registers the Flutter tools.
func New(version string, cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	s := &Server{
		log:  slog.Default().With("component", "mcpserver"),
		cfg:  cfg,
		dial: defaultDial,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, nil)
	s.registerTools()

	return s, nil
}

// Run serves MCP over stdio until ctx is canceled or the client disconnects.
// When the config names a VM service URI, the connection is opened eagerly;
// failure to connect is logged, not fatal, since the connect tool can be
// called later.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.VMServiceURI != "" {
		dctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout.Duration)
		client, err := s.dial(dctx, s.cfg.VMServiceURI)
		cancel()
		if err != nil {
			s.log.Warn("initial VM service connection failed", "uri", s.cfg.VMServiceURI, "error", err)
		} else {
			s.setClient(client)
			s.log.Info("connected to Flutter app", "uri", s.cfg.VMServiceURI)
		}
	}
	defer s.closeClient()

	s.log.Info("MCP server starting on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Connect attaches the server to an arbitrary transport. Used by tests and
// the tool-catalog command.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

func (s *Server) setClient(client VMClient) {
	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (s *Server) closeClient() {
	s.setClient(nil)
}

// current returns the active VM service client, if any.
func (s *Server) current() (VMClient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.client != nil
}

// callCtx bounds one VM service round trip.
func (s *Server) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CallTimeout.Duration)
}

// textResult wraps formatted text as a successful tool result.
func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

// errorResult wraps formatted text as a failed tool result.
func errorResult(format string, args ...any) *mcp.CallToolResult {
	res := textResult(format, args...)
	res.IsError = true
	return res
}
