package mcpserver

import (
	"context"
	"time"

	"github.com/flutterctl/flutterctl/internal/vmservice"
)

// VMClient is the surface of the VM service client the tool handlers use.
// *vmservice.Client satisfies it; tests substitute a fake.
type VMClient interface {
	RootWidgetTree(ctx context.Context) ([]*vmservice.WidgetNode, error)
	Tap(ctx context.Context, f vmservice.Finder) error
	EnterText(ctx context.Context, f vmservice.Finder, text string) error
	ScrollIntoView(ctx context.Context, f vmservice.Finder) error
	Scroll(ctx context.Context, f vmservice.Finder, dx, dy float64, duration time.Duration, frequency int) error
	ToggleDebugPaint(ctx context.Context, enable bool) error
	URI() string
	Close() error
}

// DialFunc opens a VM service connection. Injected so tests can avoid real
// WebSocket dials.
type DialFunc func(ctx context.Context, uri string) (VMClient, error)
