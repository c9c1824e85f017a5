package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const driverExtension = "ext.flutter.driver"

// defaultDriverTimeout bounds how long the driver extension waits for a
// finder to locate its widget before reporting failure. Kept short so a
// missing widget comes back as a driver error instead of a call timeout.
const defaultDriverTimeout = 5 * time.Second

// Finder is a serialized Flutter driver finder, sent as part of the driver
// command parameters.
type Finder map[string]any

// ByValueKey finds a widget by its string ValueKey.
func ByValueKey(key string) Finder {
	return Finder{
		"finderType":     "ByValueKey",
		"keyValueString": key,
		"keyValueType":   "String",
	}
}

// ByText finds a widget containing the given text.
func ByText(text string) Finder {
	return Finder{"finderType": "ByText", "text": text}
}

// ByType finds a widget by its runtime type name.
func ByType(widgetType string) Finder {
	return Finder{"finderType": "ByType", "type": widgetType}
}

// Finder returns the most specific driver finder for a node: key, then text,
// then runtime type.
func (n *WidgetNode) Finder() Finder {
	switch {
	case n.Key != "":
		return ByValueKey(n.Key)
	case n.Text != "":
		return ByText(n.Text)
	default:
		return ByType(n.Type)
	}
}

type driverResult struct {
	IsError  bool            `json:"isError"`
	Response json.RawMessage `json:"response"`
}

// driverCommand executes one Flutter driver command. Driver parameter values
// are strings on the wire, including numbers and durations.
func (c *Client) driverCommand(ctx context.Context, command string, finder Finder, extra map[string]any) error {
	params := map[string]any{
		"command": command,
		"timeout": strconv.FormatInt(defaultDriverTimeout.Milliseconds(), 10),
	}
	for k, v := range finder {
		params[k] = v
	}
	for k, v := range extra {
		params[k] = v
	}

	raw, err := c.extension(ctx, driverExtension, params)
	if err != nil {
		return err
	}
	var res driverResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decoding driver response: %w", err)
	}
	if res.IsError {
		return fmt.Errorf("%w: %s: %s", ErrDriverFailure, command, res.Response)
	}
	return nil
}

// Tap taps the widget located by the finder.
func (c *Client) Tap(ctx context.Context, f Finder) error {
	return c.driverCommand(ctx, "tap", f, nil)
}

// EnterText taps the widget to focus it, then types text into the focused
// field. The driver's enter_text command always targets the focused widget.
func (c *Client) EnterText(ctx context.Context, f Finder, text string) error {
	if err := c.Tap(ctx, f); err != nil {
		return err
	}
	return c.driverCommand(ctx, "enter_text", nil, map[string]any{"text": text})
}

// ScrollIntoView scrolls the located widget until it is visible.
func (c *Client) ScrollIntoView(ctx context.Context, f Finder) error {
	return c.driverCommand(ctx, "scrollIntoView", f, map[string]any{"alignment": "0.0"})
}

// Scroll performs a scroll gesture on the located widget. dx and dy are the
// gesture offsets in logical pixels; negative dy moves content downward in
// reading order.
func (c *Client) Scroll(ctx context.Context, f Finder, dx, dy float64, duration time.Duration, frequency int) error {
	return c.driverCommand(ctx, "scroll", f, map[string]any{
		"dx":        strconv.FormatFloat(dx, 'f', 1, 64),
		"dy":        strconv.FormatFloat(dy, 'f', 1, 64),
		"duration":  strconv.FormatInt(duration.Microseconds(), 10),
		"frequency": strconv.Itoa(frequency),
	})
}
