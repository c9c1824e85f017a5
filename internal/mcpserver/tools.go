package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flutterctl/flutterctl/internal/vmservice"
)

const notConnectedMsg = "Not connected to a Flutter app. Please connect first using connect_to_flutter_app."

type connectInput struct {
	VMServiceURI string `json:"vm_service_uri" jsonschema:"the WebSocket URI of the Flutter app's VM service (e.g. ws://127.0.0.1:50505/ws)"`
}

type emptyInput struct{}

type widgetInput struct {
	WidgetID string `json:"widget_id" jsonschema:"the unique ID of the widget, as reported by get_app_state or find_widgets"`
}

type enterTextInput struct {
	WidgetID string `json:"widget_id" jsonschema:"the unique ID of the widget to enter text into"`
	Text     string `json:"text" jsonschema:"the text to enter into the widget"`
}

type findWidgetsInput struct {
	SearchBy    string `json:"search_by,omitempty" jsonschema:"what to search by: key, text, type, or all (default all)"`
	SearchValue string `json:"search_value,omitempty" jsonschema:"the value to search for"`
}

type scrollNormalInput struct {
	WidgetID  string `json:"widget_id" jsonschema:"the unique ID of the widget to scroll"`
	Direction string `json:"direction,omitempty" jsonschema:"the scroll direction, either up or down (default down)"`
}

type scrollExtendedInput struct {
	WidgetID   string `json:"widget_id" jsonschema:"the unique ID of the widget to scroll"`
	Direction  string `json:"direction,omitempty" jsonschema:"the scroll direction, either up or down (default down)"`
	DX         int    `json:"dx,omitempty" jsonschema:"horizontal scroll amount (positive = right, negative = left)"`
	DY         *int   `json:"dy,omitempty" jsonschema:"vertical scroll amount (default 100)"`
	DurationMS int    `json:"duration_ms,omitempty" jsonschema:"duration of the scroll gesture in milliseconds (default 300)"`
}

type togglePaintInput struct {
	Enable *bool `json:"enable,omitempty" jsonschema:"true to enable debug paint, false to disable (default true)"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "connect_to_flutter_app",
		Description: "Connect to a running Flutter application by the WebSocket URI of its VM service.",
	}, s.handleConnect)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_app_state",
		Description: "Get the current state of the Flutter application (widget tree). Returns a detailed representation of the current UI elements in the app.",
	}, s.handleAppState)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "click_widget",
		Description: "Click on a widget in the Flutter app by its unique ID.",
	}, s.handleClick)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "enter_text",
		Description: "Enter text into a widget in the Flutter app by its unique ID.",
	}, s.handleEnterText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_widgets",
		Description: "Find widgets in the Flutter app by key, text, or type.",
	}, s.handleFindWidgets)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "scroll_widget_into_view",
		Description: "Scroll a widget into view in the Flutter app by its unique ID.",
	}, s.handleScrollIntoView)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "scroll_widget_normal",
		Description: "Scroll a widget up or down in the Flutter app using standard scrolling.",
	}, s.handleScrollNormal)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "scroll_widget",
		Description: "Scroll a widget with extended parameters: direction, horizontal and vertical deltas, and gesture duration.",
	}, s.handleScrollExtended)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "toggle_debug_paint_feature",
		Description: "Enable or disable the Flutter debug paint feature.",
	}, s.handleTogglePaint)
}

func (s *Server) handleConnect(ctx context.Context, _ *mcp.CallToolRequest, in connectInput) (*mcp.CallToolResult, any, error) {
	if in.VMServiceURI == "" {
		return errorResult("vm_service_uri is required"), nil, nil
	}
	// Any existing connection is dropped first, so a failed dial leaves the
	// server disconnected rather than silently serving the old app.
	s.closeClient()

	dctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout.Duration)
	defer cancel()

	client, err := s.dial(dctx, in.VMServiceURI)
	if err != nil {
		return errorResult("Error connecting to Flutter app: %v", err), nil, nil
	}
	s.setClient(client)
	s.log.Info("connected to Flutter app", "uri", in.VMServiceURI)
	return textResult("Successfully connected to Flutter app at %s", in.VMServiceURI), nil, nil
}

func (s *Server) handleAppState(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	nodes, err := client.RootWidgetTree(cctx)
	if err != nil {
		return errorResult("Error getting app state: %v", err), nil, nil
	}
	return textResult("%s", vmservice.RenderTree(nodes, s.cfg.MaxStateBytes)), nil, nil
}

func (s *Server) handleClick(ctx context.Context, _ *mcp.CallToolRequest, in widgetInput) (*mcp.CallToolResult, any, error) {
	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	node, failed := s.resolveWidget(cctx, client, in.WidgetID)
	if failed != nil {
		return failed, nil, nil
	}
	if err := client.Tap(cctx, node.Finder()); err != nil {
		if errors.Is(err, vmservice.ErrDriverFailure) {
			return textResult("Failed to click on %s. The widget might not be interactive.", describeWidget(node)), nil, nil
		}
		return errorResult("Error clicking widget: %v", err), nil, nil
	}
	return textResult("Successfully clicked on %s.", describeWidget(node)), nil, nil
}

func (s *Server) handleEnterText(ctx context.Context, _ *mcp.CallToolRequest, in enterTextInput) (*mcp.CallToolResult, any, error) {
	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	node, failed := s.resolveWidget(cctx, client, in.WidgetID)
	if failed != nil {
		return failed, nil, nil
	}
	if err := client.EnterText(cctx, node.Finder(), in.Text); err != nil {
		if errors.Is(err, vmservice.ErrDriverFailure) {
			return textResult("Failed to enter text into %s. The widget might not support text input.", describeWidget(node)), nil, nil
		}
		return errorResult("Error entering text into widget: %v", err), nil, nil
	}
	return textResult("Successfully entered text %q into %s.", in.Text, describeWidget(node)), nil, nil
}

func (s *Server) handleFindWidgets(ctx context.Context, _ *mcp.CallToolRequest, in findWidgetsInput) (*mcp.CallToolResult, any, error) {
	searchBy := in.SearchBy
	if searchBy == "" {
		searchBy = string(vmservice.SearchAll)
	}
	if !vmservice.ValidSearchField(searchBy) {
		return textResult("Invalid search_by %q. Use 'key', 'text', 'type', or 'all'.", searchBy), nil, nil
	}

	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	nodes, err := client.RootWidgetTree(cctx)
	if err != nil {
		return errorResult("Error finding widgets: %v", err), nil, nil
	}

	matches := vmservice.Find(nodes, vmservice.SearchField(searchBy), in.SearchValue)
	if len(matches) == 0 {
		return textResult("No widgets found matching %q in %s.", in.SearchValue, searchBy), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d widgets matching %q in %s:\n\n", len(matches), in.SearchValue, searchBy)
	for i, n := range matches {
		fmt.Fprintf(&b, "%d. Type: %s\n", i+1, n.Type)
		fmt.Fprintf(&b, "   ID: %d\n", n.ID)
		fmt.Fprintf(&b, "   Parent ID: %s\n", formatParentID(n.ParentID))
		fmt.Fprintf(&b, "   Children IDs: %s\n", formatChildIDs(n.ChildIDs))
		fmt.Fprintf(&b, "   Properties: %s\n", formatProperties(n.Properties))
		if n.Key != "" {
			fmt.Fprintf(&b, "   Key: %s\n", n.Key)
		}
		if n.Text != "" {
			fmt.Fprintf(&b, "   Text: %s\n", n.Text)
		}
		fmt.Fprintf(&b, "   Interactive: %s\n\n", yesNo(n.Interactive))
	}
	return textResult("%s", b.String()), nil, nil
}

func (s *Server) handleScrollIntoView(ctx context.Context, _ *mcp.CallToolRequest, in widgetInput) (*mcp.CallToolResult, any, error) {
	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	node, failed := s.resolveWidget(cctx, client, in.WidgetID)
	if failed != nil {
		return failed, nil, nil
	}
	if err := client.ScrollIntoView(cctx, node.Finder()); err != nil {
		if errors.Is(err, vmservice.ErrDriverFailure) {
			return textResult("Failed to scroll %s into view. The widget might not be scrollable.", describeWidget(node)), nil, nil
		}
		return errorResult("Error scrolling widget into view: %v", err), nil, nil
	}
	return textResult("Successfully scrolled %s into view.", describeWidget(node)), nil, nil
}

// Standard scrolling uses a fixed 300px gesture over 300ms at 60Hz.
const (
	normalScrollDelta    = 300.0
	normalScrollDuration = 300 * time.Millisecond
	scrollFrequency      = 60
)

func (s *Server) handleScrollNormal(ctx context.Context, _ *mcp.CallToolRequest, in scrollNormalInput) (*mcp.CallToolResult, any, error) {
	direction, failed := normalizeDirection(in.Direction)
	if failed != nil {
		return failed, nil, nil
	}
	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	node, resolveFailed := s.resolveWidget(cctx, client, in.WidgetID)
	if resolveFailed != nil {
		return resolveFailed, nil, nil
	}

	// Scrolling "down" moves content up, which is a negative gesture offset.
	dy := normalScrollDelta
	if direction == "down" {
		dy = -normalScrollDelta
	}
	if err := client.Scroll(cctx, node.Finder(), 0, dy, normalScrollDuration, scrollFrequency); err != nil {
		if errors.Is(err, vmservice.ErrDriverFailure) {
			return textResult("Failed to scroll %s %s. The widget might not be scrollable.", describeWidget(node), direction), nil, nil
		}
		return errorResult("Error scrolling widget: %v", err), nil, nil
	}
	return textResult("Successfully scrolled %s %s.", describeWidget(node), direction), nil, nil
}

func (s *Server) handleScrollExtended(ctx context.Context, _ *mcp.CallToolRequest, in scrollExtendedInput) (*mcp.CallToolResult, any, error) {
	direction, failed := normalizeDirection(in.Direction)
	if failed != nil {
		return failed, nil, nil
	}
	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	node, resolveFailed := s.resolveWidget(cctx, client, in.WidgetID)
	if resolveFailed != nil {
		return resolveFailed, nil, nil
	}

	dy := 100.0
	if in.DY != nil {
		dy = float64(*in.DY)
	}
	// The direction wins over the sign of dy.
	if direction == "down" {
		dy = -math.Abs(dy)
	} else {
		dy = math.Abs(dy)
	}
	durationMS := in.DurationMS
	if durationMS <= 0 {
		durationMS = 300
	}

	err := client.Scroll(cctx, node.Finder(), float64(in.DX), dy,
		time.Duration(durationMS)*time.Millisecond, scrollFrequency)
	if err != nil {
		if errors.Is(err, vmservice.ErrDriverFailure) {
			return textResult("Failed to perform extended scroll %s on %s. The widget might not be scrollable.", direction, describeWidget(node)), nil, nil
		}
		return errorResult("Error scrolling widget with extended parameters: %v", err), nil, nil
	}
	return textResult("Successfully performed extended scroll %s on %s.", direction, describeWidget(node)), nil, nil
}

func (s *Server) handleTogglePaint(ctx context.Context, _ *mcp.CallToolRequest, in togglePaintInput) (*mcp.CallToolResult, any, error) {
	client, ok := s.current()
	if !ok {
		return textResult(notConnectedMsg), nil, nil
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	enable := true
	if in.Enable != nil {
		enable = *in.Enable
	}
	if err := client.ToggleDebugPaint(cctx, enable); err != nil {
		return errorResult("Error toggling debug paint: %v", err), nil, nil
	}
	status := "enabled"
	if !enable {
		status = "disabled"
	}
	return textResult("Debug paint feature has been %s.", status), nil, nil
}

// resolveWidget parses the widget id and locates it in a fresh snapshot of
// the widget tree. On failure the second return value is the result to send
// back to the caller.
func (s *Server) resolveWidget(ctx context.Context, client VMClient, widgetID string) (*vmservice.WidgetNode, *mcp.CallToolResult) {
	id, err := strconv.Atoi(widgetID)
	if err != nil {
		return nil, textResult("Invalid widget ID format: %q. ID should be an integer.", widgetID)
	}
	nodes, err := client.RootWidgetTree(ctx)
	if err != nil {
		return nil, errorResult("Error reading widget tree: %v", err)
	}
	node := vmservice.NodeByID(nodes, id)
	if node == nil {
		return nil, textResult("Widget with ID %q not found. Use get_app_state to see available widgets.", widgetID)
	}
	return node, nil
}

func normalizeDirection(direction string) (string, *mcp.CallToolResult) {
	if direction == "" {
		return "down", nil
	}
	if direction != "up" && direction != "down" {
		return "", textResult("Invalid direction. Use 'up' or 'down'.")
	}
	return direction, nil
}

func describeWidget(n *vmservice.WidgetNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s widget", n.Type)
	if n.Text != "" {
		fmt.Fprintf(&b, " with text %q", n.Text)
	}
	if n.Key != "" {
		fmt.Fprintf(&b, " with key %q", n.Key)
	}
	return b.String()
}

func formatParentID(id int) string {
	if id == 0 {
		return "None"
	}
	return strconv.Itoa(id)
}

func formatProperties(props map[string]string) string {
	if len(props) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, props[name])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatChildIDs(ids []int) string {
	if len(ids) == 0 {
		return "None"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
