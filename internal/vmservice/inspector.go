package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
)

// inspectorGroup is the object group name used for inspector references.
// The shim never holds object references across calls, so one group suffices.
const inspectorGroup = "flutterctl"

const inspectorSummaryTree = "ext.flutter.inspector.getRootWidgetSummaryTreeWithPreviews"

// RootWidgetTree fetches the widget inspector's summary tree and returns it
// as a flattened snapshot, root first.
func (c *Client) RootWidgetTree(ctx context.Context) ([]*WidgetNode, error) {
	raw, err := c.extension(ctx, inspectorSummaryTree, map[string]any{
		"groupName": inspectorGroup,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result *rawDiagnosticsNode `json:"result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding inspector response: %w", err)
	}
	if payload.Result == nil {
		return nil, ErrEmptyTree
	}
	return flatten(payload.Result), nil
}
