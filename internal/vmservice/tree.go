package vmservice

import (
	"fmt"
	"regexp"
	"strings"
)

// WidgetNode is one widget in the flattened inspector summary tree. IDs are
// assigned in depth-first walk order starting at 1 and are stable for the
// lifetime of one snapshot; they are how MCP callers address widgets.
type WidgetNode struct {
	ID          int
	Type        string
	Text        string
	Key         string
	Description string
	Properties  map[string]string // raw diagnostics properties, by name
	ParentID    int               // 0 when the node is the root
	ChildIDs    []int
	Interactive bool
	Local       bool // created by the application's own code, not the framework
}

// rawDiagnosticsNode mirrors the subset of the inspector's diagnostics JSON
// this package consumes.
type rawDiagnosticsNode struct {
	Description           string                `json:"description"`
	WidgetRuntimeType     string                `json:"widgetRuntimeType"`
	TextPreview           string                `json:"textPreview"`
	CreatedByLocalProject bool                  `json:"createdByLocalProject"`
	Properties            []rawProperty         `json:"properties"`
	Children              []*rawDiagnosticsNode `json:"children"`
}

type rawProperty struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Widget keys render inside the description, e.g. TextField-[<'email'>].
var keyPattern = regexp.MustCompile(`-\[<'([^']*)'>\]`)

// interactiveTypes lists widget runtime types a tap or text entry can
// plausibly land on. Anything ending in "Button" also counts.
var interactiveTypes = map[string]bool{
	"GestureDetector":    true,
	"InkWell":            true,
	"InkResponse":        true,
	"TextField":          true,
	"TextFormField":      true,
	"CupertinoTextField": true,
	"Checkbox":           true,
	"Switch":             true,
	"Radio":              true,
	"Slider":             true,
	"ListTile":           true,
	"Chip":               true,
	"DropdownMenuItem":   true,
	"PopupMenuItem":      true,
}

func isInteractive(widgetType string) bool {
	if interactiveTypes[widgetType] {
		return true
	}
	return strings.HasSuffix(widgetType, "Button")
}

// widgetType derives the runtime type for a node. The summary tree carries it
// explicitly on newer framework versions; older ones only put it at the front
// of the description.
func widgetType(raw *rawDiagnosticsNode) string {
	if raw.WidgetRuntimeType != "" {
		return raw.WidgetRuntimeType
	}
	desc := raw.Description
	if i := strings.Index(desc, "-["); i >= 0 {
		desc = desc[:i]
	}
	if i := strings.IndexByte(desc, '('); i >= 0 {
		desc = desc[:i]
	}
	return strings.TrimSpace(desc)
}

// flatten walks the diagnostics tree depth-first, assigning ids and linking
// parents to children. The result is ordered so that nodes[0] is the root.
func flatten(root *rawDiagnosticsNode) []*WidgetNode {
	var nodes []*WidgetNode
	var walk func(raw *rawDiagnosticsNode, parentID int) int
	walk = func(raw *rawDiagnosticsNode, parentID int) int {
		t := widgetType(raw)
		node := &WidgetNode{
			ID:          len(nodes) + 1,
			Type:        t,
			Text:        raw.TextPreview,
			Description: raw.Description,
			ParentID:    parentID,
			Interactive: isInteractive(t),
			Local:       raw.CreatedByLocalProject,
		}
		if m := keyPattern.FindStringSubmatch(raw.Description); m != nil {
			node.Key = m[1]
		}
		if len(raw.Properties) > 0 {
			node.Properties = make(map[string]string, len(raw.Properties))
			for _, p := range raw.Properties {
				if p.Name != "" {
					node.Properties[p.Name] = p.Description
				}
			}
		}
		nodes = append(nodes, node)
		id := node.ID
		for _, child := range raw.Children {
			node.ChildIDs = append(node.ChildIDs, walk(child, id))
		}
		return id
	}
	walk(root, 0)
	return nodes
}

// NodeByID finds a node in a flattened snapshot. Returns nil when absent.
func NodeByID(nodes []*WidgetNode, id int) *WidgetNode {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// SearchField selects which widget attribute Find matches against.
type SearchField string

const (
	SearchKey  SearchField = "key"
	SearchText SearchField = "text"
	SearchType SearchField = "type"
	SearchAll  SearchField = "all"
)

// ValidSearchField reports whether s names a supported search field.
func ValidSearchField(s string) bool {
	switch SearchField(s) {
	case SearchKey, SearchText, SearchType, SearchAll:
		return true
	}
	return false
}

// Find returns the nodes whose selected field contains value,
// case-insensitively. An empty value matches every node.
func Find(nodes []*WidgetNode, by SearchField, value string) []*WidgetNode {
	value = strings.ToLower(value)
	var matches []*WidgetNode
	for _, n := range nodes {
		key := strings.ToLower(n.Key)
		text := strings.ToLower(n.Text)
		typ := strings.ToLower(n.Type)
		var hit bool
		switch by {
		case SearchKey:
			hit = n.Key != "" && strings.Contains(key, value)
		case SearchText:
			hit = n.Text != "" && strings.Contains(text, value)
		case SearchType:
			hit = strings.Contains(typ, value)
		case SearchAll:
			hit = (n.Key != "" && strings.Contains(key, value)) ||
				(n.Text != "" && strings.Contains(text, value)) ||
				strings.Contains(typ, value)
		}
		if hit {
			matches = append(matches, n)
		}
	}
	return matches
}

// RenderTree prints a snapshot as an indented outline for an LLM to read.
// Output longer than maxBytes is truncated.
func RenderTree(nodes []*WidgetNode, maxBytes int) string {
	var b strings.Builder
	b.WriteString("Flutter App UI Structure:\n\n")

	depths := make(map[int]int, len(nodes))
	for _, n := range nodes {
		if n.ParentID != 0 {
			depths[n.ID] = depths[n.ParentID] + 1
		}
	}
	for _, n := range nodes {
		b.WriteString(strings.Repeat("  ", depths[n.ID]))
		fmt.Fprintf(&b, "id=%d type=%s", n.ID, n.Type)
		if n.Text != "" {
			fmt.Fprintf(&b, " text=%q", n.Text)
		}
		if n.Key != "" {
			fmt.Fprintf(&b, " key=%q", n.Key)
		}
		if n.Interactive {
			b.WriteString(" clickable")
		}
		b.WriteByte('\n')
	}

	out := b.String()
	if maxBytes > 0 && len(out) > maxBytes {
		out = out[:maxBytes]
	}
	return out
}
