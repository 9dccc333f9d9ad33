package domain

// Node is one element of a rendered component tree.
// Host elements carry Type and Props; text leaves carry only Text.
type Node struct {
	Type     string                 `json:"type,omitempty"`
	Props    map[string]interface{} `json:"props,omitempty"`
	Children []*Node                `json:"children,omitempty"`
	Text     string                 `json:"text,omitempty"`
}

// IsText reports whether the node is a text leaf
func (n *Node) IsText() bool {
	return n != nil && n.Type == ""
}

// Component is a live, renderable UI component produced by evaluating source.
// Implementations must be safe for concurrent Render calls.
type Component interface {
	// Render produces the element tree for the given props
	Render(props map[string]interface{}) (*Node, error)
}

// NodeType constants for nodes the engine itself produces
const (
	NodeTypeErrorStub = "ErrorStub"
	NodeTypeFragment  = "Fragment"
)
