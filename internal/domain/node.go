package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeType enumerates the vertex labels stored in the graph.
type NodeType string

const (
	NodeTypeUser        NodeType = "User"
	NodeTypeAccount     NodeType = "Account"
	NodeTypeTransaction NodeType = "Transaction"
	NodeTypeCategory    NodeType = "Category"
	NodeTypeBudget      NodeType = "Budget"
	NodeTypeGoal        NodeType = "Goal"
	NodeTypeMerchant    NodeType = "Merchant"
	NodeTypeLocation    NodeType = "Location"
	NodeTypeTag         NodeType = "Tag"
)

// NodeTypes lists every supported node type in a stable order.
var NodeTypes = []NodeType{
	NodeTypeUser,
	NodeTypeAccount,
	NodeTypeTransaction,
	NodeTypeCategory,
	NodeTypeBudget,
	NodeTypeGoal,
	NodeTypeMerchant,
	NodeTypeLocation,
	NodeTypeTag,
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseNodeType converts a label into a NodeType.
func ParseNodeType(label string) (NodeType, error) {
	t := NodeType(label)
	if !t.Valid() {
		return "", NewValidationError("type", "unknown node type %q", label)
	}
	return t, nil
}

// Reserved property keys that callers cannot overwrite through property merges.
const (
	PropID        = "id"
	PropType      = "type"
	PropCreatedAt = "createdAt"
	PropUpdatedAt = "updatedAt"
)

// NodeRef identifies a node without holding the node itself.
type NodeRef struct {
	ID   string
	Type NodeType
}

func (r NodeRef) String() string {
	return fmt.Sprintf("%s(%s)", r.Type, r.ID)
}

// Node is a typed vertex. ID, Type and CreatedAt never change after creation.
type Node struct {
	ID         string
	Type       NodeType
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewNode creates a node with a generated identifier.
func NewNode(t NodeType, props map[string]any) (*Node, error) {
	return NewNodeWithID(uuid.NewString(), t, props, time.Now())
}

// NewNodeWithID creates a node for an externally owned identifier, such as an upstream entity id.
func NewNodeWithID(id string, t NodeType, props map[string]any, at time.Time) (*Node, error) {
	if id == "" {
		return nil, NewValidationError("id", "node id is required")
	}
	if !t.Valid() {
		return nil, NewValidationError("type", "unknown node type %q", t)
	}
	at = at.UTC()
	n := &Node{
		ID:         id,
		Type:       t,
		Properties: make(map[string]any, len(props)),
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	for k, v := range props {
		if isReservedProperty(k) {
			continue
		}
		n.Properties[k] = v
	}
	return n, nil
}

// Ref returns the identifier reference for n.
func (n *Node) Ref() NodeRef {
	return NodeRef{ID: n.ID, Type: n.Type}
}

// UpdateProperties merges partial into the node's properties. Identity fields are ignored.
func (n *Node) UpdateProperties(partial map[string]any) {
	if n.Properties == nil {
		n.Properties = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		if isReservedProperty(k) {
			continue
		}
		n.Properties[k] = v
	}
	n.UpdatedAt = advance(n.UpdatedAt)
}

// CanConnectTo reports whether any relationship type permits an edge from n to a node of target type.
func (n *Node) CanConnectTo(target NodeType) bool {
	for _, rt := range RelationshipTypes {
		if rt.Allows(n.Type, target) {
			return true
		}
	}
	return false
}

// StringProperty returns the property as a string, or "" when absent.
func (n *Node) StringProperty(key string) string {
	if v, ok := n.Properties[key].(string); ok {
		return v
	}
	return ""
}

// FloatProperty returns numeric properties as float64.
func (n *Node) FloatProperty(key string) (float64, bool) {
	switch v := n.Properties[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func isReservedProperty(key string) bool {
	switch key {
	case PropID, PropType, PropCreatedAt, PropUpdatedAt:
		return true
	}
	return false
}

// advance returns the current time, nudged forward when the clock has not moved past prev.
func advance(prev time.Time) time.Time {
	next := time.Now().UTC()
	if !next.After(prev) {
		next = prev.Add(time.Nanosecond)
	}
	return next
}
