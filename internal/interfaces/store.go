package interfaces

import (
	"context"
	"errors"
)

// ErrNodeNotFound is returned when a node path does not exist in the store
var ErrNodeNotFound = errors.New("node not found")

// NodeKind distinguishes structural channels from value-bearing states
type NodeKind string

const (
	NodeKindChannel NodeKind = "channel"
	NodeKindState   NodeKind = "state"
)

// NodeMeta describes a node's static metadata. EnsureNode never overwrites
// the metadata of an existing node.
type NodeMeta struct {
	Kind      NodeKind `json:"kind"`
	Name      string   `json:"name"`
	ValueType string   `json:"value_type,omitempty"` // "string", "number", "boolean"
	Role      string   `json:"role,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Readable  bool     `json:"readable"`
	Writable  bool     `json:"writable"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Step      *float64 `json:"step,omitempty"`
}

// NodeValue is a stored value together with its acknowledgement flag.
// Confirmed=false marks a user-originated write that has not yet been
// accepted by the provider.
type NodeValue struct {
	Value     interface{}
	Confirmed bool
}

// NodeStore is the hierarchical persisted store the mirror writes into.
// Paths are dot-delimited (e.g. "myorg.cst-123.serialNumber").
type NodeStore interface {
	// EnsureNode creates the node if it is absent. Idempotent; existing
	// metadata is left untouched.
	EnsureNode(ctx context.Context, path string, meta NodeMeta) error

	// SetValue writes a value. Unconfirmed writes to writable nodes are
	// announced via the event service so the control dispatcher can react.
	SetValue(ctx context.Context, path string, value interface{}, confirmed bool) error

	// GetValue returns the stored value, or ErrNodeNotFound.
	GetValue(ctx context.Context, path string) (*NodeValue, error)

	// HasNode reports whether a node exists at the given path.
	HasNode(ctx context.Context, path string) (bool, error)

	// ListValues returns path->value for every state node whose path
	// matches the glob pattern.
	ListValues(ctx context.Context, pattern string) (map[string]*NodeValue, error)

	Close() error
}
