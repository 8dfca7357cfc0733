package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/spabas/libreo-bridge/internal/interfaces"
)

// NodeRecord is the persisted form of one hierarchical store node. Values
// are kept as raw JSON so that string, numeric, boolean and null values all
// round-trip without type registration.
type NodeRecord struct {
	Path      string `badgerhold:"key"`
	Meta      interfaces.NodeMeta
	Value     []byte
	HasValue  bool
	Confirmed bool
	UpdatedAt time.Time
}

// NodeStorage implements the NodeStore interface on BadgerDB
type NodeStorage struct {
	db     *BadgerDB
	events interfaces.EventService
	logger arbor.ILogger
}

// NewNodeStorage creates a new NodeStorage instance
func NewNodeStorage(db *BadgerDB, events interfaces.EventService, logger arbor.ILogger) interfaces.NodeStore {
	return &NodeStorage{
		db:     db,
		events: events,
		logger: logger,
	}
}

// EnsureNode creates the node if absent. An existing node's metadata is
// never overwritten.
func (s *NodeStorage) EnsureNode(ctx context.Context, nodePath string, meta interfaces.NodeMeta) error {
	nodePath = normalizePath(nodePath)
	if nodePath == "" {
		return fmt.Errorf("node path cannot be empty")
	}

	var existing NodeRecord
	err := s.db.Store().Get(nodePath, &existing)
	if err == nil {
		return nil
	}
	if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to check node %s: %w", nodePath, err)
	}

	record := NodeRecord{
		Path:      nodePath,
		Meta:      meta,
		UpdatedAt: time.Now(),
	}
	if err := s.db.Store().Insert(nodePath, &record); err != nil {
		// A concurrent EnsureNode may have won the race; that is still success
		if err == badgerhold.ErrKeyExists {
			return nil
		}
		return fmt.Errorf("failed to create node %s: %w", nodePath, err)
	}

	return nil
}

// SetValue writes a value to an existing state node. Unconfirmed writes to
// writable nodes are published as value-written events for the dispatcher.
func (s *NodeStorage) SetValue(ctx context.Context, nodePath string, value interface{}, confirmed bool) error {
	nodePath = normalizePath(nodePath)

	var record NodeRecord
	err := s.db.Store().Get(nodePath, &record)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrNodeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get node %s: %w", nodePath, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", nodePath, err)
	}

	record.Value = data
	record.HasValue = true
	record.Confirmed = confirmed
	record.UpdatedAt = time.Now()

	if err := s.db.Store().Update(nodePath, &record); err != nil {
		return fmt.Errorf("failed to update node %s: %w", nodePath, err)
	}

	if !confirmed && record.Meta.Writable && s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{
			Type:      interfaces.EventValueWritten,
			Timestamp: time.Now(),
			Payload: map[string]interface{}{
				"path":  nodePath,
				"value": value,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Str("path", nodePath).Msg("Failed to publish value-written event")
		}
	}

	return nil
}

// GetValue returns the stored value of a node
func (s *NodeStorage) GetValue(ctx context.Context, nodePath string) (*interfaces.NodeValue, error) {
	nodePath = normalizePath(nodePath)

	var record NodeRecord
	err := s.db.Store().Get(nodePath, &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node %s: %w", nodePath, err)
	}

	return record.nodeValue(), nil
}

// HasNode reports whether a node exists
func (s *NodeStorage) HasNode(ctx context.Context, nodePath string) (bool, error) {
	nodePath = normalizePath(nodePath)

	var record NodeRecord
	err := s.db.Store().Get(nodePath, &record)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check node %s: %w", nodePath, err)
	}
	return true, nil
}

// ListValues returns path->value for all state nodes matching the pattern.
// Patterns use glob syntax on the dotted path; a "*" crosses segment
// boundaries, so "org.cst-1.currentSessionState.*" covers the whole subtree.
func (s *NodeStorage) ListValues(ctx context.Context, pattern string) (map[string]*interfaces.NodeValue, error) {
	var records []NodeRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	result := make(map[string]*interfaces.NodeValue)
	for _, record := range records {
		if record.Meta.Kind != interfaces.NodeKindState {
			continue
		}
		matched, err := path.Match(pattern, record.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if matched {
			result[record.Path] = record.nodeValue()
		}
	}

	return result, nil
}

// Close is a no-op; the shared BadgerDB connection is closed by the app
func (s *NodeStorage) Close() error {
	return nil
}

func (r *NodeRecord) nodeValue() *interfaces.NodeValue {
	nv := &interfaces.NodeValue{Confirmed: r.Confirmed}
	if r.HasValue {
		// Unmarshal into interface{}; "null" yields nil which models a
		// cleared value
		var v interface{}
		if err := json.Unmarshal(r.Value, &v); err == nil {
			nv.Value = v
		}
	}
	return nv
}

func normalizePath(nodePath string) string {
	return strings.Trim(strings.TrimSpace(nodePath), ".")
}
