package controls

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/services/events"
	badgerstorage "github.com/spabas/libreo-bridge/internal/storage/badger"
)

func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

type recordedCommand struct {
	kind    string
	station string
	amps    float64
	start   bool
	userID  string
}

// fakeCommander records commands and optionally rejects them
type fakeCommander struct {
	mu       sync.Mutex
	commands []recordedCommand
	fail     bool
}

func (f *fakeCommander) SetCurrent(ctx context.Context, stationID string, amps float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("rejected")
	}
	f.commands = append(f.commands, recordedCommand{kind: "current", station: stationID, amps: amps})
	return nil
}

func (f *fakeCommander) Charging(ctx context.Context, stationID string, start bool, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("rejected")
	}
	f.commands = append(f.commands, recordedCommand{kind: "charging", station: stationID, start: start, userID: userID})
	return nil
}

func (f *fakeCommander) recorded() []recordedCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCommand(nil), f.commands...)
}

func setup(t *testing.T) (interfaces.NodeStore, interfaces.EventService, *fakeCommander) {
	t.Helper()
	logger := createTestLogger()

	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eventService := events.NewService(logger)
	store := badgerstorage.NewNodeStorage(db, eventService, logger)

	commander := &fakeCommander{}
	dispatcher := NewDispatcher(commander, store, logger)
	require.NoError(t, dispatcher.Start(eventService))

	ctx := context.Background()
	require.NoError(t, store.EnsureNode(ctx, "myorg.cst-1", interfaces.NodeMeta{
		Kind: interfaces.NodeKindChannel, Name: "Garage",
	}))
	for _, node := range []struct {
		path, name, valueType, role string
	}{
		{"myorg.cst-1.current", "current in ampere", "number", "value"},
		{"myorg.cst-1.chargingStart", "charging start", "boolean", "button"},
		{"myorg.cst-1.chargingStop", "charging stop", "boolean", "button"},
		{"myorg.cst-1.chargingUserId", "charging user id", "string", "text"},
	} {
		require.NoError(t, store.EnsureNode(ctx, node.path, interfaces.NodeMeta{
			Kind:      interfaces.NodeKindState,
			Name:      node.name,
			ValueType: node.valueType,
			Role:      node.role,
			Readable:  true,
			Writable:  true,
		}))
	}

	return store, eventService, commander
}

func TestDispatcher_SetCurrent(t *testing.T) {
	store, _, commander := setup(t)
	ctx := context.Background()

	require.NoError(t, store.SetValue(ctx, "myorg.cst-1.current", 8.0, false))

	assert.Eventually(t, func() bool {
		return len(commander.recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	command := commander.recorded()[0]
	assert.Equal(t, "current", command.kind)
	assert.Equal(t, "cst-1", command.station)
	assert.Equal(t, 8.0, command.amps)

	// The accepted command confirms the control value.
	assert.Eventually(t, func() bool {
		value, err := store.GetValue(ctx, "myorg.cst-1.current")
		return err == nil && value.Confirmed && value.Value == 8.0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_ChargingStartReadsUserContext(t *testing.T) {
	store, _, commander := setup(t)
	ctx := context.Background()

	require.NoError(t, store.SetValue(ctx, "myorg.cst-1.chargingUserId", "u-1", true))
	require.NoError(t, store.SetValue(ctx, "myorg.cst-1.chargingStart", true, false))

	assert.Eventually(t, func() bool {
		return len(commander.recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	command := commander.recorded()[0]
	assert.Equal(t, "charging", command.kind)
	assert.Equal(t, "cst-1", command.station)
	assert.True(t, command.start)
	assert.Equal(t, "u-1", command.userID)
}

func TestDispatcher_ChargingStopWithoutUser(t *testing.T) {
	store, _, commander := setup(t)
	ctx := context.Background()

	require.NoError(t, store.SetValue(ctx, "myorg.cst-1.chargingStop", true, false))

	assert.Eventually(t, func() bool {
		return len(commander.recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	command := commander.recorded()[0]
	assert.False(t, command.start)
	assert.Empty(t, command.userID)
}

func TestDispatcher_RejectedCommandLeavesValueUnconfirmed(t *testing.T) {
	store, _, commander := setup(t)
	commander.fail = true
	ctx := context.Background()

	require.NoError(t, store.SetValue(ctx, "myorg.cst-1.current", 10.0, false))

	// Give the handler time to run, then verify nothing was confirmed.
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, commander.recorded())

	value, err := store.GetValue(ctx, "myorg.cst-1.current")
	require.NoError(t, err)
	assert.False(t, value.Confirmed)
}

func TestDispatcher_IgnoresNonControlWrites(t *testing.T) {
	store, _, commander := setup(t)
	ctx := context.Background()

	require.NoError(t, store.SetValue(ctx, "myorg.cst-1.chargingUserId", "u-2", false))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, commander.recorded())
}
