package controls

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/interfaces"
)

const stationPrefix = "cst-"

// Commander issues charging commands against the provider
type Commander interface {
	SetCurrent(ctx context.Context, stationID string, amps float64) error
	Charging(ctx context.Context, stationID string, start bool, userID string) error
}

// Dispatcher reacts to unconfirmed writes on the station control points. A
// write to current, chargingStart or chargingStop is translated into the
// matching provider command; only after the provider accepts it is the
// store value confirmed.
type Dispatcher struct {
	commands Commander
	store    interfaces.NodeStore
	logger   arbor.ILogger
}

// NewDispatcher creates a control dispatcher
func NewDispatcher(commands Commander, store interfaces.NodeStore, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		commands: commands,
		store:    store,
		logger:   logger,
	}
}

// Start subscribes the dispatcher to value-written events
func (d *Dispatcher) Start(events interfaces.EventService) error {
	return events.Subscribe(interfaces.EventValueWritten, d.handle)
}

func (d *Dispatcher) handle(ctx context.Context, event interfaces.Event) error {
	path, _ := event.Payload["path"].(string)
	value := event.Payload["value"]
	if path == "" {
		return nil
	}

	segments := strings.Split(path, ".")
	control := segments[len(segments)-1]
	switch control {
	case "current", "chargingStart", "chargingStop":
	default:
		return nil
	}

	station := stationSegment(segments)
	if station == "" {
		d.logger.Warn().Str("path", path).Msg("Control write without station segment")
		return nil
	}

	d.logger.Info().Str("path", path).Str("station", station).Msg("Dispatching control write")

	switch control {
	case "current":
		amps, ok := toFloat(value)
		if !ok {
			d.logger.Warn().Str("path", path).Msg("Current control write is not numeric")
			return nil
		}
		if err := d.commands.SetCurrent(ctx, station, amps); err != nil {
			d.logger.Warn().Err(err).Str("station", station).Msg("Setting current was not accepted")
			return nil
		}
	case "chargingStart":
		if err := d.commands.Charging(ctx, station, true, d.chargingUserID(ctx, segments)); err != nil {
			d.logger.Warn().Err(err).Str("station", station).Msg("Start charging was not accepted")
			return nil
		}
	case "chargingStop":
		if err := d.commands.Charging(ctx, station, false, d.chargingUserID(ctx, segments)); err != nil {
			d.logger.Warn().Err(err).Str("station", station).Msg("Stop charging was not accepted")
			return nil
		}
	}

	// The provider accepted the command; acknowledge the control value.
	if err := d.store.SetValue(ctx, path, value, true); err != nil {
		d.logger.Warn().Err(err).Str("path", path).Msg("Failed to confirm control value")
	}
	return nil
}

// chargingUserID reads the station's chargingUserId sibling, supplying the
// user context for charge commands. An unset value yields "".
func (d *Dispatcher) chargingUserID(ctx context.Context, segments []string) string {
	sibling := append(append([]string{}, segments[:len(segments)-1]...), "chargingUserId")
	value, err := d.store.GetValue(ctx, strings.Join(sibling, "."))
	if err != nil || value.Value == nil {
		return ""
	}
	userID, _ := value.Value.(string)
	return userID
}

// stationSegment finds the station id inside a control path
func stationSegment(segments []string) string {
	for _, segment := range segments {
		if strings.HasPrefix(segment, stationPrefix) {
			return segment
		}
	}
	return ""
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
