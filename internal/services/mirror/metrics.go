package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/models"
)

// ApplyMetric mirrors one realtime station snapshot under
// {orgNodePath}.{stationId}.metrics. Optional fields are only written when
// the provider sent them; a terminal session status clears every value in
// the currentSessionState subtree while keeping its nodes.
func (s *Service) ApplyMetric(ctx context.Context, orgNodePath string, metric models.Metric) error {
	if metric.ChargingStationID == "" {
		return fmt.Errorf("metric without station id")
	}

	base := orgNodePath + "." + metric.ChargingStationID + ".metrics"
	if err := s.store.EnsureNode(ctx, base, interfaces.NodeMeta{
		Kind: interfaces.NodeKindChannel,
		Name: "metrics",
	}); err != nil {
		return fmt.Errorf("failed to create metrics node: %w", err)
	}

	s.mirrorState(ctx, base+".last_updated", "last updated", "number", "value.time", "", time.Now().UnixMilli())

	if metric.Online != nil {
		s.mirrorState(ctx, base+".online", "online", "boolean", "boolean", "", *metric.Online)
	}
	if metric.Available != nil {
		s.mirrorState(ctx, base+".available", "available", "boolean", "boolean", "", *metric.Available)
	}
	if metric.Charging != nil {
		s.mirrorState(ctx, base+".charging", "charging", "boolean", "boolean", "", *metric.Charging)
	}
	if metric.SimpleCharge != nil {
		s.mirrorState(ctx, base+".simpleCharge", "simple charge", "boolean", "boolean", "", *metric.SimpleCharge)
	}
	if metric.Plugged != nil {
		s.mirrorState(ctx, base+".plugged", "plugged", "boolean", "boolean", "", *metric.Plugged)
	}
	if metric.MaxCurrent != nil {
		s.mirrorState(ctx, base+".maxCurrent", "max current", "number", "value", "A", *metric.MaxCurrent)
	}
	if metric.DynamicCurrent != nil {
		s.mirrorState(ctx, base+".dynamicCurrent", "dynamic current", "number", "value", "A", *metric.DynamicCurrent)
	}
	if metric.ChargingMode != nil {
		s.mirrorState(ctx, base+".chargingMode", "charging mode", "string", "text", "", *metric.ChargingMode)
	}
	if metric.Status != nil {
		s.mirrorState(ctx, base+".status", "status", "string", "text", "", *metric.Status)
	}

	if metric.CurrentSessionState != nil {
		if err := s.applySessionState(ctx, base, metric.CurrentSessionState); err != nil {
			return err
		}
	}

	if err := s.events.Publish(ctx, interfaces.Event{
		Type:      interfaces.EventMetricApplied,
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"station": metric.ChargingStationID,
			"path":    base,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Str("station", metric.ChargingStationID).Msg("Failed to publish metric event")
	}

	return nil
}

func (s *Service) applySessionState(ctx context.Context, base string, state *models.SessionState) error {
	sessionBase := base + ".currentSessionState"
	if err := s.store.EnsureNode(ctx, sessionBase, interfaces.NodeMeta{
		Kind: interfaces.NodeKindChannel,
		Name: "current session state",
	}); err != nil {
		return fmt.Errorf("failed to create session state node: %w", err)
	}

	// Nodes are created unconditionally; values only when present.
	s.ensureSessionStateNode(ctx, sessionBase+".startTime", "start time", "string", "text")
	if state.StartTime != "" {
		s.setConfirmed(ctx, sessionBase+".startTime", state.StartTime)
	}

	s.ensureSessionStateNode(ctx, sessionBase+".status", "status", "number", "value")
	if state.Status != 0 {
		s.setConfirmed(ctx, sessionBase+".status", state.Status)
	}

	s.ensureSessionStateNode(ctx, sessionBase+".consumedEnergy", "consumedEnergy", "number", "value")
	if state.ConsumedEnergy != nil {
		s.setConfirmed(ctx, sessionBase+".consumedEnergy", *state.ConsumedEnergy)
	}

	s.ensureSessionStateNode(ctx, sessionBase+".trigger", "trigger", "string", "text")
	if state.Trigger != "" {
		s.setConfirmed(ctx, sessionBase+".trigger", state.Trigger)
	}

	if state.TriggerUser != nil {
		s.ensureSessionStateNode(ctx, sessionBase+".trigger_firstName", "trigger first name", "string", "text")
		if state.TriggerUser.FirstName != "" {
			s.setConfirmed(ctx, sessionBase+".trigger_firstName", state.TriggerUser.FirstName)
		}
		s.ensureSessionStateNode(ctx, sessionBase+".trigger_lastName", "trigger last name", "string", "text")
		if state.TriggerUser.LastName != "" {
			s.setConfirmed(ctx, sessionBase+".trigger_lastName", state.TriggerUser.LastName)
		}
		s.ensureSessionStateNode(ctx, sessionBase+".trigger_originalUser", "trigger original user", "string", "text")
		if state.TriggerUser.OriginalUser != "" {
			s.setConfirmed(ctx, sessionBase+".trigger_originalUser", state.TriggerUser.OriginalUser)
		}
	}

	if state.LastMetrics != nil {
		for i, value := range state.LastMetrics.Current {
			path := fmt.Sprintf("%s.current_p%d", sessionBase, i+1)
			s.mirrorState(ctx, path, fmt.Sprintf("current phase %d", i+1), "number", "value", "A", value)
		}

		var powerSum float64
		for i, value := range state.LastMetrics.Power {
			path := fmt.Sprintf("%s.power_p%d", sessionBase, i+1)
			s.mirrorState(ctx, path, fmt.Sprintf("power phase %d", i+1), "number", "value", "Wh", value)
			powerSum += value
		}
		if len(state.LastMetrics.Power) > 0 {
			s.mirrorState(ctx, sessionBase+".power_sum", "power sum", "number", "value", "Wh", powerSum)
		}

		for i, value := range state.LastMetrics.Voltage {
			path := fmt.Sprintf("%s.voltage_p%d", sessionBase, i+1)
			s.mirrorState(ctx, path, fmt.Sprintf("voltage phase %d", i+1), "number", "value", "V", value)
		}
	}

	if state.Ended() {
		return s.clearSessionState(ctx, sessionBase)
	}

	return nil
}

// clearSessionState nulls every value in the currentSessionState subtree.
// The node structure stays in place for the next session.
func (s *Service) clearSessionState(ctx context.Context, sessionBase string) error {
	values, err := s.store.ListValues(ctx, sessionBase+".*")
	if err != nil {
		return fmt.Errorf("failed to list session state values: %w", err)
	}

	for path := range values {
		if err := s.store.SetValue(ctx, path, nil, true); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to clear session value")
		}
	}

	s.logger.Info().Str("path", sessionBase).Int("cleared", len(values)).Msg("Charging session ended, transient readings cleared")
	return nil
}

func (s *Service) ensureSessionStateNode(ctx context.Context, path, name, valueType, role string) {
	if err := s.store.EnsureNode(ctx, path, interfaces.NodeMeta{
		Kind:      interfaces.NodeKindState,
		Name:      name,
		ValueType: valueType,
		Role:      role,
		Readable:  true,
	}); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to create state node")
	}
}

func (s *Service) setConfirmed(ctx context.Context, path string, value interface{}) {
	if err := s.store.SetValue(ctx, path, value, true); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to write state value")
	}
}
