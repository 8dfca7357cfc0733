package models

// Session-state status codes that mark the end of a charging session.
// Receiving either clears every persisted value under currentSessionState.
const (
	SessionStatusCompleted = 267
	SessionStatusAborted   = 277
)

// Metric is one station's realtime snapshot pushed over the hub socket
type Metric struct {
	ChargingStationID   string        `json:"chargingStationId"`
	Online              *bool         `json:"online"`
	Available           *bool         `json:"available"`
	Charging            *bool         `json:"charging"`
	SimpleCharge        *bool         `json:"simpleCharge"`
	Plugged             *bool         `json:"plugged"`
	MaxCurrent          *float64      `json:"maxCurrent"`
	DynamicCurrent      *float64      `json:"dynamicCurrent"`
	ChargingMode        *string       `json:"chargingMode"`
	Status              *string       `json:"status"`
	CurrentSessionState *SessionState `json:"currentSessionState"`
}

// SessionState is the ephemeral in-progress session attached to a metric
type SessionState struct {
	StartTime      string       `json:"startTime"`
	Status         int          `json:"status"`
	ConsumedEnergy *float64     `json:"consumedEnergy"`
	Trigger        string       `json:"trigger"`
	TriggerUser    *TriggerUser `json:"triggerUser"`
	LastMetrics    *PhaseData   `json:"lastMetricsData"`
}

// Ended reports whether the session reached a terminal status code
func (s *SessionState) Ended() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusAborted
}

// TriggerUser identifies who started the running session
type TriggerUser struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	OriginalUser string `json:"originalUser"`
}

// PhaseData carries per-phase electrical readings
type PhaseData struct {
	Current []float64 `json:"current"`
	Power   []float64 `json:"power"`
	Voltage []float64 `json:"voltage"`
}
