package models

import "encoding/json"

// RecordSeparator delimits concatenated JSON frames on the hub socket (U+001E)
const RecordSeparator = "\u001e"

// HubHandshake opens the hub protocol after the socket connects
type HubHandshake struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// HubInvocation is one multiplexed client->server call
type HubInvocation struct {
	Arguments    []string `json:"arguments"`
	InvocationID string   `json:"invocationId"`
	Target       string   `json:"target"`
	Type         int      `json:"type"`
}

// HubMessage is an inbound frame; Arguments stay raw so that only frames
// with a known target are decoded further
type HubMessage struct {
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// NegotiateResponse is the reply of the hub negotiate endpoint
type NegotiateResponse struct {
	ConnectionID    string `json:"connectionId"`
	ConnectionToken string `json:"connectionToken"`
}
