package types

import "encoding/json"

// Envelope is the wire unit exchanged over the socket.
type Envelope struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Frame is an inbound envelope decoded once at the connection boundary.
// Raw always holds the payload as received, so a frame that failed to
// parse is passed through rather than dropped.
type Frame struct {
	Action Action
	Data   json.RawMessage
	Raw    []byte
}

// NewEnvelope builds an outbound envelope, marshaling the payload.
func NewEnvelope(action Action, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Action: action}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Action: action, Data: raw}, nil
}

// DecodeFrame parses an inbound payload. A well-formed envelope yields
// its action and data. A bare JSON string is tolerated as a legacy
// encoding where the whole payload is the action name. Anything else
// decodes to ActionUnknown with the raw bytes preserved.
func DecodeFrame(payload []byte) Frame {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Action != "" {
		return Frame{Action: env.Action, Data: env.Data, Raw: payload}
	}

	var bare string
	if err := json.Unmarshal(payload, &bare); err == nil && bare != "" {
		return Frame{Action: Action(bare), Raw: payload}
	}

	return Frame{Action: ActionUnknown, Raw: payload}
}
