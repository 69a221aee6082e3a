package dropboxsign

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EventCallbackTest = "callback_test"
	EventAllSigned    = "signature_request_all_signed"
)

// ErrMalformedCallback is returned when a callback lacks a required field
var ErrMalformedCallback = errors.New("malformed callback")

type Event struct {
	EventTime string `json:"event_time"`
	EventType string `json:"event_type"`
	EventHash string `json:"event_hash"`
}

// Callback is the envelope the provider posts to the webhook
type Callback struct {
	Event            *Event            `json:"event"`
	SignatureRequest *SignatureRequest `json:"signature_request"`
}

// ParseCallback decodes a callback body and checks the fields each event type needs
func ParseCallback(data []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(data, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if cb.Event == nil || cb.Event.EventType == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedCallback)
	}
	if cb.Event.EventType == EventAllSigned &&
		(cb.SignatureRequest == nil || cb.SignatureRequest.SignatureRequestID == "") {
		return nil, fmt.Errorf("%w: missing signature_request_id", ErrMalformedCallback)
	}
	return &cb, nil
}
