// Package sink delivers routed analysis messages to their consumers.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"edge-analyzer/internal/domain/analysis"
)

// ErrNotInitialized is returned when a sink is asked to send before its client
// exists. Callers log it and carry on.
var ErrNotInitialized = errors.New("sink client not initialized")

// Message is a serialized payload plus the string properties that travel with it.
type Message struct {
	ID         string
	Type       analysis.MessageType
	Body       []byte
	Properties map[string]string
}

type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Envelope is the wire form for transports without native message properties.
type Envelope struct {
	ID         string               `json:"id"`
	Type       analysis.MessageType `json:"type"`
	Properties map[string]string    `json:"properties"`
	Payload    json.RawMessage      `json:"payload"`
}

func (m Message) Envelope() ([]byte, error) {
	body := m.Body
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	data, err := json.Marshal(Envelope{
		ID:         m.ID,
		Type:       m.Type,
		Properties: m.Properties,
		Payload:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

type multi []Sink

// Multi sends every message to each non-nil sink and joins the failures. One
// failing sink never stops delivery to the others.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Send(ctx context.Context, msg Message) error {
	if len(m) == 0 {
		return ErrNotInitialized
	}
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
