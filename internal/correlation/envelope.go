package correlation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Envelope is one framed message, inbound or outbound.
type Envelope struct {
	Kind          string          // Message name, e.g. "candles"
	CorrelationID string          // Echoed request id; empty for push events
	Payload       json.RawMessage // Opaque message body
	Timestamp     time.Time       // Local receive time (inbound) or send time (outbound)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Kind)
	}
	return json.Unmarshal(e.Payload, v)
}

// Field returns the payload value at path, walking nested objects.
// Numbers are returned as json.Number.
func (e Envelope) Field(path ...string) (any, bool) {
	if len(e.Payload) == 0 {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.UseNumber()

	var cur any
	if err := dec.Decode(&cur); err != nil {
		return nil, false
	}

	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Codec converts between transport frames and envelopes.
type Codec interface {
	Encode(env Envelope) ([]byte, error)
	Decode(data []byte) (Envelope, error)
}

// JSONCodec speaks {"name": kind, "request_id": id, "msg": payload}.
type JSONCodec struct{}

// wireEnvelope is the wire format for every frame.
type wireEnvelope struct {
	Name      string          `json:"name"`
	RequestID wireID          `json:"request_id,omitempty"`
	Msg       json.RawMessage `json:"msg,omitempty"`
}

// Encode implements Codec.
func (JSONCodec) Encode(env Envelope) ([]byte, error) {
	if env.Kind == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedFrame)
	}
	return json.Marshal(wireEnvelope{
		Name:      env.Kind,
		RequestID: wireID(env.CorrelationID),
		Msg:       env.Payload,
	})
}

// Decode implements Codec. The envelope timestamp is the decode time.
func (JSONCodec) Decode(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if wire.Name == "" {
		return Envelope{}, fmt.Errorf("%w: missing name", ErrMalformedFrame)
	}

	return Envelope{
		Kind:          wire.Name,
		CorrelationID: string(wire.RequestID),
		Payload:       wire.Msg,
		Timestamp:     time.Now(),
	}, nil
}

// wireID accepts request ids sent as JSON strings or numbers.
type wireID string

func (id wireID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *wireID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("request_id: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("request_id: %w", err)
	}
	*id = wireID(n.String())
	return nil
}
