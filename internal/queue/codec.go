package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedMessage marks bytes that cannot be turned back into a Message.
// Such messages are dropped, never retried.
var ErrMalformedMessage = errors.New("malformed queue message")

// wireMessage is the stored representation. sendAt is ISO-8601 text.
type wireMessage struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	SendAt  string          `json:"sendAt,omitempty"`
}

// Encode serializes msg. The caller is expected to have assigned an ID.
func Encode[T any](msg Message[T]) ([]byte, error) {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload of %s: %w", msg.ID, err)
	}

	w := wireMessage{ID: msg.ID, Payload: payload}
	if msg.SendAt != nil {
		w.SendAt = msg.SendAt.UTC().Format(time.RFC3339Nano)
	}

	raw, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal message %s: %w", msg.ID, err)
	}
	return raw, nil
}

// Decode parses bytes produced by Encode.
func Decode[T any](raw []byte) (Message[T], error) {
	var (
		w   wireMessage
		msg Message[T]
	)
	if err := json.Unmarshal(raw, &w); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if w.ID == "" {
		return msg, fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}
	if len(w.Payload) == 0 {
		return msg, fmt.Errorf("%w: missing payload in %s", ErrMalformedMessage, w.ID)
	}
	if err := json.Unmarshal(w.Payload, &msg.Payload); err != nil {
		return msg, fmt.Errorf("%w: payload of %s: %v", ErrMalformedMessage, w.ID, err)
	}
	if w.SendAt != "" {
		t, err := time.Parse(time.RFC3339Nano, w.SendAt)
		if err != nil {
			return msg, fmt.Errorf("%w: sendAt of %s: %v", ErrMalformedMessage, w.ID, err)
		}
		msg.SendAt = &t
	}
	msg.ID = w.ID
	return msg, nil
}
