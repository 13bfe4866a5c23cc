package stdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errEmptyEnvelope = errors.New("empty message envelope")

// extractType returns the tag of an externally tagged server message and its body.
func extractType(data []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(envelope) != 1 {
		if len(envelope) == 0 {
			return "", nil, errEmptyEnvelope
		}
		return "", nil, fmt.Errorf("envelope has %d tags, want 1", len(envelope))
	}
	for tag, body := range envelope {
		return tag, body, nil
	}
	return "", nil, errEmptyEnvelope
}

func unmarshalBody(body json.RawMessage, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}
	return nil
}

// decodeRow decodes a row that is either a JSON object or a JSON string
// containing the object.
func decodeRow[R any](raw json.RawMessage) (R, error) {
	var row R
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return row, fmt.Errorf("unmarshal row string: %w", err)
		}
		raw = json.RawMessage(inner)
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, fmt.Errorf("unmarshal row: %w", err)
	}
	return row, nil
}

// encodeClientMessage wraps a client message in its tag.
func encodeClientMessage(env clientEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal client message: %w", err)
	}
	return data, nil
}

// encodeArgs renders reducer arguments as the JSON array string the service expects.
func encodeArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal reducer args: %w", err)
	}
	return string(data), nil
}
