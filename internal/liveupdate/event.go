package liveupdate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// UpdateEvent is one record from the update stream. Fields holds the whole
// decoded object, numbers as json.Number so they are forwarded verbatim.
type UpdateEvent struct {
	EntityID string
	Fields   map[string]any
}

// identifierKeys are checked in order; the first present one names the entity.
var identifierKeys = []string{"folder_id", "entityId", "entity_id"}

// ParseEvent decodes a single JSON object record. It fails with a
// *MalformedEventError when raw is not exactly one JSON object or carries
// no usable identifier.
func ParseEvent(raw []byte) (UpdateEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return UpdateEvent{}, &MalformedEventError{Raw: raw, Reason: err}
	}
	if fields == nil {
		return UpdateEvent{}, &MalformedEventError{Raw: raw, Reason: errors.New("record is not an object")}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return UpdateEvent{}, &MalformedEventError{Raw: raw, Reason: errors.New("trailing data after record")}
	}

	id, err := entityID(fields)
	if err != nil {
		return UpdateEvent{}, &MalformedEventError{Raw: raw, Reason: err}
	}

	return UpdateEvent{EntityID: id, Fields: fields}, nil
}

func entityID(fields map[string]any) (string, error) {
	for _, key := range identifierKeys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v == "" {
				return "", fmt.Errorf("empty %s", key)
			}
			return v, nil
		case json.Number:
			return v.String(), nil
		default:
			return "", fmt.Errorf("invalid %s: %T", key, value)
		}
	}
	return "", errors.New("missing entity identifier")
}
