// Package wire encodes outbound messages into {type, payload} envelopes and
// decodes inbound {command, ...} frames from the remote peer.
package wire

import (
	"encoding/json"
	"fmt"

	"bimbridge/internal/domain"
)

// Envelope is the outbound frame sent to the peer.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// commandFrame is the inbound frame. Only the fields of the known commands
// are read; anything else in the object is ignored.
type commandFrame struct {
	Command   json.RawMessage `json:"command"`
	ProjectID json.RawMessage `json:"project_id"`
	UniqueIDs json.RawMessage `json:"unique_ids"`
}

// Encode serializes msg as {"type": ..., "payload": ...}.
func Encode(msg domain.OutboundMessage) ([]byte, error) {
	payload, err := json.Marshal(msg.Payload())
	if err != nil {
		return nil, domain.NewDomainError("Wire.Encode", err, msg.MessageType())
	}
	data, err := json.Marshal(Envelope{Type: msg.MessageType(), Payload: payload})
	if err != nil {
		return nil, domain.NewDomainError("Wire.Encode", err, msg.MessageType())
	}
	return data, nil
}

// DecodeCommand parses one inbound frame. Frames that are not valid JSON
// objects return an error wrapping domain.ErrDecode and must be dropped.
// A missing, unknown or malformed command yields domain.Unrecognized with a
// nil error.
func DecodeCommand(data []byte) (domain.InboundCommand, error) {
	var frame commandFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, domain.NewDomainError("Wire.DecodeCommand", domain.ErrDecode, err.Error())
	}

	if len(frame.Command) == 0 || string(frame.Command) == "null" {
		return domain.Unrecognized{Reason: "missing command field"}, nil
	}
	var name string
	if err := json.Unmarshal(frame.Command, &name); err != nil {
		return domain.Unrecognized{Reason: "command field is not a string"}, nil
	}

	switch name {
	case domain.CommandFetchAllElementsChunked:
		return domain.FetchAllElementsChunked{ProjectID: projectID(frame.ProjectID)}, nil
	case domain.CommandGetSelection:
		return domain.GetSelection{}, nil
	case domain.CommandSelectElements:
		ids, err := uniqueIDs(frame.UniqueIDs)
		if err != nil {
			return domain.Unrecognized{Name: name, Reason: err.Error()}, nil
		}
		return domain.SelectElements{UniqueIDs: ids}, nil
	default:
		return domain.Unrecognized{Name: name, Reason: "unknown command"}, nil
	}
}

// projectID keeps the raw value so it can be echoed back verbatim.
// An absent field is returned as nil, which encodes as JSON null.
func projectID(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

// uniqueIDs requires an array of strings; an empty array is valid.
func uniqueIDs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("missing unique_ids")
	}
	ids := []string{}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("unique_ids must be an array of strings: %w", err)
	}
	return ids, nil
}
