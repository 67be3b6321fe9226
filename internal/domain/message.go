package domain

import "encoding/json"

// Inbound command names as sent by the remote peer.
const (
	CommandFetchAllElementsChunked = "fetch_all_elements_chunked"
	CommandGetSelection            = "get_selection"
	CommandSelectElements          = "select_elements"
)

// InboundCommand is a decoded peer command. The concrete type is one of
// FetchAllElementsChunked, GetSelection, SelectElements or Unrecognized.
type InboundCommand interface {
	CommandName() string
}

// FetchAllElementsChunked asks for every product of the open model,
// streamed as a chunked transfer.
type FetchAllElementsChunked struct {
	// ProjectID is opaque to the bridge and echoed back verbatim.
	ProjectID json.RawMessage
}

// GetSelection asks for the stable ids of the current selection.
type GetSelection struct{}

// SelectElements replaces the current selection with the given stable ids.
type SelectElements struct {
	UniqueIDs []string
}

// Unrecognized is any frame whose command is unknown, missing or malformed.
type Unrecognized struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (FetchAllElementsChunked) CommandName() string { return CommandFetchAllElementsChunked }
func (GetSelection) CommandName() string { return CommandGetSelection }
func (SelectElements) CommandName() string { return CommandSelectElements }
func (u Unrecognized) CommandName() string { return u.Name }

// Outbound message types as seen by the remote peer.
const (
	MessageFetchProgressStart    = "fetch_progress_start"
	MessageFetchProgressUpdate   = "fetch_progress_update"
	MessageFetchProgressComplete = "fetch_progress_complete"
	MessageSelectionResponse     = "revit_selection_response"
)

// OutboundMessage is a message sent to the remote peer. MessageType is the
// envelope tag and Payload the value encoded under "payload".
type OutboundMessage interface {
	MessageType() string
	Payload() any
}

// FetchProgressStart opens a chunked transfer.
type FetchProgressStart struct {
	TotalElements int             `json:"total_elements"`
	ProjectID     json.RawMessage `json:"project_id"`
}

// FetchProgressUpdate carries one chunk. ProcessedCount is cumulative.
type FetchProgressUpdate struct {
	ProjectID      json.RawMessage `json:"project_id"`
	ProcessedCount int             `json:"processed_count"`
	Elements       []string        `json:"elements"`
}

// FetchProgressComplete closes a chunked transfer.
type FetchProgressComplete struct {
	TotalSent int `json:"total_sent"`
}

// SelectionResponse reports the current selection; its payload is a bare array.
type SelectionResponse struct {
	UniqueIDs []string
}

func (FetchProgressStart) MessageType() string { return MessageFetchProgressStart }
func (FetchProgressUpdate) MessageType() string { return MessageFetchProgressUpdate }
func (FetchProgressComplete) MessageType() string { return MessageFetchProgressComplete }
func (SelectionResponse) MessageType() string { return MessageSelectionResponse }

// A nil ProjectID encodes as JSON null.
func (m FetchProgressStart) Payload() any { return m }

func (m FetchProgressUpdate) Payload() any {
	if m.Elements == nil {
		m.Elements = []string{}
	}
	return m
}

func (m FetchProgressComplete) Payload() any { return m }

func (m SelectionResponse) Payload() any {
	if m.UniqueIDs == nil {
		return []string{}
	}
	return m.UniqueIDs
}
