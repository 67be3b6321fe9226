package domain

import (
	"encoding/json"
	"testing"
)

func TestCommandNames(t *testing.T) {
	tests := []struct {
		cmd  InboundCommand
		want string
	}{
		{FetchAllElementsChunked{}, "fetch_all_elements_chunked"},
		{GetSelection{}, "get_selection"},
		{SelectElements{}, "select_elements"},
		{Unrecognized{Name: "explode"}, "explode"},
	}
	for _, tt := range tests {
		if got := tt.cmd.CommandName(); got != tt.want {
			t.Errorf("CommandName() = %q, want %q", got, tt.want)
		}
	}
}

func TestOutboundPayloads(t *testing.T) {
	tests := []struct {
		name string
		msg  OutboundMessage
		want string
	}{
		{
			name: "start without project id",
			msg:  FetchProgressStart{TotalElements: 3},
			want: `{"total_elements":3,"project_id":null}`,
		},
		{
			name: "start echoes raw project id",
			msg:  FetchProgressStart{TotalElements: 0, ProjectID: json.RawMessage(`{"id":7}`)},
			want: `{"total_elements":0,"project_id":{"id":7}}`,
		},
		{
			name: "update with nil elements",
			msg:  FetchProgressUpdate{ProjectID: json.RawMessage(`"p"`), ProcessedCount: 0},
			want: `{"project_id":"p","processed_count":0,"elements":[]}`,
		},
		{
			name: "complete",
			msg:  FetchProgressComplete{TotalSent: 250},
			want: `{"total_sent":250}`,
		},
		{
			name: "empty selection is an array",
			msg:  SelectionResponse{},
			want: `[]`,
		},
		{
			name: "selection",
			msg:  SelectionResponse{UniqueIDs: []string{"a", "b"}},
			want: `["a","b"]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg.Payload())
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("payload = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestConnectionStateLive(t *testing.T) {
	live := map[ConnectionState]bool{
		StateDisconnected: false,
		StateConnecting:   true,
		StateConnected:    true,
		StateFailed:       false,
	}
	for state, want := range live {
		if got := state.Live(); got != want {
			t.Errorf("%s.Live() = %v, want %v", state, got, want)
		}
	}
}
