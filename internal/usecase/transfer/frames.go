// Package transfer implements the chunked element transfer: one start frame
// announcing the total, update frames carrying chunks with a cumulative
// count, and one completion frame.
package transfer

import (
	"encoding/json"

	"bimbridge/internal/domain"
)

// DefaultChunkSize is the number of serialized elements per update frame.
const DefaultChunkSize = 100

// Frames returns the complete frame sequence for elements: Start{T},
// ceil(T/chunkSize) Updates, Complete{T}. A chunkSize below 1 falls back to
// DefaultChunkSize.
func Frames(projectID json.RawMessage, elements []string, chunkSize int) []domain.OutboundMessage {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	total := len(elements)
	frames := make([]domain.OutboundMessage, 0, total/chunkSize+3)

	frames = append(frames, domain.FetchProgressStart{TotalElements: total, ProjectID: projectID})
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		frames = append(frames, domain.FetchProgressUpdate{
			ProjectID:      projectID,
			ProcessedCount: end,
			Elements:       elements[start:end],
		})
	}
	frames = append(frames, domain.FetchProgressComplete{TotalSent: total})
	return frames
}
