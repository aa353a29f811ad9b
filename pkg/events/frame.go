package events

import (
	"encoding/json"
	"fmt"
)

const (
	// DataPrefix starts every data line of a frame.
	DataPrefix = "data: "

	// DoneSentinel may be sent by non-conforming upstreams to end a stream.
	DoneSentinel = "[DONE]"

	// Heartbeat is an SSE comment frame that keeps idle connections open.
	Heartbeat = ": heartbeat\n\n"
)

// Frame renders e as a single SSE frame terminated by a blank line.
func (e Event) Frame() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	frame := make([]byte, 0, len(DataPrefix)+len(body)+2)
	frame = append(frame, DataPrefix...)
	frame = append(frame, body...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
