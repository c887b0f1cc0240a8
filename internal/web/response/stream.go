package response

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ContentTypeNDJSON is the media type of JSON Lines streams
const ContentTypeNDJSON = "application/x-ndjson"

// Streamer writes a JSON Lines response, flushing after every object
type Streamer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	encoder *json.Encoder
	started bool
}

// NewStreamer creates a new response streamer
func NewStreamer(w http.ResponseWriter) (*Streamer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &Streamer{writer: w, flusher: flusher, encoder: json.NewEncoder(w)}, nil
}

// Send writes one object. The status line is written with the first object.
func (s *Streamer) Send(v any) error {
	if !s.started {
		s.Start()
	}
	if err := s.encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode object: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Start writes the headers of an empty or not yet started stream
func (s *Streamer) Start() {
	if s.started {
		return
	}
	s.started = true
	s.writer.Header().Set("Content-Type", ContentTypeNDJSON)
	s.writer.Header().Set("X-Content-Type-Options", "nosniff")
	s.writer.WriteHeader(http.StatusOK)
}
