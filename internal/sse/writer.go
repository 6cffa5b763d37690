// Package sse writes server-sent event streams.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Frame is the JSON payload of one event. Content is set on deltas, Error on error frames.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Writer sends frames as "data: <json>\n\n" lines and flushes after each one. It is safe
// for concurrent use so a heartbeat can share the stream with the relay loop.
type Writer struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
}

// NewWriter wraps w. Nothing is written until Open or the first Send. Middleware writers
// are accepted when they expose the underlying writer through Unwrap.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	if !canFlush(w) {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, rc: http.NewResponseController(w)}, nil
}

// canFlush follows the same Unwrap chain http.ResponseController does
func canFlush(w http.ResponseWriter) bool {
	for {
		switch t := w.(type) {
		case http.Flusher:
			return true
		case interface{ Unwrap() http.ResponseWriter }:
			w = t.Unwrap()
		default:
			return false
		}
	}
}

// Open writes the event-stream headers and a 200 status
func (s *Writer) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open()
}

func (s *Writer) open() error {
	if s.opened {
		return nil
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	s.w.WriteHeader(http.StatusOK)
	s.opened = true
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush stream headers: %w", err)
	}
	return nil
}

// Opened reports whether headers have been sent
func (s *Writer) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Send writes one frame
func (s *Writer) Send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}

// Ping writes a comment line that clients ignore, keeping idle proxies from closing the
// connection
func (s *Writer) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Heartbeat pings every interval until ctx is done or a write fails
func (s *Writer) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Ping(); err != nil {
				return
			}
		}
	}
}
