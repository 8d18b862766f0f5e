package server

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vctt94/heistparty/pkg/heist"
)

// ReplaySink is the append-only replay port. Appends happen after game
// state has advanced and never block or roll back gameplay.
type ReplaySink interface {
	Append(event heist.RoomEvent) error
	Close() error
}

// replayRecord is the serialized form of one replay entry.
type replayRecord struct {
	Type      heist.RoomEventType `json:"type"`
	RoomID    string              `json:"roomId"`
	PlayerID  string              `json:"playerId,omitempty"`
	Payload   interface{}         `json:"payload,omitempty"`
	Timestamp time.Time           `json:"ts"`
}

// FileReplaySink appends events to a JSON-lines file.
type FileReplaySink struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileReplaySink opens (or creates) the replay file in append mode.
func NewFileReplaySink(path string) (*FileReplaySink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	return &FileReplaySink{f: f}, nil
}

// Append writes one event as a JSON line.
func (s *FileReplaySink) Append(event heist.RoomEvent) error {
	data, err := json.Marshal(replayRecord{
		Type:      event.Type,
		RoomID:    event.RoomID,
		PlayerID:  event.PlayerID,
		Payload:   event.Payload,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.f.Write(append(data, '\n'))
	return err
}

// Close closes the underlying file.
func (s *FileReplaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// NopReplaySink discards every event.
type NopReplaySink struct{}

// Append implements ReplaySink.
func (NopReplaySink) Append(heist.RoomEvent) error { return nil }

// Close implements ReplaySink.
func (NopReplaySink) Close() error { return nil }
