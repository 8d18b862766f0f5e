package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vctt94/heistparty/pkg/server/internal/db"
)

// Database is the persistence port consumed by the server. All calls are
// dispatched after in-memory state has already advanced and are best-effort:
// failures are logged, never rolled back into gameplay.
type Database interface {
	// CreateGame inserts the long-term record for a started game.
	CreateGame(gameID, roomID, mode string) error
	// SaveGameState records the game's status and latest snapshot.
	SaveGameState(gameID, status string, snapshot []byte) error
	// CreateGameRound records one dealt round with its community cards.
	CreateGameRound(gameID string, round int, phase string, communityCards []byte) error
	// RecordPlayerAction appends one player action.
	RecordPlayerAction(gameID, playerID string, round int, action string, detail []byte) error
	// Close closes the database connection.
	Close() error
}

// NewDatabase creates a sqlite-backed Database at dbPath, creating the
// parent directory if needed.
func NewDatabase(dbPath string) (Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	return db.NewDB(dbPath)
}
