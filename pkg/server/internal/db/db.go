package db

import (
	"database/sql"
	"fmt"
)

// DB wraps the sqlite connection used for best-effort game persistence.
type DB struct {
	*sql.DB
}

// NewDB opens (and if necessary creates) the database at dbPath.
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the persistence schema: one row per game, one per
// dealt round, one per player action.
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'in_progress',
			snapshot TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS game_rounds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id TEXT NOT NULL,
			round_number INTEGER NOT NULL,
			phase TEXT NOT NULL,
			community_cards TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (game_id) REFERENCES games(id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS player_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			round_number INTEGER NOT NULL,
			action TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (game_id) REFERENCES games(id)
		)
	`)
	return err
}

// CreateGame inserts the game row.
func (db *DB) CreateGame(gameID, roomID, mode string) error {
	_, err := db.Exec(`
		INSERT INTO games (id, room_id, mode)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, gameID, roomID, mode)
	if err != nil {
		return fmt.Errorf("failed to create game row: %w", err)
	}
	return nil
}

// SaveGameState updates the game's status and latest snapshot.
func (db *DB) SaveGameState(gameID, status string, snapshot []byte) error {
	res, err := db.Exec(`
		UPDATE games
		SET status = ?, snapshot = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, string(snapshot), gameID)
	if err != nil {
		return fmt.Errorf("failed to save game state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("game %s not found", gameID)
	}
	return nil
}

// CreateGameRound records a dealt round.
func (db *DB) CreateGameRound(gameID string, round int, phase string, communityCards []byte) error {
	_, err := db.Exec(`
		INSERT INTO game_rounds (game_id, round_number, phase, community_cards)
		VALUES (?, ?, ?, ?)
	`, gameID, round, phase, string(communityCards))
	if err != nil {
		return fmt.Errorf("failed to create round row: %w", err)
	}
	return nil
}

// RecordPlayerAction appends one player action row.
func (db *DB) RecordPlayerAction(gameID, playerID string, round int, action string, detail []byte) error {
	_, err := db.Exec(`
		INSERT INTO player_actions (game_id, player_id, round_number, action, detail)
		VALUES (?, ?, ?, ?, ?)
	`, gameID, playerID, round, action, string(detail))
	if err != nil {
		return fmt.Errorf("failed to record player action: %w", err)
	}
	return nil
}

// GameStatus returns the stored status of a game.
func (db *DB) GameStatus(gameID string) (string, error) {
	var status string
	err := db.QueryRow("SELECT status FROM games WHERE id = ?", gameID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("game not found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get game status: %w", err)
	}
	return status, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
