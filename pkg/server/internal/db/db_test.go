package db

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "heist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestGameLifecycle(t *testing.T) {
	database := newTestDB(t)

	require.NoError(t, database.CreateGame("g1", "room-1", "basic"))
	// Re-creating the same game id is a no-op, not an error.
	require.NoError(t, database.CreateGame("g1", "room-1", "basic"))

	status, err := database.GameStatus("g1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", status)

	snapshot := []byte(`{"phase":"SHOWDOWN","currentVaults":3}`)
	require.NoError(t, database.SaveGameState("g1", "completed", snapshot))

	status, err = database.GameStatus("g1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status)

	var stored string
	err = database.QueryRow("SELECT snapshot FROM games WHERE id = ?", "g1").Scan(&stored)
	require.NoError(t, err)
	assert.JSONEq(t, string(snapshot), stored)
}

func TestSaveGameStateUnknownGame(t *testing.T) {
	database := newTestDB(t)
	err := database.SaveGameState("missing", "completed", nil)
	assert.Error(t, err)
}

func TestGameStatusUnknownGame(t *testing.T) {
	database := newTestDB(t)
	_, err := database.GameStatus("missing")
	assert.Error(t, err)
}

func TestRoundsAndActions(t *testing.T) {
	database := newTestDB(t)
	require.NoError(t, database.CreateGame("g1", "room-1", "pro"))

	require.NoError(t, database.CreateGameRound("g1", 1, "PRE_FLOP", []byte(`[]`)))
	require.NoError(t, database.CreateGameRound("g1", 2, "FLOP", []byte(`[{"suit":"♠","value":"A"}]`)))

	require.NoError(t, database.RecordPlayerAction("g1", "p1", 1, "takeFromCenter", []byte(`{"chipId":1}`)))
	require.NoError(t, database.RecordPlayerAction("g1", "p1", 1, "pass", nil))
	require.NoError(t, database.RecordPlayerAction("g1", "p2", 1, "pass", nil))

	var rounds int
	require.NoError(t, database.QueryRow(
		"SELECT COUNT(*) FROM game_rounds WHERE game_id = ?", "g1").Scan(&rounds))
	assert.Equal(t, 2, rounds)

	var actions int
	require.NoError(t, database.QueryRow(
		"SELECT COUNT(*) FROM player_actions WHERE game_id = ? AND round_number = 1", "g1").Scan(&actions))
	assert.Equal(t, 3, actions)

	var action string
	require.NoError(t, database.QueryRow(
		"SELECT action FROM player_actions WHERE game_id = ? ORDER BY id LIMIT 1", "g1").Scan(&action))
	assert.Equal(t, "takeFromCenter", action)
}
