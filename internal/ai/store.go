package ai

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoState means no policy state is stored for the key
var ErrNoState = errors.New("no stored policy state")

// PolicyStore persists per-game policy state in a local SQLite database so
// a restarted AI server can resume the games it was playing.
type PolicyStore struct {
	db *sql.DB
}

const policySchema = `
CREATE TABLE IF NOT EXISTS policy_state (
    player_key TEXT PRIMARY KEY,
    ai_secret  TEXT NOT NULL,
    policy     TEXT NOT NULL,
    state      BLOB NOT NULL
);
`

// OpenPolicyStore opens (and if necessary creates) the database at path
func OpenPolicyStore(path string) (*PolicyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening policy store: %w", err)
	}
	if _, err := db.Exec(policySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing policy store schema: %w", err)
	}
	return &PolicyStore{db: db}, nil
}

// Close closes the underlying database
func (s *PolicyStore) Close() error {
	return s.db.Close()
}

// Save upserts the policy state for a player key
func (s *PolicyStore) Save(playerKey, aiSecret, policy string, state []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO policy_state (player_key, ai_secret, policy, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player_key) DO UPDATE
		SET ai_secret = excluded.ai_secret,
		    policy = excluded.policy,
		    state = excluded.state`,
		playerKey, aiSecret, policy, state,
	)
	if err != nil {
		return fmt.Errorf("saving policy state for key %s: %w", playerKey, err)
	}
	return nil
}

// Load reads the stored state for a player key
func (s *PolicyStore) Load(playerKey string) (aiSecret, policy string, state []byte, err error) {
	err = s.db.QueryRow(`
		SELECT ai_secret, policy, state FROM policy_state WHERE player_key = ?`,
		playerKey,
	).Scan(&aiSecret, &policy, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil, ErrNoState
	}
	if err != nil {
		return "", "", nil, fmt.Errorf("loading policy state for key %s: %w", playerKey, err)
	}
	return aiSecret, policy, state, nil
}

// Delete removes the state for a finished game. Idempotent.
func (s *PolicyStore) Delete(playerKey string) error {
	if _, err := s.db.Exec(`DELETE FROM policy_state WHERE player_key = ?`, playerKey); err != nil {
		return fmt.Errorf("deleting policy state for key %s: %w", playerKey, err)
	}
	return nil
}

// Keys lists every player key with stored state, for resuming on startup
func (s *PolicyStore) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT player_key FROM policy_state`)
	if err != nil {
		return nil, fmt.Errorf("listing policy state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning policy state key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
