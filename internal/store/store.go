package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"igo/pkg/logger"
)

var (
	// ErrKeyConflict means a generated player key already exists. With a
	// 62^10 keyspace this is effectively unreachable; callers retry once
	// and then fail.
	ErrKeyConflict = errors.New("player key already exists")

	// ErrUnavailable is returned while the store connection is being
	// re-established. Operations are never retried silently.
	ErrUnavailable = errors.New("store temporarily unavailable")
)

// JoinResult is the domain outcome of a join attempt
type JoinResult int

const (
	// JoinDNE - the requested player key does not exist
	JoinDNE JoinResult = iota
	// JoinInUse - someone is already connected to the requested key
	JoinInUse
	// JoinSuccess - the key was free and is now managed by this server
	JoinSuccess
)

func (r JoinResult) String() string {
	switch r {
	case JoinDNE:
		return "dne"
	case JoinInUse:
		return "in_use"
	case JoinSuccess:
		return "success"
	default:
		return "unknown"
	}
}

func joinResultFromString(s string) (JoinResult, error) {
	switch s {
	case "dne":
		return JoinDNE, nil
	case "in_use":
		return JoinInUse, nil
	case "success":
		return JoinSuccess, nil
	default:
		return 0, fmt.Errorf("unknown join result %q", s)
	}
}

// ChatMessage is one persisted chat row
type ChatMessage struct {
	ID        int64
	Timestamp float64
	Color     string
	Text      string
}

// Store is the typed facade over the PostgreSQL game database. It owns a
// connection pool for request traffic and a dedicated connection for
// LISTEN/NOTIFY, and converts notifications into queue updates for the
// session manager's consumer.
type Store struct {
	pool     *pgxpool.Pool
	listener *listener
	queue    *UpdateQueue
	serverID string
	log      *logger.ColoredLogger

	available atomic.Bool

	// onRecover lets the session manager re-acquire ownership of its
	// active keys after a database reconnect
	onRecover func(ctx context.Context) error
}

// New connects to PostgreSQL and returns a Store. Cleanup must be called
// and Run started before the server accepts connections.
func New(ctx context.Context, dsn, serverID string, maxConns int, log *logger.ColoredLogger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	queue := NewUpdateQueue()
	s := &Store{
		pool:     pool,
		listener: newListener(dsn, queue, log),
		queue:    queue,
		serverID: serverID,
		log:      log,
	}
	s.available.Store(true)
	return s, nil
}

// Close releases the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Updates returns the queue the listener feeds
func (s *Store) Updates() *UpdateQueue {
	return s.queue
}

// SetRecoveryHook registers the session manager's reconnect recovery. Must
// be called before Run.
func (s *Store) SetRecoveryHook(hook func(ctx context.Context) error) {
	s.onRecover = hook
}

// Run drives the notification listener until ctx is done. On reconnect it
// re-runs cleanup for this server id, replays every LISTEN binding and then
// gives the session manager a chance to re-acquire its keys.
func (s *Store) Run(ctx context.Context) error {
	return s.listener.run(ctx,
		func(ctx context.Context, reconnected bool) error {
			// lift the guard first: recovery itself goes through the
			// public operations
			s.available.Store(true)
			if reconnected {
				s.log.Warn("Listener reconnected; running crash recovery")
				if err := s.Cleanup(ctx); err != nil {
					s.available.Store(false)
					return err
				}
				if s.onRecover != nil {
					if err := s.onRecover(ctx); err != nil {
						s.available.Store(false)
						return err
					}
				}
			}
			return nil
		},
		func() {
			s.available.Store(false)
		},
	)
}

func (s *Store) guard() error {
	if !s.available.Load() {
		return ErrUnavailable
	}
	return nil
}

// Cleanup releases every player key managed by this server. It runs on
// startup, before any other operation, so that keys orphaned by a crash
// become joinable again. Idempotent.
func (s *Store) Cleanup(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `SELECT do_cleanup($1)`, s.serverID); err != nil {
		return fmt.Errorf("cleaning up managed keys: %w", err)
	}
	s.log.Info("Released all player keys managed by this server")
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewGame writes a fresh game and its two player key rows in one
// transaction. When requestedColor is set, that color's row is atomically
// marked connected and managed by this server. aiSecret and aiColor record
// the secret an AI client must present to join as aiColor.
func (s *Store) NewGame(ctx context.Context, blob []byte, keyW, keyB, requestedColor, aiSecret, aiColor string) error {
	if err := s.guard(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`CALL new_game($1, $2, $3, $4, $5, $6, $7)`,
		blob, keyW, keyB, nullable(requestedColor), s.serverID, nullable(aiSecret), nullable(aiColor),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("writing new game: %w", ErrKeyConflict)
		}
		return fmt.Errorf("writing new game: %w", err)
	}

	s.log.Info("Wrote new game with keys white=%s black=%s", keyW, keyB)
	return nil
}

// JoinGame atomically claims a player key for this server. The in_use
// answer is definitive; this never blocks on another server's ownership.
// On success both of the game's keys are returned so the caller can learn
// its color.
func (s *Store) JoinGame(ctx context.Context, key, aiSecret string) (JoinResult, string, string, error) {
	if err := s.guard(); err != nil {
		return 0, "", "", err
	}

	var result string
	var keyW, keyB *string
	err := s.pool.QueryRow(ctx,
		`SELECT result, key_w, key_b FROM join_game($1, $2, $3)`,
		key, s.serverID, nullable(aiSecret),
	).Scan(&result, &keyW, &keyB)
	if err != nil {
		return 0, "", "", fmt.Errorf("joining game with key %s: %w", key, err)
	}

	res, err := joinResultFromString(result)
	if err != nil {
		return 0, "", "", fmt.Errorf("joining game with key %s: %w", key, err)
	}
	s.log.Info("Join attempt for key %s returned %s", key, res)

	if res != JoinSuccess {
		return res, "", "", nil
	}
	return res, *keyW, *keyB, nil
}

// WriteGame performs the CAS update of the game blob: it succeeds only if
// the stored version is still below newVersion. A false return is
// preemption by the other player's server, not an error. On success the
// database notifies both players' game_status channels.
func (s *Store) WriteGame(ctx context.Context, key string, blob []byte, newVersion int) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT write_game($1, $2, $3)`,
		key, blob, newVersion,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("writing game for key %s: %w", key, err)
	}

	if ok {
		s.log.Info("Updated game for key %s to version %d", key, newVersion)
	} else {
		s.log.Info("Preempted updating game for key %s to version %d", key, newVersion)
	}
	return ok, nil
}

// WriteChat persists one chat message, stamped with the key's color.
// Returns false when the key is unknown. On success the database notifies
// both players' chat channels.
func (s *Store) WriteChat(ctx context.Context, key string, timestamp float64, text string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT write_chat($1, $2, $3)`,
		key, timestamp, text,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("writing chat for key %s: %w", key, err)
	}
	return ok, nil
}

// TriggerUpdateAll emits synthetic game, chat and opponent-connected
// notifications for key, so a newly joined client receives its initial
// state through the same consumer path as live updates.
func (s *Store) TriggerUpdateAll(ctx context.Context, key string) error {
	if err := s.guard(); err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `SELECT trigger_update_all($1)`, key); err != nil {
		return fmt.Errorf("triggering updates for key %s: %w", key, err)
	}
	return nil
}

// Unsubscribe releases key if it is still managed by this server and tells
// the opponent. Returns false, without error, when another server has
// taken over in the meantime.
func (s *Store) Unsubscribe(ctx context.Context, key string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT unsubscribe($1, $2)`, key, s.serverID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("unsubscribing key %s: %w", key, err)
	}
	if ok {
		s.log.Info("Unsubscribed player key %s", key)
	}
	return ok, nil
}

// Subscribe starts listening on the three notification channels for key.
// It returns once LISTEN has taken effect, so notifications fired after it
// returns are guaranteed to be delivered.
func (s *Store) Subscribe(ctx context.Context, key string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := s.listener.listen(ctx, key); err != nil {
		return fmt.Errorf("subscribing to channels for key %s: %w", key, err)
	}
	return nil
}

// Unlisten stops listening on the channels for key
func (s *Store) Unlisten(key string) {
	s.listener.unlisten(key)
}

// FetchGame reads the authoritative game blob and version for key.
// Notifications are hints only; consumers always re-read through here.
func (s *Store) FetchGame(ctx context.Context, key string) ([]byte, int, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}

	var blob []byte
	var version int
	err := s.pool.QueryRow(ctx,
		`SELECT g.data, g.version
		 FROM game g
		 JOIN player_key pk ON pk.game_id = g.id
		 WHERE pk.key = $1`, key,
	).Scan(&blob, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, fmt.Errorf("no game for player key %s", key)
		}
		return nil, 0, fmt.Errorf("fetching game for key %s: %w", key, err)
	}
	return blob, version, nil
}

// FetchChat reads the chat messages for key's game with id greater than
// afterID, in id order.
func (s *Store) FetchChat(ctx context.Context, key string, afterID int64) ([]ChatMessage, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.timestamp, c.color, c.text
		 FROM chat c
		 WHERE c.game_id = (SELECT game_id FROM player_key WHERE key = $1)
		   AND c.id > $2
		 ORDER BY c.id`, key, afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching chat for key %s: %w", key, err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Color, &m.Text); err != nil {
			return nil, fmt.Errorf("scanning chat row for key %s: %w", key, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetching chat for key %s: %w", key, err)
	}
	return msgs, nil
}

// OpponentConnected reads the opponent's connected flag for key
func (s *Store) OpponentConnected(ctx context.Context, key string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	var connected bool
	err := s.pool.QueryRow(ctx,
		`SELECT opp.connected
		 FROM player_key pk
		 JOIN player_key opp ON opp.key = pk.opponent_key
		 WHERE pk.key = $1`, key,
	).Scan(&connected)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("no opponent for player key %s", key)
		}
		return false, fmt.Errorf("fetching opponent status for key %s: %w", key, err)
	}
	return connected, nil
}
