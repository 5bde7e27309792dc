package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"igo/pkg/logger"
)

const (
	channelGameStatus        = "game_status_"
	channelChat              = "chat_"
	channelOpponentConnected = "opponent_connected_"

	reconnectBackoff = time.Second
)

// channelsForKey returns the three notification channels of a player key
func channelsForKey(key string) [3]string {
	return [3]string{
		channelGameStatus + key,
		channelChat + key,
		channelOpponentConnected + key,
	}
}

// parseChannel splits a channel name into its update kind and player key
func parseChannel(name string) (UpdateKind, string, bool) {
	switch {
	case strings.HasPrefix(name, channelOpponentConnected):
		return KindOpponentConnected, name[len(channelOpponentConnected):], true
	case strings.HasPrefix(name, channelGameStatus):
		return KindGameStatus, name[len(channelGameStatus):], true
	case strings.HasPrefix(name, channelChat):
		return KindChat, name[len(channelChat):], true
	default:
		return 0, "", false
	}
}

type listenCmd struct {
	listen   bool
	channels [3]string
	done     chan struct{}
}

// listener owns the dedicated LISTEN connection. LISTEN binds to a
// connection, so this connection is never shared with the request pool.
// All channel changes are funneled through cmds and executed by the Run
// loop, which also converts notifications into queue updates.
type listener struct {
	dsn   string
	queue *UpdateQueue
	log   *logger.ColoredLogger
	cmds  chan listenCmd

	mu       sync.Mutex
	channels map[string]bool // desired LISTEN set, replayed on reconnect
}

func newListener(dsn string, queue *UpdateQueue, log *logger.ColoredLogger) *listener {
	return &listener{
		dsn:      dsn,
		queue:    queue,
		log:      log,
		cmds:     make(chan listenCmd, 128),
		channels: make(map[string]bool),
	}
}

// listen registers the channels for key and blocks until LISTEN has been
// executed, so that a notification fired immediately afterwards is not lost.
func (l *listener) listen(ctx context.Context, key string) error {
	chans := channelsForKey(key)

	l.mu.Lock()
	for _, ch := range chans {
		l.channels[ch] = true
	}
	l.mu.Unlock()

	cmd := listenCmd{listen: true, channels: chans, done: make(chan struct{})}
	select {
	case l.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unlisten removes the channels for key. A notification may still arrive
// between this call and the UNLISTEN taking effect; the consumer tolerates
// unknown keys.
func (l *listener) unlisten(key string) {
	chans := channelsForKey(key)

	l.mu.Lock()
	for _, ch := range chans {
		delete(l.channels, ch)
	}
	l.mu.Unlock()

	cmd := listenCmd{listen: false, channels: chans, done: make(chan struct{})}
	select {
	case l.cmds <- cmd:
	default:
		// Run loop is gone or saturated; the desired set is already
		// updated and will be replayed on reconnect
		l.log.Warn("Dropped unlisten command for key %s", key)
	}
}

func (l *listener) applyCmd(ctx context.Context, conn *pgx.Conn, cmd listenCmd) error {
	verb := "LISTEN"
	if !cmd.listen {
		verb = "UNLISTEN"
	}
	for _, ch := range cmd.channels {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`%s %q`, verb, ch)); err != nil {
			return fmt.Errorf("%s %s: %w", verb, ch, err)
		}
	}
	return nil
}

// replay re-executes LISTEN for every desired channel on a fresh connection
func (l *listener) replay(ctx context.Context, conn *pgx.Conn) error {
	l.mu.Lock()
	chans := make([]string, 0, len(l.channels))
	for ch := range l.channels {
		chans = append(chans, ch)
	}
	l.mu.Unlock()
	sort.Strings(chans)

	for _, ch := range chans {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, ch)); err != nil {
			return fmt.Errorf("replaying LISTEN %s: %w", ch, err)
		}
	}
	return nil
}

// run dials the listener connection and processes notifications and channel
// commands until ctx is done, reconnecting with backoff on failure.
// onConnected is invoked after every successful (re)connect with a flag
// saying whether this is a reconnect; onDisconnected is invoked as soon as
// the connection is known to be lost.
func (l *listener) run(
	ctx context.Context,
	onConnected func(ctx context.Context, reconnected bool) error,
	onDisconnected func(),
) error {
	first := true

	for {
		conn, err := pgx.Connect(ctx, l.dsn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Error("Listener connection failed: %v; retrying", err)
			select {
			case <-time.After(reconnectBackoff):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := l.replay(ctx, conn); err != nil {
			l.log.Error("Failed to replay listen set: %v", err)
			conn.Close(context.Background())
			continue
		}

		if onConnected != nil {
			if err := onConnected(ctx, !first); err != nil {
				l.log.Error("Post-connect recovery failed: %v", err)
				conn.Close(context.Background())
				continue
			}
		}
		first = false

		err = l.serve(ctx, conn)
		conn.Close(context.Background())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if onDisconnected != nil {
			onDisconnected()
		}
		l.log.Error("Listener connection lost: %v; reconnecting", err)
	}
}

// serve waits for notifications on conn, interleaving LISTEN/UNLISTEN
// commands by cancelling the wait. Returns when the connection errors or
// ctx is done.
func (l *listener) serve(ctx context.Context, conn *pgx.Conn) error {
	for {
		var pending *listenCmd

		waitCtx, cancel := context.WithCancel(ctx)
		watcherDone := make(chan struct{})
		go func() {
			defer close(watcherDone)
			select {
			case cmd := <-l.cmds:
				pending = &cmd
				cancel()
			case <-waitCtx.Done():
			}
		}()

		notification, err := conn.WaitForNotification(waitCtx)
		cancel()
		<-watcherDone

		if notification != nil {
			kind, key, ok := parseChannel(notification.Channel)
			if !ok {
				l.log.Warn("Notification on unrecognized channel %s", notification.Channel)
			} else {
				l.queue.Put(Update{Kind: kind, Key: key, Payload: notification.Payload})
			}
		}

		if pending != nil {
			if err := l.applyCmd(ctx, conn, *pending); err != nil {
				close(pending.done)
				return err
			}
			close(pending.done)
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if notification != nil {
				continue
			}
			if waitCtx.Err() == context.Canceled && ctx.Err() == nil {
				// woken by a command that raced with shutdown of the
				// watcher; nothing to do
				continue
			}
			return err
		}
	}
}
