package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"igo/pkg/config"
	"igo/pkg/logger"
)

// Runtime owns the set of AI clients this server is running. One goroutine
// per active game; state is persisted so Resume can pick the games back up
// after a restart.
type Runtime struct {
	cfg   config.AIConfig
	store *PolicyStore
	log   *logger.ColoredLogger

	// clients outlive the HTTP requests that start them, so they hang off
	// the runtime's own context rather than the caller's
	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRuntime creates a runtime playing with the configured policy
func NewRuntime(cfg config.AIConfig, store *PolicyStore, log *logger.ColoredLogger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		cfg:        cfg,
		store:      store,
		log:        log,
		rootCtx:    ctx,
		rootCancel: cancel,
		running:    make(map[string]context.CancelFunc),
	}
}

// Start launches a client for playerKey. Starting a key that is already
// running is a no-op, so duplicate trigger requests are harmless.
func (r *Runtime) Start(ctx context.Context, playerKey, aiSecret string) error {
	policy, err := r.policyFor(playerKey)
	if err != nil {
		return err
	}
	return r.launch(playerKey, aiSecret, policy)
}

// Resume restarts a client for every game with persisted state. Games whose
// keys were claimed elsewhere in the meantime fail their join and are
// dropped.
func (r *Runtime) Resume() error {
	keys, err := r.store.Keys()
	if err != nil {
		return fmt.Errorf("listing games to resume: %w", err)
	}
	for _, key := range keys {
		aiSecret, policyName, state, err := r.store.Load(key)
		if err != nil {
			r.log.Error("Could not load state for key %s: %v", key, err)
			continue
		}
		policy, err := DecodePolicy(policyName, state)
		if err != nil {
			r.log.Error("Could not decode %s policy for key %s: %v", policyName, key, err)
			continue
		}
		if err := r.launch(key, aiSecret, policy); err != nil {
			r.log.Error("Could not resume game for key %s: %v", key, err)
		}
	}
	r.log.Info("Resumed %d stored games", len(keys))
	return nil
}

// Shutdown stops every running client and waits for them to exit
func (r *Runtime) Shutdown() {
	r.rootCancel()
	r.wg.Wait()
}

func (r *Runtime) policyFor(playerKey string) (Policy, error) {
	_, name, state, err := r.store.Load(playerKey)
	if errors.Is(err, ErrNoState) {
		return NewPolicy(r.cfg.Policy)
	}
	if err != nil {
		return nil, err
	}
	return DecodePolicy(name, state)
}

func (r *Runtime) launch(playerKey, aiSecret string, policy Policy) error {
	r.mu.Lock()
	if _, ok := r.running[playerKey]; ok {
		r.mu.Unlock()
		r.log.Debug("Client for key %s is already running", playerKey)
		return nil
	}
	clientCtx, cancel := context.WithCancel(r.rootCtx)
	r.running[playerKey] = cancel
	r.mu.Unlock()

	client := NewClient(r.cfg.GameServerURL, playerKey, aiSecret, policy, r.store, r.cfg.ErrorSleepPeriod, r.log)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, playerKey)
			r.mu.Unlock()
			cancel()
		}()
		if err := client.Run(clientCtx); err != nil && clientCtx.Err() == nil {
			r.log.Error("Client for key %s stopped: %v", playerKey, err)
		}
	}()
	return nil
}
