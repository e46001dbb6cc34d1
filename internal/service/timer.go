package service

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/dirty-laundry/internal/repository"
	"github.com/freeeve/dirty-laundry/internal/repository/redis"
)

// DefaultPollInterval is how often the poller re-evaluates active sessions.
const DefaultPollInterval = 2 * time.Second

// TimerListener drives the scheduler. It listens for Redis keyspace
// notifications on expired timer keys and also polls every active session,
// which catches expirations when notifications are unavailable and is the
// only trigger with the in-memory store.
type TimerListener struct {
	rdb      *goredis.Client // nil disables the keyspace listener
	clock    repository.PhaseClock
	rounds   *RoundController
	interval time.Duration
}

// NewTimerListener creates a TimerListener. rdb may be nil.
func NewTimerListener(rdb *goredis.Client, clock repository.PhaseClock, rounds *RoundController, interval time.Duration) *TimerListener {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &TimerListener{rdb: rdb, clock: clock, rounds: rounds, interval: interval}
}

// Start begins listening for expired key events and runs the poller until
// ctx is cancelled.
func (t *TimerListener) Start(ctx context.Context) {
	if t.rdb != nil {
		go t.listenKeyspace(ctx)
	}
	t.pollActiveSessions(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollActiveSessions periodically evaluates every session mid-game.
func (t *TimerListener) pollActiveSessions(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Session poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session poller stopped")
			return
		case <-ticker.C:
			t.checkActiveSessions(ctx)
		}
	}
}

// checkActiveSessions evaluates each active session once.
func (t *TimerListener) checkActiveSessions(ctx context.Context) {
	codes, err := t.clock.ActiveSessions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active sessions")
		return
	}
	for _, code := range codes {
		if err := t.rounds.Evaluate(ctx, code); err != nil {
			log.Error().Err(err).Str("sessionCode", code).Msg("Session evaluation failed from poller")
		}
	}
}

// handleExpiry processes an expired key. Only acts on session timer keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	code, ok := redis.TimerCode(key)
	if !ok {
		return
	}
	log.Info().Str("sessionCode", code).Msg("Timer expired, evaluating session")
	if err := t.rounds.Evaluate(ctx, code); err != nil {
		log.Error().Err(err).Str("sessionCode", code).Msg("Session evaluation failed after timer expiry")
	}
}
