package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

func TestPollerAdvancesExpiredSessions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	expired := e.lobby(t, 3)
	running := e.lobby(t, 3)
	e.forceTo(t, expired, cabin.PhaseBrainstorm)
	e.tick(80 * time.Second)
	e.forceTo(t, running, cabin.PhaseBrainstorm)
	e.tick(10 * time.Second)

	tl := NewTimerListener(nil, e.clock, e.rounds, 0)
	if tl.interval != DefaultPollInterval {
		t.Errorf("interval = %v, want default", tl.interval)
	}
	tl.checkActiveSessions(ctx)

	if got := e.session(t, expired).Phase; got != cabin.PhaseSuspectVote {
		t.Errorf("expired session in %s", got)
	}
	if got := e.session(t, running).Phase; got != cabin.PhaseBrainstorm {
		t.Errorf("running session advanced to %s", got)
	}
}

func TestHandleExpiryIgnoresOtherKeys(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	code := e.lobby(t, 3)
	e.forceTo(t, code, cabin.PhaseBrainstorm)
	e.tick(2 * time.Minute)

	tl := NewTimerListener(nil, e.clock, e.rounds, time.Second)
	tl.handleExpiry(ctx, "doc:sessions/"+code)
	if got := e.session(t, code).Phase; got != cabin.PhaseBrainstorm {
		t.Fatalf("unrelated key advanced the session to %s", got)
	}
	tl.handleExpiry(ctx, "session:"+code+":timer")
	if got := e.session(t, code).Phase; got != cabin.PhaseSuspectVote {
		t.Fatalf("timer key did not advance the session, in %s", got)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	e := newTestEnv(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewTimerListener(rdb, e.clock, e.rounds, 10*time.Millisecond).Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}
