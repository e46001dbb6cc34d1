//go:build integration

package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/dirty-laundry/internal/testutil"
)

var testRDB *goredis.Client

func setup(t *testing.T) *Client {
	t.Helper()
	if testRDB == nil {
		testRDB = testutil.SetupRedis(t)
	}
	testutil.CleanupRedis(t, testRDB)
	return NewClientFromPool(testRDB)
}

func TestSessionDocumentAgainstRedis(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	if err := c.Set(ctx, "sessions/INTG", json.RawMessage(`{"code":"INTG","roster":[]}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Append(ctx, "sessions/INTG", "roster", map[string]string{"id": "u1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	doc, err := c.Get(ctx, "sessions/INTG")
	if err != nil || doc == nil {
		t.Fatalf("get: %v", err)
	}
	var s struct {
		Roster []map[string]string `json:"roster"`
	}
	json.Unmarshal(doc, &s)
	if len(s.Roster) != 1 {
		t.Fatalf("roster = %v", s.Roster)
	}
}

func TestTimerExpiryEvent(t *testing.T) {
	c := setup(t)
	ctx := context.Background()
	if err := c.EnableExpiryEvents(ctx); err != nil {
		t.Fatalf("enable expiry events: %v", err)
	}

	pubsub := c.Underlying().PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("psubscribe: %v", err)
	}

	if err := c.SetTimer(ctx, "INTG", time.Now()); err != nil {
		t.Fatalf("set timer: %v", err)
	}

	select {
	case msg := <-pubsub.Channel():
		code, ok := TimerCode(msg.Payload)
		if !ok || code != "INTG" {
			t.Fatalf("unexpected expired key %q", msg.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timer never expired")
	}
}
