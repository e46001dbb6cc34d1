package redis

import (
	"context"
	"strings"
	"time"
)

const activeSessionsKey = "sessions:active"

func timerKey(code string) string { return "session:" + code + ":timer" }

// TimerCode extracts the session code from an expired timer key.
func TimerCode(key string) (string, bool) {
	if !strings.HasPrefix(key, "session:") || !strings.HasSuffix(key, ":timer") {
		return "", false
	}
	code := strings.TrimSuffix(strings.TrimPrefix(key, "session:"), ":timer")
	if code == "" || strings.Contains(code, ":") {
		return "", false
	}
	return code, true
}

// timerGracePeriod lets the key outlive the displayed deadline slightly so
// the expiry event never lands before the phase has actually run out.
const timerGracePeriod = 500 * time.Millisecond

// SetTimer creates a timer key whose expiry marks the end of the phase.
func (c *Client) SetTimer(ctx context.Context, code string, deadline time.Time) error {
	ttl := time.Until(deadline) + timerGracePeriod
	if ttl <= 0 {
		ttl = timerGracePeriod
	}
	return c.rdb.Set(ctx, timerKey(code), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the timer for a session.
func (c *Client) ClearTimer(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, timerKey(code)).Err()
}

// MarkActive adds a session to the set the poller scans.
func (c *Client) MarkActive(ctx context.Context, code string) error {
	return c.rdb.SAdd(ctx, activeSessionsKey, code).Err()
}

// MarkIdle drops a session from the poller's set.
func (c *Client) MarkIdle(ctx context.Context, code string) error {
	return c.rdb.SRem(ctx, activeSessionsKey, code).Err()
}

// ActiveSessions lists sessions that are mid-game.
func (c *Client) ActiveSessions(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, activeSessionsKey).Result()
}
