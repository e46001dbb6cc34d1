package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/dirty-laundry/internal/repository"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientFromPool(rdb), mr
}

func TestDocumentRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	missing, err := c.Get(ctx, "sessions/NOPE")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, c.Set(ctx, "sessions/ABCD", json.RawMessage(`{"code":"ABCD","phase":"lobby"}`)))
	require.NoError(t, c.Update(ctx, "sessions/ABCD", map[string]any{"phase": "brainstorm"}))

	doc, err := c.Get(ctx, "sessions/ABCD")
	require.NoError(t, err)
	var s struct {
		Code  string `json:"code"`
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(doc, &s))
	assert.Equal(t, "ABCD", s.Code)
	assert.Equal(t, "brainstorm", s.Phase)
}

func TestDocumentCreateIsExclusive(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.Create(ctx, "sessions/WXYZ", json.RawMessage(`{"code":"WXYZ"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Create(ctx, "sessions/WXYZ", json.RawMessage(`{"code":"other"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentUpdateMissing(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.Update(context.Background(), "players/ABCD_x", map[string]any{"displayName": "x"})
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)
}

func TestDocumentAppend(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	path := "players/ABCD_u1"
	require.NoError(t, c.Set(ctx, path, json.RawMessage(`{"inbox":[]}`)))

	require.NoError(t, c.Append(ctx, path, "inbox", map[string]string{"text": "one"}))
	require.NoError(t, c.Append(ctx, path, "inbox", map[string]string{"text": "one"}, map[string]string{"text": "two"}))

	doc, err := c.Get(ctx, path)
	require.NoError(t, err)
	var p struct {
		Inbox []struct {
			Text string `json:"text"`
		} `json:"inbox"`
	}
	require.NoError(t, json.Unmarshal(doc, &p))
	require.Len(t, p.Inbox, 3)
	assert.Equal(t, "one", p.Inbox[0].Text)
	assert.Equal(t, "one", p.Inbox[1].Text)
	assert.Equal(t, "two", p.Inbox[2].Text)
}

func TestDocumentAppendUniqueConcurrent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	path := "sessions/ABCD"
	require.NoError(t, c.Set(ctx, path, json.RawMessage(`{"code":"ABCD","roster":[]}`)))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.AppendUnique(ctx, path, "roster", "id", map[string]string{"id": "u1", "displayName": "Ann"})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, added)

	ok, err := c.AppendUnique(ctx, path, "roster", "id", map[string]string{"id": "u2", "displayName": "Ann"})
	require.NoError(t, err)
	assert.True(t, ok)

	doc, err := c.Get(ctx, path)
	require.NoError(t, err)
	var s struct {
		Roster []map[string]string `json:"roster"`
	}
	require.NoError(t, json.Unmarshal(doc, &s))
	require.Len(t, s.Roster, 2)
	assert.Equal(t, "u1", s.Roster[0]["id"])
	assert.Equal(t, "u2", s.Roster[1]["id"])
}

func TestDocumentConcurrentAppends(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	path := "players/ABCD_u2"
	require.NoError(t, c.Set(ctx, path, json.RawMessage(`{"inbox":[]}`)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Append(ctx, path, "inbox", map[string]int{"n": i}))
		}(i)
	}
	wg.Wait()

	doc, err := c.Get(ctx, path)
	require.NoError(t, err)
	var p struct {
		Inbox []map[string]int `json:"inbox"`
	}
	require.NoError(t, json.Unmarshal(doc, &p))
	assert.Len(t, p.Inbox, 8)
}

func TestDocumentSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	stop, err := c.Subscribe(ctx, "sessions/ABCD", func(doc json.RawMessage) {
		got <- string(doc)
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, c.Set(ctx, "sessions/ABCD", json.RawMessage(`{"phase":"lobby"}`)))

	select {
	case doc := <-got:
		assert.JSONEq(t, `{"phase":"lobby"}`, doc)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestClockActiveSet(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.MarkActive(ctx, "ABCD"))
	require.NoError(t, c.MarkActive(ctx, "WXYZ"))
	require.NoError(t, c.MarkIdle(ctx, "ABCD"))

	codes, err := c.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"WXYZ"}, codes)

	require.NoError(t, c.SetTimer(ctx, "WXYZ", time.Now().Add(90*time.Second)))
	assert.True(t, mr.Exists("session:WXYZ:timer"))
	assert.Greater(t, mr.TTL("session:WXYZ:timer"), 89*time.Second)

	require.NoError(t, c.ClearTimer(ctx, "WXYZ"))
	assert.False(t, mr.Exists("session:WXYZ:timer"))
}

func TestTimerCode(t *testing.T) {
	code, ok := TimerCode("session:ABCD:timer")
	assert.True(t, ok)
	assert.Equal(t, "ABCD", code)

	for _, key := range []string{"doc:sessions/ABCD", "session::timer", "game:1:timer", "session:a:b:timer"} {
		_, ok := TimerCode(key)
		assert.False(t, ok, key)
	}
}
