package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/internal/repository/memory"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

type broadcastEvent struct {
	code      string
	eventType string
	data      any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) BroadcastSessionEvent(code, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{code: code, eventType: eventType, data: data})
}

func (b *recordingBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

// testEnv wires the service layer to the in-memory repositories with a
// seeded dealer and a hand-driven clock.
type testEnv struct {
	store    *memory.Store
	clock    *memory.Clock
	results  *memory.ResultRepo
	messages *memory.MessageRepo
	bc       *recordingBroadcaster
	rounds   *RoundController
	svc      *SessionService

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		store:    memory.NewStore(),
		clock:    memory.NewClock(),
		results:  memory.NewResultRepo(),
		messages: memory.NewMessageRepo(),
		bc:       &recordingBroadcaster{},
		now:      time.Date(2026, 1, 9, 20, 0, 0, 0, time.UTC),
	}
	e.rounds = NewRoundController(e.store, e.clock, e.bc, cabin.NewSeededDealer(7), nil)
	e.rounds.now = e.clockNow
	e.rounds.SetResultRepo(e.results)
	e.svc = NewSessionService(e.store, e.rounds, e.bc)
	e.svc.SetMessageRepo(e.messages)
	e.svc.SetResultRepo(e.results)
	return e
}

func (e *testEnv) clockNow() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) tick(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// lobby creates a session hosted by "host" with n joined players p1..pn.
func (e *testEnv) lobby(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	sess, err := e.svc.CreateSession(ctx, "host")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("p%d", i)
		if _, err := e.svc.JoinSession(ctx, sess.Code, id, "Player "+id); err != nil {
			t.Fatalf("JoinSession %s: %v", id, err)
		}
	}
	return sess.Code
}

// session reads the unredacted session document.
func (e *testEnv) session(t *testing.T, code string) *model.Session {
	t.Helper()
	s, err := e.rounds.docs.session(context.Background(), code)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return s
}

// player reads the unredacted player record.
func (e *testEnv) player(t *testing.T, code, id string) *model.PlayerRecord {
	t.Helper()
	s := e.session(t, code)
	entry, ok := s.RosterEntry(id)
	if !ok {
		t.Fatalf("%s not on roster", id)
	}
	p, err := e.rounds.docs.player(context.Background(), code, entry)
	if err != nil {
		t.Fatalf("load player: %v", err)
	}
	return p
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

// completePhase makes every player finish the current phase. Votes go to
// the first roster member and the first weapon in the pool.
func (e *testEnv) completePhase(t *testing.T, code string) {
	t.Helper()
	ctx := context.Background()
	s := e.session(t, code)
	ids := s.PlayerIDs()
	phase := s.Phase

	for i, id := range ids {
		var err error
		switch phase.Action() {
		case cabin.ActionDossier:
			_, err = e.svc.SubmitAction(ctx, code, id, phase, payload(t, model.Dossier{
				Answers:     map[string]string{"object": "lantern " + id, cabin.AlibiQuestionID: "the hot tub"},
				Description: "a person called " + id,
			}))
		case cabin.ActionWeapon:
			_, err = e.svc.SubmitAction(ctx, code, id, phase, payload(t, WeaponPayload{Weapon: "Weapon " + id}))
		case cabin.ActionReady:
			_, err = e.svc.MarkReady(ctx, code, id, phase)
		case cabin.ActionSketch:
			_, err = e.svc.SubmitAction(ctx, code, id, phase, payload(t, SketchPayload{Sketch: "sketches/" + id + ".png"}))
		case cabin.ActionRumor:
			_, err = e.svc.SubmitAction(ctx, code, id, phase, payload(t, RumorPayload{Rumor: "rumor from " + id}))
		case cabin.ActionStatement:
			_, err = e.svc.SubmitAction(ctx, code, id, phase, payload(t, StatementPayload{Statement: "edited by " + id}))
		case cabin.ActionVote:
			for _, field := range cabin.VoteFields(phase) {
				target := ids[0]
				switch field {
				case cabin.FieldWeapon:
					target = s.WeaponPool[0]
				case cabin.FieldSketch:
					target = ids[(i+1)%len(ids)]
				}
				if _, _, err = e.svc.CastVote(ctx, code, id, phase, field, target); err != nil {
					break
				}
			}
		case cabin.ActionSendCards:
			p := e.player(t, code, id)
			recipient := ids[(i+1)%len(ids)]
			for card, c := range p.Hand {
				text := c.Text
				if p.IsMurderer {
					text = "altered: " + c.Text
				}
				if _, err = e.svc.SendRumor(ctx, code, id, card, text, recipient); err != nil {
					break
				}
			}
		default:
			t.Fatalf("phase %s takes no action", phase)
		}
		if err != nil {
			t.Fatalf("%s action for %s: %v", phase, id, err)
		}
	}
}
