package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/dirty-laundry/internal/logger"
	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/internal/repository"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

var (
	ErrNotInSession       = errors.New("not a player in this session")
	ErrSessionInProgress  = errors.New("session already started")
	ErrInvalidDisplayName = errors.New("display name must be 1-32 characters")
	ErrInvalidPayload     = errors.New("invalid payload for this phase")
	ErrUnsupportedAction  = errors.New("phase does not take this action")
	ErrInvalidVoteField   = errors.New("phase does not vote on that field")
	ErrInvalidVoteTarget  = errors.New("unknown vote target")
	ErrSelfVote           = errors.New("cannot vote for your own sketch")
	ErrInvalidCard        = errors.New("no such rumor card")
	ErrCardAlreadySent    = errors.New("rumor card already sent")
	ErrInvalidRecipient   = errors.New("rumor recipient must be another player")
	ErrNotDiscussion      = errors.New("messages are only allowed during discussion")
	ErrCodeExhausted      = errors.New("could not allocate a free session code")
)

// Input limits, in characters.
const (
	MaxDisplayNameLength = 32
	MaxWeaponLength      = 60
	MaxTextLength        = 500
)

// WeaponPayload is the brainstorm submission.
type WeaponPayload struct {
	Weapon string `json:"weapon"`
}

// SketchPayload carries the storage handle of an uploaded sketch.
type SketchPayload struct {
	Sketch string `json:"sketch"`
}

// RumorPayload is the rumor a player writes during the role reveal.
type RumorPayload struct {
	Rumor string `json:"rumor"`
}

// StatementPayload is a player's edit of their assigned evidence.
type StatementPayload struct {
	Statement string `json:"statement"`
}

// SessionService is the entry point for everything a client can do to a
// session: create and join, phase submissions, votes, rumors, messages and
// the host controls.
type SessionService struct {
	docs        sessionDocs
	rounds      *RoundController
	messages    repository.MessageRepository // optional: archives wiretap messages
	results     repository.ResultRepository  // optional: finished game history
	broadcaster Broadcaster
}

// NewSessionService creates a SessionService on top of the scheduler.
func NewSessionService(store repository.DocumentStore, rounds *RoundController, broadcaster Broadcaster) *SessionService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &SessionService{
		docs:        sessionDocs{store: store},
		rounds:      rounds,
		broadcaster: broadcaster,
	}
}

// SetMessageRepo configures the optional message archive.
func (s *SessionService) SetMessageRepo(repo repository.MessageRepository) {
	s.messages = repo
}

// SetResultRepo configures the optional game result archive.
func (s *SessionService) SetResultRepo(repo repository.ResultRepository) {
	s.results = repo
}

// CreateSession opens a new lobby hosted by hostID. The host drives the
// shared screen and does not join the roster by creating.
func (s *SessionService) CreateSession(ctx context.Context, hostID string) (*model.Session, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		now := s.rounds.now()
		sess := &model.Session{
			Code:           code,
			HostID:         hostID,
			Phase:          cabin.PhaseLobby,
			PhaseStartedAt: now,
			Roster:         []model.RosterEntry{},
			WeaponPool:     []string{},
			Scenario:       s.rounds.dealer.PickScenario(s.rounds.scenarios),
			Messages:       []model.Message{},
			GameNumber:     1,
			CreatedAt:      now,
		}
		raw, err := json.Marshal(sess)
		if err != nil {
			return nil, fmt.Errorf("encode session: %w", err)
		}
		created, err := s.docs.store.Create(ctx, model.SessionPath(code), raw)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		if !created {
			log.Debug().Str("sessionCode", code).Int("attempt", attempt).Msg("Session code taken, retrying")
			continue
		}
		logger.ForSession(code).Info().Str("hostId", hostID).Str("scenario", sess.Scenario.ID).Msg("Session created")
		return sess.Public(), nil
	}
	return nil, ErrCodeExhausted
}

// JoinSession adds userID to the roster. Joining again is a reconnect: it
// returns the existing record and, while still in the lobby, updates the
// display name.
func (s *SessionService) JoinSession(ctx context.Context, code, userID, displayName string) (*model.PlayerRecord, error) {
	name := strings.TrimSpace(displayName)
	if name == "" || utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, ErrInvalidDisplayName
	}

	mu := s.rounds.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.docs.session(ctx, code)
	if err != nil {
		return nil, err
	}

	if entry, ok := sess.RosterEntry(userID); ok {
		p, err := s.docs.player(ctx, code, entry)
		if err != nil {
			return nil, err
		}
		if sess.Phase == cabin.PhaseLobby && entry.DisplayName != name {
			if err := s.rename(ctx, sess, p, name); err != nil {
				return nil, err
			}
		}
		return p.View(), nil
	}

	if sess.Phase != cabin.PhaseLobby {
		return nil, ErrSessionInProgress
	}

	// The roster write is keyed on the player id so a join racing on
	// another server lands once; the loser is answered as a reconnect.
	entry := model.RosterEntry{ID: userID, DisplayName: name, JoinedAt: s.rounds.now()}
	added, err := s.docs.store.AppendUnique(ctx, model.SessionPath(code), "roster", "id", entry)
	if err != nil {
		return nil, fmt.Errorf("append roster: %w", err)
	}
	if !added {
		p, err := s.docs.player(ctx, code, entry)
		if err != nil {
			return nil, err
		}
		return p.View(), nil
	}
	p := model.NewPlayerRecord(code, userID, name)
	if err := s.docs.createPlayer(ctx, p); err != nil {
		return nil, err
	}

	logger.ForSession(code).Info().Str("userId", userID).Str("displayName", name).Msg("Player joined")
	s.broadcaster.BroadcastSessionEvent(code, "player_joined", map[string]any{
		"player_id":    userID,
		"display_name": name,
		"player_count": len(sess.Roster) + 1,
	})
	return p.View(), nil
}

func (s *SessionService) rename(ctx context.Context, sess *model.Session, p *model.PlayerRecord, name string) error {
	roster := make([]model.RosterEntry, len(sess.Roster))
	copy(roster, sess.Roster)
	for i := range roster {
		if roster[i].ID == p.ID {
			roster[i].DisplayName = name
		}
	}
	if err := s.docs.updateSession(ctx, sess.Code, map[string]any{"roster": roster}); err != nil {
		return err
	}
	p.DisplayName = name
	if err := s.docs.updatePlayer(ctx, p, map[string]any{"displayName": name}); err != nil {
		return err
	}
	s.broadcaster.BroadcastSessionEvent(sess.Code, "player_renamed", map[string]any{
		"player_id":    p.ID,
		"display_name": name,
	})
	return nil
}

// member loads the session and the caller's record.
func (s *SessionService) member(ctx context.Context, code, userID string) (*model.Session, *model.PlayerRecord, error) {
	sess, err := s.docs.session(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	entry, ok := sess.RosterEntry(userID)
	if !ok {
		return nil, nil, ErrNotInSession
	}
	p, err := s.docs.player(ctx, code, entry)
	if err != nil {
		return nil, nil, err
	}
	return sess, p, nil
}

// SubmitAction records the caller's input for phase. The payload is decoded
// into the phase's payload type. Submitting again before the phase ends
// replaces the earlier input.
func (s *SessionService) SubmitAction(ctx context.Context, code, userID string, phase cabin.Phase, payload json.RawMessage) (*model.PlayerRecord, error) {
	mu := s.rounds.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	sess, p, err := s.member(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if phase != sess.Phase {
		return nil, ErrStaleSubmission
	}

	fields := map[string]any{}
	switch phase.Action() {
	case cabin.ActionDossier:
		var d model.Dossier
		if err := decodePayload(payload, &d); err != nil {
			return nil, err
		}
		p.Submissions.Dossier = cleanDossier(sess.Scenario, d)
	case cabin.ActionWeapon:
		var in WeaponPayload
		if err := decodePayload(payload, &in); err != nil {
			return nil, err
		}
		weapon := strings.TrimSpace(in.Weapon)
		if weapon == "" || utf8.RuneCountInString(weapon) > MaxWeaponLength {
			return nil, ErrInvalidPayload
		}
		p.Submissions.Weapon = weapon
	case cabin.ActionSketch:
		var in SketchPayload
		if err := decodePayload(payload, &in); err != nil {
			return nil, err
		}
		handle := strings.TrimSpace(in.Sketch)
		if handle == "" {
			return nil, ErrMissingCapability
		}
		p.Submissions.Sketch = handle
	case cabin.ActionRumor:
		var in RumorPayload
		if err := decodePayload(payload, &in); err != nil {
			return nil, err
		}
		rumor, err := cleanText(in.Rumor)
		if err != nil {
			return nil, err
		}
		p.Submissions.Rumor = rumor
	case cabin.ActionStatement:
		var in StatementPayload
		if err := decodePayload(payload, &in); err != nil {
			return nil, err
		}
		statement, err := cleanText(in.Statement)
		if err != nil {
			return nil, err
		}
		if err := s.tamper(ctx, sess, p, statement); err != nil {
			return nil, err
		}
		fields["tamperedEvidence"] = p.TamperedEvidence
	case cabin.ActionReady:
	default:
		return nil, ErrUnsupportedAction
	}

	p.Done[phase] = true
	p.UpdatedAt = s.rounds.now()
	fields["submissions"] = p.Submissions
	fields["done"] = p.Done
	fields["updatedAt"] = p.UpdatedAt
	if err := s.docs.updatePlayer(ctx, p, fields); err != nil {
		return nil, err
	}

	s.afterSubmission(ctx, sess, userID)
	return p.View(), nil
}

// MarkReady completes a phase that only asks players to read something.
func (s *SessionService) MarkReady(ctx context.Context, code, userID string, phase cabin.Phase) (*model.PlayerRecord, error) {
	if phase.Action() != cabin.ActionReady {
		return nil, ErrUnsupportedAction
	}
	return s.SubmitAction(ctx, code, userID, phase, nil)
}

// tamper writes the caller's edited statement over their target's evidence.
func (s *SessionService) tamper(ctx context.Context, sess *model.Session, p *model.PlayerRecord, statement string) error {
	entry, ok := sess.RosterEntry(p.EvidenceTargetID)
	if !ok {
		return fmt.Errorf("%w: no evidence assigned", ErrInvalidPayload)
	}
	target, err := s.docs.player(ctx, sess.Code, entry)
	if err != nil {
		return err
	}
	target.FinalEvidenceText = statement
	if err := s.docs.updatePlayer(ctx, target, map[string]any{"finalEvidenceText": statement}); err != nil {
		return err
	}
	p.Submissions.Statement = statement
	p.TamperedEvidence = statement != strings.TrimSpace(p.EvidenceText)
	return nil
}

// CastVote records one ballot field. Votes are write-once: a second vote
// for the same field leaves the ballot alone and reports accepted=false.
func (s *SessionService) CastVote(ctx context.Context, code, userID string, phase cabin.Phase, field cabin.VoteField, target string) (cabin.Ballot, bool, error) {
	mu := s.rounds.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	sess, p, err := s.member(ctx, code, userID)
	if err != nil {
		return cabin.Ballot{}, false, err
	}
	if phase != sess.Phase {
		return cabin.Ballot{}, false, ErrStaleSubmission
	}

	fields := cabin.VoteFields(phase)
	if len(fields) == 0 {
		return cabin.Ballot{}, false, ErrUnsupportedAction
	}
	if field == "" && len(fields) == 1 {
		field = fields[0]
	}
	if !hasField(fields, field) {
		return cabin.Ballot{}, false, ErrInvalidVoteField
	}
	target = strings.TrimSpace(target)
	if err := validateVoteTarget(sess, userID, field, target); err != nil {
		return cabin.Ballot{}, false, err
	}

	ballot := p.Ballot(phase)
	if ballot.Get(field) != "" {
		return ballot, false, nil
	}
	ballot = ballot.With(field, target)
	p.Votes[phase] = ballot
	if ballot.Complete(phase) {
		p.Done[phase] = true
	}
	p.UpdatedAt = s.rounds.now()
	if err := s.docs.updatePlayer(ctx, p, map[string]any{
		"votes":     p.Votes,
		"done":      p.Done,
		"updatedAt": p.UpdatedAt,
	}); err != nil {
		return cabin.Ballot{}, false, err
	}

	s.afterSubmission(ctx, sess, userID)
	return ballot, true, nil
}

func hasField(fields []cabin.VoteField, field cabin.VoteField) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

func validateVoteTarget(sess *model.Session, userID string, field cabin.VoteField, target string) error {
	switch field {
	case cabin.FieldSuspect:
		if !sess.HasPlayer(target) {
			return ErrInvalidVoteTarget
		}
	case cabin.FieldWeapon:
		if !sess.HasWeapon(target) {
			return ErrInvalidVoteTarget
		}
	case cabin.FieldSketch:
		if target == userID {
			return ErrSelfVote
		}
		for _, sk := range sess.Artifacts.Sketches {
			if sk.ArtistID == target {
				return nil
			}
		}
		return ErrInvalidVoteTarget
	}
	return nil
}

// SendRumor forwards one of the caller's rumor cards. Innocent players must
// pass the card on word for word; the murderer must change it.
func (s *SessionService) SendRumor(ctx context.Context, code, userID string, card int, text, recipientID string) (*model.PlayerRecord, error) {
	mu := s.rounds.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	sess, p, err := s.member(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != cabin.PhaseRumorExchange {
		return nil, ErrStaleSubmission
	}
	if card < 0 || card >= len(p.Hand) {
		return nil, ErrInvalidCard
	}
	if p.Hand[card].Sent {
		return nil, ErrCardAlreadySent
	}
	recipient, ok := sess.RosterEntry(recipientID)
	if !ok || recipientID == userID {
		return nil, ErrInvalidRecipient
	}
	delivered, err := cabin.CheckRumor(p.IsMurderer, p.Hand[card].Text, text)
	if err != nil {
		return nil, err
	}

	now := s.rounds.now()
	in := model.InboxCard{
		Text:       delivered,
		FromID:     p.ID,
		FromName:   p.DisplayName,
		Card:       card,
		ReceivedAt: now,
	}
	if err := s.deliver(ctx, code, recipient, in); err != nil {
		return nil, err
	}

	p.Hand[card].Sent = true
	p.Hand[card].RecipientID = recipientID
	allSent := true
	for _, c := range p.Hand {
		allSent = allSent && c.Sent
	}
	if allSent {
		p.Done[cabin.PhaseRumorExchange] = true
	}
	p.UpdatedAt = now
	if err := s.docs.updatePlayer(ctx, p, map[string]any{
		"hand":      p.Hand,
		"done":      p.Done,
		"updatedAt": p.UpdatedAt,
	}); err != nil {
		return nil, err
	}

	logger.ForSession(code).Debug().Str("from", userID).Str("to", recipientID).Int("card", card).Msg("Rumor delivered")
	s.afterSubmission(ctx, sess, userID)
	return p.View(), nil
}

// deliver appends a card to the recipient's inbox.
func (s *SessionService) deliver(ctx context.Context, code string, recipient model.RosterEntry, card model.InboxCard) error {
	err := s.docs.store.Append(ctx, model.PlayerPath(code, recipient.ID), "inbox", card)
	if !errors.Is(err, repository.ErrDocumentNotFound) {
		if err != nil {
			return fmt.Errorf("deliver rumor: %w", err)
		}
		return nil
	}
	rp := model.NewPlayerRecord(code, recipient.ID, recipient.DisplayName)
	rp.Inbox = append(rp.Inbox, card)
	return s.docs.savePlayer(ctx, rp)
}

// afterSubmission announces progress and lets the scheduler advance the
// session if that was the last input it waited for. Scheduler failures are
// logged; the poller retries them.
func (s *SessionService) afterSubmission(ctx context.Context, sess *model.Session, userID string) {
	players, err := s.docs.players(ctx, sess)
	if err != nil {
		log.Error().Err(err).Str("sessionCode", sess.Code).Msg("Failed to load players after submission")
		return
	}
	submitted := 0
	for _, p := range players {
		if p.Finished(sess.Phase) {
			submitted++
		}
	}
	s.broadcaster.BroadcastSessionEvent(sess.Code, "player_submitted", map[string]any{
		"player_id":       userID,
		"phase":           string(sess.Phase),
		"submitted_count": submitted,
		"total":           len(players),
	})
	if err := s.rounds.evaluateLocked(ctx, sess); err != nil {
		log.Error().Err(err).Str("sessionCode", sess.Code).Msg("Failed to evaluate session after submission")
	}
}

// PostMessage adds a wiretap message to the session during a discussion
// phase.
func (s *SessionService) PostMessage(ctx context.Context, code, userID, text string) (*model.Message, error) {
	mu := s.rounds.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.docs.session(ctx, code)
	if err != nil {
		return nil, err
	}
	entry, ok := sess.RosterEntry(userID)
	if !ok {
		return nil, ErrNotInSession
	}
	if !sess.Phase.Discussion() {
		return nil, ErrNotDiscussion
	}
	content, err := cleanText(text)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:          uuid.NewString(),
		SessionCode: code,
		GameNumber:  sess.GameNumber,
		SenderID:    userID,
		SenderName:  entry.DisplayName,
		Content:     content,
		Phase:       sess.Phase,
		CreatedAt:   s.rounds.now(),
	}
	if err := s.docs.store.Append(ctx, model.SessionPath(code), "messages", msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if s.messages != nil {
		archived := *msg
		if err := s.messages.Create(ctx, &archived); err != nil {
			log.Warn().Err(err).Str("sessionCode", code).Msg("Failed to archive message")
		}
	}

	s.broadcaster.BroadcastSessionEvent(code, "message", msg)
	return msg, nil
}

// ListMessages returns the current game's wiretap messages.
func (s *SessionService) ListMessages(ctx context.Context, code string) ([]model.Message, error) {
	sess, err := s.docs.session(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.Messages == nil {
		return []model.Message{}, nil
	}
	return sess.Messages, nil
}

// MessageHistory returns archived messages from every game of the session.
func (s *SessionService) MessageHistory(ctx context.Context, code string) ([]model.Message, error) {
	if s.messages == nil {
		return []model.Message{}, nil
	}
	return s.messages.ListBySession(ctx, code)
}

// ListResults returns the archived outcomes of the session's finished games.
func (s *SessionService) ListResults(ctx context.Context, code string) ([]model.GameResult, error) {
	if s.results == nil {
		return []model.GameResult{}, nil
	}
	return s.results.ListBySession(ctx, code)
}

// AdvancePhase is the host's manual transition.
func (s *SessionService) AdvancePhase(ctx context.Context, code, userID string, forced bool) (*model.Session, error) {
	return s.rounds.Advance(ctx, code, userID, forced)
}

// RestartSession sends the session back to the lobby for another game.
func (s *SessionService) RestartSession(ctx context.Context, code, userID string) (*model.Session, error) {
	return s.rounds.Restart(ctx, code, userID)
}

// GetSession returns the view of the session every client may see.
func (s *SessionService) GetSession(ctx context.Context, code string) (*model.Session, error) {
	sess, err := s.docs.session(ctx, code)
	if err != nil {
		return nil, err
	}
	return sess.Public(), nil
}

// GetPlayer returns the caller's own record.
func (s *SessionService) GetPlayer(ctx context.Context, code, userID string) (*model.PlayerRecord, error) {
	_, p, err := s.member(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	return p.View(), nil
}

// SubscribeSession calls fn with the public session view after every
// change until the returned cancel func is called or ctx ends.
func (s *SessionService) SubscribeSession(ctx context.Context, code string, fn func(*model.Session)) (func(), error) {
	if _, err := s.docs.session(ctx, code); err != nil {
		return nil, err
	}
	return s.docs.store.Subscribe(ctx, model.SessionPath(code), func(raw json.RawMessage) {
		var sess model.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			log.Warn().Err(err).Str("sessionCode", code).Msg("Dropping undecodable session update")
			return
		}
		fn(sess.Public())
	})
}

// SubscribePlayer calls fn with playerID's own view of their record after
// every change.
func (s *SessionService) SubscribePlayer(ctx context.Context, code, playerID string, fn func(*model.PlayerRecord)) (func(), error) {
	sess, err := s.docs.session(ctx, code)
	if err != nil {
		return nil, err
	}
	if !sess.HasPlayer(playerID) {
		return nil, ErrNotInSession
	}
	return s.docs.store.Subscribe(ctx, model.PlayerPath(code, playerID), func(raw json.RawMessage) {
		var p model.PlayerRecord
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Str("sessionCode", code).Str("playerId", playerID).Msg("Dropping undecodable player update")
			return
		}
		fn(p.View())
	})
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func cleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > MaxTextLength {
		return "", ErrInvalidPayload
	}
	return text, nil
}

// cleanDossier keeps answers to the scenario's own questions only.
func cleanDossier(scn cabin.Scenario, d model.Dossier) *model.Dossier {
	out := &model.Dossier{
		Answers:     make(map[string]string, len(scn.Questions)),
		Description: strings.TrimSpace(d.Description),
		Selfie:      strings.TrimSpace(d.Selfie),
	}
	for _, q := range scn.Questions {
		if a := strings.TrimSpace(d.Answers[q.ID]); a != "" {
			out.Answers[q.ID] = a
		}
	}
	return out
}
