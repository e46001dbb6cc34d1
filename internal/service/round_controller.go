package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/dirty-laundry/internal/logger"
	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/internal/repository"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

var (
	ErrNotHost           = errors.New("only the host can do that")
	ErrNotEnoughPlayers  = errors.New("not enough players to start")
	ErrPhaseNotComplete  = errors.New("phase is not complete")
	ErrGameOver          = errors.New("game is over, restart to play again")
	ErrSessionNotFound   = errors.New("session not found")
	ErrStaleSubmission   = errors.New("submission is for a phase that already ended")
	ErrMissingCapability = errors.New("sketch upload is missing")
)

// Reasons a phase ended, as logged and broadcast.
const (
	ReasonAllSubmitted = "all_submitted"
	ReasonTimerExpired = "timer_expired"
	ReasonForced       = "forced"
	ReasonHostStart    = "host_start"
)

// RoundController is the server-side scheduler. It moves sessions through
// the phase sequence, runs each phase's entry action and keeps the phase
// timers armed.
type RoundController struct {
	docs        sessionDocs
	clock       repository.PhaseClock
	results     repository.ResultRepository // optional: archives finished games
	broadcaster Broadcaster
	dealer      *cabin.Dealer
	scenarios   []cabin.Scenario
	now         func() time.Time

	// sessionLocks serializes everything that mutates one session. The
	// poller, the keyspace listener and player submissions all race on the
	// same transition otherwise.
	sessionLocks sync.Map
}

// NewRoundController creates a RoundController. A nil dealer uses the
// global random source; an empty scenario deck uses the built-in one.
func NewRoundController(
	store repository.DocumentStore,
	clock repository.PhaseClock,
	broadcaster Broadcaster,
	dealer *cabin.Dealer,
	scenarios []cabin.Scenario,
) *RoundController {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if dealer == nil {
		dealer = cabin.NewDealer()
	}
	if len(scenarios) == 0 {
		scenarios = cabin.DefaultScenarios
	}
	return &RoundController{
		docs:        sessionDocs{store: store},
		clock:       clock,
		broadcaster: broadcaster,
		dealer:      dealer,
		scenarios:   scenarios,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetResultRepo configures the optional archive for finished games.
func (c *RoundController) SetResultRepo(repo repository.ResultRepository) {
	c.results = repo
}

// sessionLock returns the mutex for a session code.
func (c *RoundController) sessionLock(code string) *sync.Mutex {
	v, _ := c.sessionLocks.LoadOrStore(code, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Evaluate advances the session when every player finished the current
// phase or its timer ran out. It is safe to call at any time from any
// trigger; a session that is not ready is left alone.
func (c *RoundController) Evaluate(ctx context.Context, code string) error {
	mu := c.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	s, err := c.docs.session(ctx, code)
	if errors.Is(err, ErrSessionNotFound) {
		// Gone from the store; stop watching it.
		c.forget(ctx, code)
		return nil
	}
	if err != nil {
		return err
	}
	return c.evaluateLocked(ctx, s)
}

func (c *RoundController) evaluateLocked(ctx context.Context, s *model.Session) error {
	if s.Phase == cabin.PhaseReveal {
		return c.clock.MarkIdle(ctx, s.Code)
	}
	if !s.Phase.AutoAdvances() {
		return nil
	}
	if s.Phase.Expired(s.PhaseStartedAt, c.now()) {
		return c.advanceLocked(ctx, s, nil, ReasonTimerExpired)
	}
	players, err := c.docs.players(ctx, s)
	if err != nil {
		return err
	}
	if !allFinished(s.Phase, players) {
		return nil
	}
	return c.advanceLocked(ctx, s, players, ReasonAllSubmitted)
}

// Advance is the host's manual transition. Leaving the lobby starts the
// game. Elsewhere forced skips the completion check; otherwise the phase
// must be complete.
func (c *RoundController) Advance(ctx context.Context, code, userID string, forced bool) (*model.Session, error) {
	mu := c.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	s, err := c.docs.session(ctx, code)
	if err != nil {
		return nil, err
	}
	if s.HostID != userID {
		return nil, ErrNotHost
	}

	var players []*model.PlayerRecord
	reason := ReasonForced
	switch {
	case s.Phase == cabin.PhaseReveal:
		return nil, ErrGameOver
	case s.Phase == cabin.PhaseLobby:
		if len(s.Roster) < cabin.MinPlayers {
			return nil, ErrNotEnoughPlayers
		}
		reason = ReasonHostStart
	case !forced:
		if s.Phase.Expired(s.PhaseStartedAt, c.now()) {
			reason = ReasonTimerExpired
			break
		}
		players, err = c.docs.players(ctx, s)
		if err != nil {
			return nil, err
		}
		if !allFinished(s.Phase, players) {
			return nil, ErrPhaseNotComplete
		}
		reason = ReasonAllSubmitted
	}

	if err := c.advanceLocked(ctx, s, players, reason); err != nil {
		return nil, err
	}
	return s.Public(), nil
}

// advanceLocked moves s to the next phase. Entry actions write the player
// records before the session document flips phase, so a client that sees
// the new phase can already read its inputs.
func (c *RoundController) advanceLocked(ctx context.Context, s *model.Session, players []*model.PlayerRecord, reason string) error {
	from := s.Phase
	next, ok := from.Next()
	if !ok {
		return ErrGameOver
	}
	if players == nil {
		var err error
		if players, err = c.docs.players(ctx, s); err != nil {
			return err
		}
	}

	if from == cabin.PhaseLobby {
		if err := c.clock.MarkActive(ctx, s.Code); err != nil {
			return fmt.Errorf("mark session active: %w", err)
		}
	}

	fields := map[string]any{}
	if err := c.enter(ctx, s, players, next, fields); err != nil {
		return fmt.Errorf("enter %s: %w", next, err)
	}

	now := c.now()
	s.Phase = next
	s.PhaseStartedAt = now
	s.PhaseDeadline = nil
	if next.Timed() {
		deadline := next.Deadline(now)
		s.PhaseDeadline = &deadline
	}
	fields["phase"] = s.Phase
	fields["phaseStartedAt"] = s.PhaseStartedAt
	fields["phaseDeadline"] = s.PhaseDeadline
	fields["artifacts"] = s.Artifacts
	if err := c.docs.updateSession(ctx, s.Code, fields); err != nil {
		return err
	}

	if s.PhaseDeadline != nil {
		if err := c.clock.SetTimer(ctx, s.Code, *s.PhaseDeadline); err != nil {
			return fmt.Errorf("set timer: %w", err)
		}
	} else if err := c.clock.ClearTimer(ctx, s.Code); err != nil {
		return fmt.Errorf("clear timer: %w", err)
	}

	// The game only ends once the reveal is committed. A failed idle mark
	// leaves the session active and the poller retires it later.
	if next == cabin.PhaseReveal && s.Artifacts.FinalResult != nil {
		if err := c.clock.MarkIdle(ctx, s.Code); err != nil {
			logger.ForSession(s.Code).Warn().Err(err).Msg("Failed to mark revealed session idle")
		}
		c.archive(ctx, s, *s.Artifacts.FinalResult, len(players))
	}

	l := logger.ForSession(s.Code)
	evt := l.Info().
		Str("from", string(from)).
		Str("to", string(next)).
		Str("reason", reason).
		Int("players", len(players))
	if s.PhaseDeadline != nil {
		evt = evt.Time("deadline", *s.PhaseDeadline)
	}
	evt.Msg("Session advanced to next phase")

	data := map[string]any{
		"phase":            string(next),
		"previous":         string(from),
		"reason":           reason,
		"phase_started_at": now.Format(time.RFC3339),
	}
	if s.PhaseDeadline != nil {
		data["deadline"] = s.PhaseDeadline.Format(time.RFC3339)
	}
	c.broadcaster.BroadcastSessionEvent(s.Code, "phase_changed", data)

	if next == cabin.PhaseReveal && s.Artifacts.FinalResult != nil {
		c.broadcaster.BroadcastSessionEvent(s.Code, "game_revealed", map[string]any{
			"caught":        s.Artifacts.FinalResult.Caught,
			"murderer_id":   s.MurdererID,
			"chosen_weapon": s.ChosenWeapon,
		})
	}
	return nil
}

// enter runs the entry action of phase next. Session fields it changes are
// added to fields; player records are written directly.
func (c *RoundController) enter(ctx context.Context, s *model.Session, players []*model.PlayerRecord, next cabin.Phase, fields map[string]any) error {
	switch next {
	case cabin.PhaseSuspectVote:
		return c.dealRoles(ctx, s, players, fields)
	case cabin.PhaseRoundResults:
		guesses := make([]cabin.Ballot, len(players))
		for i, p := range players {
			guesses[i] = cabin.Ballot{
				Suspect: p.Ballot(cabin.PhaseSuspectVote).Suspect,
				Weapon:  p.Ballot(cabin.PhaseWeaponVote).Weapon,
			}
		}
		tally := cabin.TallyRound(guesses, s.MurdererID, s.ChosenWeapon)
		s.Artifacts.RoundResults = &tally
	case cabin.PhaseSketchRound:
		var descs []cabin.Description
		for _, p := range players {
			if d := p.Submissions.Dossier; d != nil {
				descs = append(descs, cabin.Description{PlayerID: p.ID, Text: d.Description})
			}
		}
		s.Artifacts.SketchPrompts = c.dealer.PickSketchPrompts(descs, s.MurdererID)
	case cabin.PhaseSketchVote:
		s.Artifacts.Sketches = nil
		for _, p := range players {
			if p.Submissions.Sketch != "" {
				s.Artifacts.Sketches = append(s.Artifacts.Sketches, model.SketchEntry{
					ArtistID: p.ID,
					Handle:   p.Submissions.Sketch,
				})
			}
		}
	case cabin.PhaseDebrief2:
		return c.discloseToSketchWinner(ctx, s, players)
	case cabin.PhaseRoleReveal:
		for _, p := range players {
			p.RoleRevealed = true
			if err := c.docs.updatePlayer(ctx, p, map[string]any{"roleRevealed": true}); err != nil {
				return err
			}
		}
	case cabin.PhasePuzzleTranscript:
		return c.assignEvidence(ctx, s, players)
	case cabin.PhaseRumorExchange:
		return c.dealRumors(ctx, s, players)
	case cabin.PhaseReveal:
		ballots := make([]cabin.Ballot, len(players))
		for i, p := range players {
			ballots[i] = p.Ballot(cabin.PhaseFinalVote)
		}
		result := cabin.TallyFinal(ballots, s.MurdererID, s.ChosenWeapon)
		s.Artifacts.FinalResult = &result
	}
	return nil
}

// dealRoles builds the weapon pool and secretly picks the murderer and the
// weapon. Both are assigned once per game.
func (c *RoundController) dealRoles(ctx context.Context, s *model.Session, players []*model.PlayerRecord, fields map[string]any) error {
	if s.MurdererID != "" {
		return nil
	}
	suggestions := make([]string, len(players))
	for i, p := range players {
		suggestions[i] = p.Submissions.Weapon
	}
	s.WeaponPool = cabin.BuildWeaponPool(suggestions)
	s.MurdererID = c.dealer.PickMurderer(s.PlayerIDs())
	s.ChosenWeapon = c.dealer.PickWeapon(s.WeaponPool)
	fields["weaponPool"] = s.WeaponPool
	fields["murdererId"] = s.MurdererID
	fields["chosenWeapon"] = s.ChosenWeapon

	for _, p := range players {
		p.IsMurderer = p.ID == s.MurdererID
		p.RoleName = model.RoleInnocent
		if p.IsMurderer {
			p.RoleName = model.RoleMurderer
		}
		if err := c.docs.updatePlayer(ctx, p, map[string]any{
			"isMurderer": p.IsMurderer,
			"roleName":   p.RoleName,
		}); err != nil {
			return err
		}
	}
	return nil
}

// discloseToSketchWinner picks the sketch winner and privately tells them
// about one innocent player.
func (c *RoundController) discloseToSketchWinner(ctx context.Context, s *model.Session, players []*model.PlayerRecord) error {
	votes := make([]string, 0, len(players))
	for _, p := range players {
		votes = append(votes, p.Ballot(cabin.PhaseSketchVote).Sketch)
	}
	winnerID, counts := cabin.SketchWinner(votes)
	s.Artifacts.SketchResult = &model.SketchResult{WinnerID: winnerID, Counts: counts}
	if winnerID == "" {
		return nil
	}

	text := cabin.GenericDisclosure
	if clearedID, ok := c.dealer.PickCleared(s.PlayerIDs(), s.MurdererID, winnerID); ok {
		entry, _ := s.RosterEntry(clearedID)
		text = fmt.Sprintf("Forensics have cleared %s. They could not have done it.", entry.DisplayName)
	}
	for _, p := range players {
		if p.ID != winnerID {
			continue
		}
		p.Disclosure = text
		return c.docs.updatePlayer(ctx, p, map[string]any{"disclosure": text})
	}
	return nil
}

// assignEvidence gives every player someone else's statement to edit.
func (c *RoundController) assignEvidence(ctx context.Context, s *model.Session, players []*model.PlayerRecord) error {
	byID := make(map[string]*model.PlayerRecord, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	targets := c.dealer.AssignEvidenceTargets(s.PlayerIDs())
	for _, p := range players {
		target, ok := byID[targets[p.ID]]
		if !ok {
			continue
		}
		p.EvidenceTargetID = target.ID
		p.EvidenceText = statementFor(s.Scenario, target)
		p.FinalEvidenceText = ""
		if err := c.docs.updatePlayer(ctx, p, map[string]any{
			"evidenceTargetId":  p.EvidenceTargetID,
			"evidenceText":      p.EvidenceText,
			"finalEvidenceText": "",
			"tamperedEvidence":  false,
		}); err != nil {
			return err
		}
	}
	return nil
}

// dealRumors assembles the evidence transcript and deals two rumor cards
// to every player.
func (c *RoundController) dealRumors(ctx context.Context, s *model.Session, players []*model.PlayerRecord) error {
	transcript := make([]model.TranscriptLine, 0, len(players))
	rumors := make([]string, 0, len(players))
	for _, p := range players {
		text := p.FinalEvidenceText
		if text == "" {
			text = statementFor(s.Scenario, p)
		}
		name := p.DisplayName
		if entry, ok := s.RosterEntry(p.ID); ok {
			name = entry.DisplayName
		}
		transcript = append(transcript, model.TranscriptLine{SubjectID: p.ID, SubjectName: name, Text: text})
		rumors = append(rumors, p.Submissions.Rumor)
	}
	s.Artifacts.Transcript = transcript

	hands := c.dealer.DealRumors(s.PlayerIDs(), rumors)
	for _, p := range players {
		cards := hands[p.ID]
		p.Hand = []model.RumorCard{{Text: cards[0]}, {Text: cards[1]}}
		if err := c.docs.updatePlayer(ctx, p, map[string]any{"hand": p.Hand}); err != nil {
			return err
		}
	}
	return nil
}

// archive stores the finished game. Archive failures never block the reveal.
func (c *RoundController) archive(ctx context.Context, s *model.Session, result cabin.FinalResult, playerCount int) {
	if c.results == nil {
		return
	}
	res := &model.GameResult{
		SessionCode:      s.Code,
		GameNumber:       s.GameNumber,
		ScenarioID:       s.Scenario.ID,
		MurdererID:       s.MurdererID,
		ChosenWeapon:     s.ChosenWeapon,
		SuspectPlurality: result.SuspectPlurality,
		WeaponPlurality:  result.WeaponPlurality,
		Caught:           result.Caught,
		PlayerCount:      playerCount,
		FinishedAt:       c.now(),
	}
	if entry, ok := s.RosterEntry(s.MurdererID); ok {
		res.MurdererName = entry.DisplayName
	}
	if s.Artifacts.RoundResults != nil {
		res.RoundTally = *s.Artifacts.RoundResults
	}
	if err := c.results.Save(ctx, res); err != nil {
		log.Error().Err(err).Str("sessionCode", s.Code).Int("gameNumber", s.GameNumber).Msg("Failed to archive game result")
	}
}

// Restart sends the session back to the lobby with a new scenario. Every
// player keeps their seat and name; everything else is reset.
func (c *RoundController) Restart(ctx context.Context, code, userID string) (*model.Session, error) {
	mu := c.sessionLock(code)
	mu.Lock()
	defer mu.Unlock()

	s, err := c.docs.session(ctx, code)
	if err != nil {
		return nil, err
	}
	if s.HostID != userID {
		return nil, ErrNotHost
	}

	for _, entry := range s.Roster {
		if err := c.docs.savePlayer(ctx, model.NewPlayerRecord(code, entry.ID, entry.DisplayName)); err != nil {
			return nil, err
		}
	}

	s.Phase = cabin.PhaseLobby
	s.PhaseStartedAt = c.now()
	s.PhaseDeadline = nil
	s.MurdererID = ""
	s.ChosenWeapon = ""
	s.WeaponPool = []string{}
	s.Artifacts = model.Artifacts{}
	s.Messages = []model.Message{}
	s.Scenario = c.dealer.PickScenario(c.scenarios)
	s.GameNumber++
	if err := c.docs.updateSession(ctx, code, map[string]any{
		"phase":          s.Phase,
		"phaseStartedAt": s.PhaseStartedAt,
		"phaseDeadline":  nil,
		"murdererId":     "",
		"chosenWeapon":   "",
		"weaponPool":     s.WeaponPool,
		"artifacts":      s.Artifacts,
		"messages":       s.Messages,
		"scenario":       s.Scenario,
		"gameNumber":     s.GameNumber,
	}); err != nil {
		return nil, err
	}
	c.forget(ctx, code)

	logger.ForSession(code).Info().Int("gameNumber", s.GameNumber).Str("scenario", s.Scenario.ID).Msg("Session restarted")
	c.broadcaster.BroadcastSessionEvent(code, "session_restarted", map[string]any{
		"game_number": s.GameNumber,
		"scenario_id": s.Scenario.ID,
		"phase":       string(s.Phase),
	})
	return s.Public(), nil
}

// RecoverActiveSessions re-arms the timers of every mid-game session after
// a restart and advances the ones whose phase ran out while we were down.
func (c *RoundController) RecoverActiveSessions(ctx context.Context) error {
	codes, err := c.clock.ActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(codes) == 0 {
		log.Info().Msg("No active sessions to recover")
		return nil
	}
	log.Info().Int("count", len(codes)).Msg("Recovering active sessions after restart")

	for _, code := range codes {
		s, err := c.docs.session(ctx, code)
		if errors.Is(err, ErrSessionNotFound) {
			c.forget(ctx, code)
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("sessionCode", code).Msg("Failed to load session during recovery")
			continue
		}
		if !s.Phase.AutoAdvances() {
			c.forget(ctx, code)
			continue
		}
		if s.PhaseDeadline != nil && c.now().Before(*s.PhaseDeadline) {
			if err := c.clock.SetTimer(ctx, code, *s.PhaseDeadline); err != nil {
				log.Error().Err(err).Str("sessionCode", code).Msg("Failed to restore timer")
			}
		}
		if err := c.Evaluate(ctx, code); err != nil {
			log.Error().Err(err).Str("sessionCode", code).Msg("Failed to evaluate session during recovery")
			continue
		}
		log.Info().Str("sessionCode", code).Str("phase", string(s.Phase)).Msg("Recovered session")
	}
	return nil
}

// forget stops the scheduler from watching a session.
func (c *RoundController) forget(ctx context.Context, code string) {
	if err := c.clock.ClearTimer(ctx, code); err != nil {
		log.Warn().Err(err).Str("sessionCode", code).Msg("Failed to clear timer")
	}
	if err := c.clock.MarkIdle(ctx, code); err != nil {
		log.Warn().Err(err).Str("sessionCode", code).Msg("Failed to mark session idle")
	}
}

// allFinished reports whether every roster member completed phase.
func allFinished(phase cabin.Phase, players []*model.PlayerRecord) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if !p.Finished(phase) {
			return false
		}
	}
	return true
}

// statementFor builds the original evidence statement about p.
func statementFor(scn cabin.Scenario, p *model.PlayerRecord) string {
	var answers map[string]string
	if p.Submissions.Dossier != nil {
		answers = p.Submissions.Dossier.Answers
	}
	return scn.Statement(answers)
}
