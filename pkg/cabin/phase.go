// Package cabin holds the pure rules of the Dirty Laundry murder party game:
// the phase sequence, per-phase timing, role and weapon assignment, prompt
// selection, rumor dealing and vote tallies. It has no I/O.
package cabin

import "time"

// Phase is a named stage of a game session.
type Phase string

const (
	PhaseLobby            Phase = "lobby"
	PhaseBrainstorm       Phase = "brainstorm"
	PhaseSuspectVote      Phase = "suspectVote"
	PhaseWeaponVote       Phase = "weaponVote"
	PhaseRoundResults     Phase = "roundResults"
	PhaseDebrief1         Phase = "debrief1"
	PhaseSketchRound      Phase = "sketchRound"
	PhaseSketchVote       Phase = "sketchVote"
	PhaseDebrief2         Phase = "debrief2"
	PhaseRoleReveal       Phase = "roleReveal"
	PhasePuzzleTranscript Phase = "puzzleTranscript"
	PhaseRumorExchange    Phase = "rumorExchange"
	PhaseFinalDebate      Phase = "finalDebate"
	PhaseFinalVote        Phase = "finalVote"
	PhaseReveal           Phase = "reveal"
)

// MinPlayers is the smallest roster that may leave the lobby.
const MinPlayers = 3

// Action is the kind of input a phase expects from every player before it
// counts as complete.
type Action string

const (
	ActionDossier   Action = "dossier"
	ActionWeapon    Action = "weapon"
	ActionVote      Action = "vote"
	ActionReady     Action = "ready"
	ActionSketch    Action = "sketch"
	ActionRumor     Action = "rumor"
	ActionStatement Action = "statement"
	ActionSendCards Action = "sendCards"
	ActionNone      Action = ""
)

type phaseRule struct {
	duration time.Duration
	action   Action
}

var sequence = []Phase{
	PhaseLobby,
	PhaseBrainstorm,
	PhaseSuspectVote,
	PhaseWeaponVote,
	PhaseRoundResults,
	PhaseDebrief1,
	PhaseSketchRound,
	PhaseSketchVote,
	PhaseDebrief2,
	PhaseRoleReveal,
	PhasePuzzleTranscript,
	PhaseRumorExchange,
	PhaseFinalDebate,
	PhaseFinalVote,
	PhaseReveal,
}

var rules = map[Phase]phaseRule{
	PhaseLobby:            {0, ActionDossier},
	PhaseBrainstorm:       {90 * time.Second, ActionWeapon},
	PhaseSuspectVote:      {90 * time.Second, ActionVote},
	PhaseWeaponVote:       {90 * time.Second, ActionVote},
	PhaseRoundResults:     {30 * time.Second, ActionReady},
	PhaseDebrief1:         {240 * time.Second, ActionReady},
	PhaseSketchRound:      {120 * time.Second, ActionSketch},
	PhaseSketchVote:       {60 * time.Second, ActionVote},
	PhaseDebrief2:         {240 * time.Second, ActionReady},
	PhaseRoleReveal:       {60 * time.Second, ActionRumor},
	PhasePuzzleTranscript: {150 * time.Second, ActionStatement},
	PhaseRumorExchange:    {120 * time.Second, ActionSendCards},
	PhaseFinalDebate:      {240 * time.Second, ActionReady},
	PhaseFinalVote:        {90 * time.Second, ActionVote},
	PhaseReveal:           {0, ActionNone},
}

// Phases returns the full phase sequence in play order.
func Phases() []Phase {
	out := make([]Phase, len(sequence))
	copy(out, sequence)
	return out
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := rules[p]
	return ok
}

// Next returns the phase that follows p. Reveal has no successor; only a
// restart leaves it.
func (p Phase) Next() (Phase, bool) {
	for i, ph := range sequence {
		if ph == p && i+1 < len(sequence) {
			return sequence[i+1], true
		}
	}
	return "", false
}

// Duration is the fixed time budget of the phase. Zero means the phase has
// no timer and only leaves on an explicit host action.
func (p Phase) Duration() time.Duration {
	return rules[p].duration
}

// Action is the input every player must provide for the phase to complete.
func (p Phase) Action() Action {
	return rules[p].action
}

// Timed reports whether the phase can expire on its own.
func (p Phase) Timed() bool {
	return rules[p].duration > 0
}

// AutoAdvances reports whether the scheduler may move the session out of p
// without a host request.
func (p Phase) AutoAdvances() bool {
	return p != PhaseLobby && p != PhaseReveal
}

// Discussion reports whether wiretap messages may be posted during p.
func (p Phase) Discussion() bool {
	return p == PhaseDebrief1 || p == PhaseDebrief2 || p == PhaseFinalDebate
}

// Deadline returns the moment a phase started at startedAt expires, or the
// zero time for untimed phases.
func (p Phase) Deadline(startedAt time.Time) time.Time {
	if !p.Timed() {
		return time.Time{}
	}
	return startedAt.Add(p.Duration())
}

// Expired reports whether the phase timer has run out at now.
func (p Phase) Expired(startedAt, now time.Time) bool {
	if !p.Timed() {
		return false
	}
	return !now.Before(startedAt.Add(p.Duration()))
}
