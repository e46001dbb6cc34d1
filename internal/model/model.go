package model

import (
	"time"

	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// Role names shown to players once roles are dealt.
const (
	RoleMurderer = "Unknowing Suspect"
	RoleInnocent = "Innocent"
)

// User represents a signed-in identity. Anonymous users get a provider of
// "anonymous" and a random provider id.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionPath is the store path of a session document.
func SessionPath(code string) string { return "sessions/" + code }

// PlayerPath is the store path of a player's private record.
func PlayerPath(code, playerID string) string { return "players/" + code + "_" + playerID }

// RosterEntry is one joined player, in join order.
type RosterEntry struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Session is the shared document of one game room.
type Session struct {
	Code           string         `json:"code"`
	HostID         string         `json:"hostId"`
	Phase          cabin.Phase    `json:"phase"`
	PhaseStartedAt time.Time      `json:"phaseStartedAt"`
	PhaseDeadline  *time.Time     `json:"phaseDeadline,omitempty"`
	Roster         []RosterEntry  `json:"roster"`
	MurdererID     string         `json:"murdererId,omitempty"`
	WeaponPool     []string       `json:"weaponPool"`
	ChosenWeapon   string         `json:"chosenWeapon,omitempty"`
	Scenario       cabin.Scenario `json:"scenario"`
	Artifacts      Artifacts      `json:"artifacts"`
	Messages       []Message      `json:"messages"`
	GameNumber     int            `json:"gameNumber"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Artifacts holds what the scheduler computes on entering a phase. Each
// field belongs to exactly one phase and stays nil until that phase runs.
type Artifacts struct {
	RoundResults  *cabin.RoundTally  `json:"roundResults,omitempty"`
	SketchPrompts []string           `json:"sketchPrompts,omitempty"`
	Sketches      []SketchEntry      `json:"sketches,omitempty"`
	SketchResult  *SketchResult      `json:"sketchResult,omitempty"`
	Transcript    []TranscriptLine   `json:"transcript,omitempty"`
	FinalResult   *cabin.FinalResult `json:"finalResult,omitempty"`
}

// SketchEntry is one submitted sketch, shown for voting.
type SketchEntry struct {
	ArtistID string `json:"artistId"`
	Handle   string `json:"handle"`
}

// SketchResult records the sketch vote.
type SketchResult struct {
	WinnerID string        `json:"winnerId,omitempty"`
	Counts   []cabin.Count `json:"counts"`
}

// TranscriptLine is one player's evidence statement as it ended up after
// tampering.
type TranscriptLine struct {
	SubjectID   string `json:"subjectId"`
	SubjectName string `json:"subjectName"`
	Text        string `json:"text"`
}

// Message is a wiretap chat line posted during a discussion phase.
type Message struct {
	ID          string      `json:"id"`
	SessionCode string      `json:"sessionCode"`
	GameNumber  int         `json:"gameNumber"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	Content     string      `json:"content"`
	Phase       cabin.Phase `json:"phase"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// HasPlayer reports whether id is on the roster.
func (s *Session) HasPlayer(id string) bool {
	_, ok := s.RosterEntry(id)
	return ok
}

// RosterEntry looks up a roster member by id.
func (s *Session) RosterEntry(id string) (RosterEntry, bool) {
	for _, r := range s.Roster {
		if r.ID == id {
			return r, true
		}
	}
	return RosterEntry{}, false
}

// PlayerIDs returns roster ids in join order.
func (s *Session) PlayerIDs() []string {
	ids := make([]string, len(s.Roster))
	for i, r := range s.Roster {
		ids[i] = r.ID
	}
	return ids
}

// HasWeapon reports whether w is in the weapon pool.
func (s *Session) HasWeapon(w string) bool {
	for _, p := range s.WeaponPool {
		if p == w {
			return true
		}
	}
	return false
}

// Public returns the copy of the session that is safe to send to every
// client. The murderer and the weapon stay hidden until the reveal.
func (s *Session) Public() *Session {
	cp := *s
	if s.Phase != cabin.PhaseReveal {
		cp.MurdererID = ""
		cp.ChosenWeapon = ""
	}
	return &cp
}

// Dossier is what a player fills in while waiting in the lobby.
type Dossier struct {
	Answers     map[string]string `json:"answers"`
	Description string            `json:"description"`
	Selfie      string            `json:"selfie,omitempty"`
}

// Submissions holds a player's phase inputs. Each field is written during
// exactly one phase.
type Submissions struct {
	Dossier   *Dossier `json:"dossier,omitempty"`
	Weapon    string   `json:"weapon,omitempty"`
	Sketch    string   `json:"sketch,omitempty"`
	Rumor     string   `json:"rumor,omitempty"`
	Statement string   `json:"statement,omitempty"`
}

// RumorCard is a rumor dealt to a player for forwarding.
type RumorCard struct {
	Text        string `json:"text"`
	Sent        bool   `json:"sent"`
	RecipientID string `json:"recipientId,omitempty"`
}

// InboxCard is a rumor received from another player.
// Two cards with the same text from the same sender are still two cards.
type InboxCard struct {
	Text       string    `json:"text"`
	FromID     string    `json:"fromId"`
	FromName   string    `json:"fromName"`
	Card       int       `json:"card"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// PlayerRecord is one player's private document.
type PlayerRecord struct {
	ID                string                       `json:"id"`
	SessionCode       string                       `json:"sessionCode"`
	DisplayName       string                       `json:"displayName"`
	IsMurderer        bool                         `json:"isMurderer"`
	RoleName          string                       `json:"roleName,omitempty"`
	RoleRevealed      bool                         `json:"roleRevealed"`
	Submissions       Submissions                  `json:"submissions"`
	Votes             map[cabin.Phase]cabin.Ballot `json:"votes"`
	Done              map[cabin.Phase]bool         `json:"done"`
	Hand              []RumorCard                  `json:"hand"`
	Inbox             []InboxCard                  `json:"inbox"`
	EvidenceTargetID  string                       `json:"evidenceTargetId,omitempty"`
	EvidenceText      string                       `json:"evidenceText,omitempty"`
	FinalEvidenceText string                       `json:"finalEvidenceText,omitempty"`
	TamperedEvidence  bool                         `json:"tamperedEvidence"`
	Disclosure        string                       `json:"disclosure,omitempty"`
	UpdatedAt         time.Time                    `json:"updatedAt"`
}

// NewPlayerRecord returns a record with every game field at its default.
func NewPlayerRecord(code, id, displayName string) *PlayerRecord {
	return &PlayerRecord{
		ID:          id,
		SessionCode: code,
		DisplayName: displayName,
		Votes:       map[cabin.Phase]cabin.Ballot{},
		Done:        map[cabin.Phase]bool{},
		Hand:        []RumorCard{},
		Inbox:       []InboxCard{},
		UpdatedAt:   time.Now().UTC(),
	}
}

// Ballot returns the player's votes for phase.
func (p *PlayerRecord) Ballot(phase cabin.Phase) cabin.Ballot {
	if p.Votes == nil {
		return cabin.Ballot{}
	}
	return p.Votes[phase]
}

// Finished reports whether the player completed phase.
func (p *PlayerRecord) Finished(phase cabin.Phase) bool {
	return p.Done != nil && p.Done[phase]
}

// View returns the copy of the record its owner may see. The murderer
// does not know their role until the role reveal.
func (p *PlayerRecord) View() *PlayerRecord {
	cp := *p
	if !p.RoleRevealed {
		cp.IsMurderer = false
		cp.RoleName = ""
	}
	return &cp
}

// GameResult is the archived outcome of one finished game.
type GameResult struct {
	ID               string           `json:"id"`
	SessionCode      string           `json:"session_code"`
	GameNumber       int              `json:"game_number"`
	ScenarioID       string           `json:"scenario_id"`
	MurdererID       string           `json:"murderer_id"`
	MurdererName     string           `json:"murderer_name"`
	ChosenWeapon     string           `json:"chosen_weapon"`
	SuspectPlurality string           `json:"suspect_plurality"`
	WeaponPlurality  string           `json:"weapon_plurality"`
	Caught           bool             `json:"caught"`
	RoundTally       cabin.RoundTally `json:"round_tally"`
	PlayerCount      int              `json:"player_count"`
	FinishedAt       time.Time        `json:"finished_at"`
}
