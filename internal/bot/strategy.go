package bot

import (
	"fmt"
	"strings"

	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// MoveKind says which endpoint a Move goes to.
type MoveKind string

const (
	MoveSubmit  MoveKind = "submit"
	MoveVote    MoveKind = "vote"
	MoveReady   MoveKind = "ready"
	MoveRumor   MoveKind = "rumor"
	MoveMessage MoveKind = "message"
)

// Move is one request a bot makes during a phase.
type Move struct {
	Kind      MoveKind
	Phase     cabin.Phase
	Payload   any
	Field     cabin.VoteField
	Target    string
	Card      int
	Text      string
	Recipient string
}

// Strategy decides what a bot does in the current phase.
type Strategy interface {
	Name() string
	// Moves returns the requests for sess.Phase given the bot's own record.
	// It returns nothing once the bot has finished the phase.
	Moves(sess *model.Session, me *model.PlayerRecord) []Move
}

// StrategyByName returns the named strategy, defaulting to random.
func StrategyByName(name string) Strategy {
	switch name {
	case "idle":
		return IdleStrategy{}
	default:
		return RandomStrategy{}
	}
}

// IdleStrategy only does what display phases ask and lets every other
// phase run out its timer. Useful for exercising the scheduler.
type IdleStrategy struct{}

func (IdleStrategy) Name() string { return "idle" }

func (IdleStrategy) Moves(sess *model.Session, me *model.PlayerRecord) []Move {
	if sess.Phase.Action() != cabin.ActionReady || me.Finished(sess.Phase) {
		return nil
	}
	return []Move{{Kind: MoveReady, Phase: sess.Phase}}
}

// RandomStrategy plays every phase with random legal input.
type RandomStrategy struct{}

func (RandomStrategy) Name() string { return "random" }

var (
	weaponIdeas = []string{"Candlestick", "Frozen Fish", "Garden Gnome", "Fondue Fork", "Snow Shovel", "Ukulele String", "Cast Iron Pan"}
	answerIdeas = []string{"a flashlight", "pad thai", "wet dog", "a rubber duck", "the kitchen", "Bohemian Rhapsody", "a stapler", "burnt toast"}
	chatter     = []string{"I saw someone sneaking around the porch.", "That alibi sounds made up.", "Why is nobody talking about the snow boots?", "I was in the hot tub the whole time!"}
)

func (s RandomStrategy) Moves(sess *model.Session, me *model.PlayerRecord) []Move {
	phase := sess.Phase
	if me.Finished(phase) {
		return nil
	}

	switch phase.Action() {
	case cabin.ActionDossier:
		return []Move{{Kind: MoveSubmit, Phase: phase, Payload: randomDossier(sess.Scenario, me)}}
	case cabin.ActionWeapon:
		return []Move{{Kind: MoveSubmit, Phase: phase, Payload: map[string]string{"weapon": pick(weaponIdeas)}}}
	case cabin.ActionSketch:
		return []Move{{Kind: MoveSubmit, Phase: phase, Payload: map[string]string{"sketch": "sketches/" + sess.Code + "/" + me.ID + ".png"}}}
	case cabin.ActionRumor:
		return []Move{{Kind: MoveSubmit, Phase: phase, Payload: map[string]string{"rumor": s.rumor(sess, me)}}}
	case cabin.ActionStatement:
		return []Move{{Kind: MoveSubmit, Phase: phase, Payload: map[string]string{"statement": s.statement(me)}}}
	case cabin.ActionSendCards:
		return s.sendCards(sess, me)
	case cabin.ActionVote:
		return s.votes(sess, me)
	case cabin.ActionReady:
		moves := []Move{}
		if phase.Discussion() && botIntn(2) == 0 {
			moves = append(moves, Move{Kind: MoveMessage, Phase: phase, Text: pick(chatter)})
		}
		return append(moves, Move{Kind: MoveReady, Phase: phase})
	}
	return nil
}

func randomDossier(scn cabin.Scenario, me *model.PlayerRecord) model.Dossier {
	d := model.Dossier{
		Answers:     make(map[string]string, len(scn.Questions)),
		Description: me.DisplayName + " wears a " + pick([]string{"red", "green", "plaid", "fuzzy"}) + " sweater",
	}
	for _, q := range scn.Questions {
		d.Answers[q.ID] = pick(answerIdeas)
	}
	return d
}

func (RandomStrategy) rumor(sess *model.Session, me *model.PlayerRecord) string {
	other := pick(others(sess, me.ID))
	return fmt.Sprintf("I heard %s was up at 3am looking for %s.", other.DisplayName, pick(answerIdeas))
}

// statement keeps the assigned evidence as written unless the bot is the
// murderer, who always tampers with it.
func (RandomStrategy) statement(me *model.PlayerRecord) string {
	text := strings.TrimSpace(me.EvidenceText)
	if text == "" {
		text = "Nothing unusual to report."
	}
	if me.IsMurderer {
		return text + " Also, they had " + pick(answerIdeas) + " on their hands."
	}
	return text
}

func (RandomStrategy) sendCards(sess *model.Session, me *model.PlayerRecord) []Move {
	var moves []Move
	targets := others(sess, me.ID)
	if len(targets) == 0 {
		return nil
	}
	for i, card := range me.Hand {
		if card.Sent {
			continue
		}
		text := card.Text
		if me.IsMurderer {
			text = strings.TrimSpace(card.Text) + " Or so they claim."
		}
		moves = append(moves, Move{Kind: MoveRumor, Phase: sess.Phase, Card: i, Text: text, Recipient: pick(targets).ID})
	}
	return moves
}

func (RandomStrategy) votes(sess *model.Session, me *model.PlayerRecord) []Move {
	ballot := me.Ballot(sess.Phase)
	var moves []Move
	for _, field := range cabin.VoteFields(sess.Phase) {
		if ballot.Get(field) != "" {
			continue
		}
		target := voteTarget(sess, me, field)
		if target == "" {
			continue
		}
		moves = append(moves, Move{Kind: MoveVote, Phase: sess.Phase, Field: field, Target: target})
	}
	return moves
}

func voteTarget(sess *model.Session, me *model.PlayerRecord, field cabin.VoteField) string {
	switch field {
	case cabin.FieldSuspect:
		return pick(others(sess, me.ID)).ID
	case cabin.FieldWeapon:
		return pick(sess.WeaponPool)
	case cabin.FieldSketch:
		var artists []string
		for _, sk := range sess.Artifacts.Sketches {
			if sk.ArtistID != me.ID {
				artists = append(artists, sk.ArtistID)
			}
		}
		return pick(artists)
	}
	return ""
}

// others lists every roster entry except id.
func others(sess *model.Session, id string) []model.RosterEntry {
	out := make([]model.RosterEntry, 0, len(sess.Roster))
	for _, e := range sess.Roster {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
