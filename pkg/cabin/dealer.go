package cabin

import (
	"math/rand"
	"strings"
)

// DefaultWeapons fill the weapon pool when players suggest too few.
var DefaultWeapons = []string{
	"Candlestick",
	"Fire Poker",
	"Rope",
	"Poisoned Cocoa",
	"Ice Pick",
	"Snow Shovel",
}

// MinWeaponPool is the smallest weapon pool a game starts voting with.
const MinWeaponPool = 6

// DefaultRumors are dealt when nobody wrote a rumor.
var DefaultRumors = []string{
	"Someone was seen sneaking out to the woodshed after midnight.",
	"The victim argued with a guest about money before dinner.",
}

// FillerPrompts replace missing suspect descriptions in the sketch round.
var FillerPrompts = []string{
	"A tall figure in a snow-dusted parka, face hidden by a scarf.",
	"Someone in fuzzy slippers holding a mug that is definitely not cocoa.",
}

// GenericDisclosure is sent to the sketch winner when nobody can be cleared.
const GenericDisclosure = "The forensics team found nothing conclusive this time."

// Dealer makes every random choice in a game. A nil source falls back to
// the global math/rand generator.
type Dealer struct {
	rng *rand.Rand
}

// NewDealer returns a Dealer using the global random source.
func NewDealer() *Dealer {
	return &Dealer{}
}

// NewSeededDealer returns a deterministic Dealer for tests and replays.
func NewSeededDealer(seed int64) *Dealer {
	return &Dealer{rng: rand.New(rand.NewSource(seed))}
}

func (d *Dealer) intn(n int) int {
	if d != nil && d.rng != nil {
		return d.rng.Intn(n)
	}
	return rand.Intn(n)
}

func (d *Dealer) shuffle(n int, swap func(i, j int)) {
	if d != nil && d.rng != nil {
		d.rng.Shuffle(n, swap)
		return
	}
	rand.Shuffle(n, swap)
}

// PickScenario draws a scenario from the deck.
func (d *Dealer) PickScenario(deck []Scenario) Scenario {
	if len(deck) == 0 {
		deck = DefaultScenarios
	}
	return deck[d.intn(len(deck))]
}

// PickMurderer selects the killer uniformly from the roster ids.
func (d *Dealer) PickMurderer(roster []string) string {
	if len(roster) == 0 {
		return ""
	}
	return roster[d.intn(len(roster))]
}

// PickWeapon selects the murder weapon uniformly from the pool.
func (d *Dealer) PickWeapon(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[d.intn(len(pool))]
}

// BuildWeaponPool merges player suggestions (trimmed, first spelling wins,
// case-insensitive dedup) with defaults until the pool reaches
// MinWeaponPool. The result is never empty.
func BuildWeaponPool(suggestions []string) []string {
	seen := make(map[string]bool)
	var pool []string
	add := func(w string) {
		w = strings.TrimSpace(w)
		key := strings.ToLower(w)
		if w == "" || seen[key] {
			return
		}
		seen[key] = true
		pool = append(pool, w)
	}
	for _, s := range suggestions {
		add(s)
	}
	for _, w := range DefaultWeapons {
		if len(pool) >= MinWeaponPool {
			break
		}
		add(w)
	}
	return pool
}

// Description is a suspect description submitted in the lobby dossier.
type Description struct {
	PlayerID string
	Text     string
}

// PickSketchPrompts returns exactly two drawing prompts taken from
// descriptions of players other than the murderer, chosen without
// replacement. Missing prompts are backfilled with filler text.
func (d *Dealer) PickSketchPrompts(descriptions []Description, murdererID string) []string {
	var candidates []string
	for _, desc := range descriptions {
		text := strings.TrimSpace(desc.Text)
		if desc.PlayerID == murdererID || text == "" {
			continue
		}
		candidates = append(candidates, text)
	}
	d.shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	prompts := make([]string, 0, 2)
	for i := 0; i < len(candidates) && len(prompts) < 2; i++ {
		prompts = append(prompts, candidates[i])
	}
	for i := 0; len(prompts) < 2; i++ {
		prompts = append(prompts, FillerPrompts[i%len(FillerPrompts)])
	}
	return prompts
}

// AssignEvidenceTargets maps every player to the player whose evidence they
// edit. The roster is shuffled and each player takes the next one in the
// shuffled ring, so nobody edits their own file when there are two or more
// players.
func (d *Dealer) AssignEvidenceTargets(roster []string) map[string]string {
	ring := make([]string, len(roster))
	copy(ring, roster)
	d.shuffle(len(ring), func(i, j int) { ring[i], ring[j] = ring[j], ring[i] })

	targets := make(map[string]string, len(ring))
	for i, id := range ring {
		targets[id] = ring[(i+1)%len(ring)]
	}
	return targets
}

// DealRumors gives every player exactly two cards sampled with replacement
// from the gathered rumors, or from DefaultRumors when none were written.
func (d *Dealer) DealRumors(roster []string, rumors []string) map[string][2]string {
	var deck []string
	for _, r := range rumors {
		if r = strings.TrimSpace(r); r != "" {
			deck = append(deck, r)
		}
	}
	if len(deck) == 0 {
		deck = DefaultRumors
	}
	hands := make(map[string][2]string, len(roster))
	for _, id := range roster {
		hands[id] = [2]string{deck[d.intn(len(deck))], deck[d.intn(len(deck))]}
	}
	return hands
}

// PickCleared chooses a player who is neither the murderer nor the sketch
// winner. ok is false when no such player exists.
func (d *Dealer) PickCleared(roster []string, murdererID, winnerID string) (string, bool) {
	var pool []string
	for _, id := range roster {
		if id != murdererID && id != winnerID {
			pool = append(pool, id)
		}
	}
	if len(pool) == 0 {
		return "", false
	}
	return pool[d.intn(len(pool))], true
}
