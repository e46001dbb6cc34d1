package cabin

// Ballot is one player's votes within a single phase. Each field is
// write-once.
type Ballot struct {
	Suspect string `json:"suspect,omitempty"`
	Weapon  string `json:"weapon,omitempty"`
	Sketch  string `json:"sketch,omitempty"`
}

// VoteField names a field of a Ballot.
type VoteField string

const (
	FieldSuspect VoteField = "suspect"
	FieldWeapon  VoteField = "weapon"
	FieldSketch  VoteField = "sketch"
)

// Get returns the value recorded for field.
func (b Ballot) Get(field VoteField) string {
	switch field {
	case FieldSuspect:
		return b.Suspect
	case FieldWeapon:
		return b.Weapon
	case FieldSketch:
		return b.Sketch
	}
	return ""
}

// With returns a copy of b with field set to target.
func (b Ballot) With(field VoteField, target string) Ballot {
	switch field {
	case FieldSuspect:
		b.Suspect = target
	case FieldWeapon:
		b.Weapon = target
	case FieldSketch:
		b.Sketch = target
	}
	return b
}

// VoteFields lists the ballot fields a phase collects.
func VoteFields(p Phase) []VoteField {
	switch p {
	case PhaseSuspectVote:
		return []VoteField{FieldSuspect}
	case PhaseWeaponVote:
		return []VoteField{FieldWeapon}
	case PhaseSketchVote:
		return []VoteField{FieldSketch}
	case PhaseFinalVote:
		return []VoteField{FieldSuspect, FieldWeapon}
	}
	return nil
}

// Complete reports whether b holds every field the phase collects.
func (b Ballot) Complete(p Phase) bool {
	fields := VoteFields(p)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if b.Get(f) == "" {
			return false
		}
	}
	return true
}

// RoundTally counts how the first round's guesses landed.
type RoundTally struct {
	Perfect     int `json:"perfect"`
	SuspectOnly int `json:"suspectOnly"`
	WeaponOnly  int `json:"weaponOnly"`
	Neither     int `json:"neither"`
}

// TallyRound classifies every player's suspect/weapon guess against the
// truth. A player who did not vote lands in Neither.
func TallyRound(guesses []Ballot, murdererID, weapon string) RoundTally {
	var t RoundTally
	for _, g := range guesses {
		suspectHit := g.Suspect != "" && g.Suspect == murdererID
		weaponHit := g.Weapon != "" && g.Weapon == weapon
		switch {
		case suspectHit && weaponHit:
			t.Perfect++
		case suspectHit:
			t.SuspectOnly++
		case weaponHit:
			t.WeaponOnly++
		default:
			t.Neither++
		}
	}
	return t
}

// Count is one choice and the votes it received.
type Count struct {
	Choice string `json:"choice"`
	Votes  int    `json:"votes"`
}

// Plurality counts non-empty votes in the order given and returns the
// choice with the most votes. Ties go to the choice seen first. Counts are
// returned in first-seen order.
func Plurality(votes []string) (string, []Count) {
	index := make(map[string]int)
	var counts []Count
	for _, v := range votes {
		if v == "" {
			continue
		}
		i, ok := index[v]
		if !ok {
			i = len(counts)
			index[v] = i
			counts = append(counts, Count{Choice: v})
		}
		counts[i].Votes++
	}

	winner, best := "", 0
	for _, c := range counts {
		if c.Votes > best {
			winner, best = c.Choice, c.Votes
		}
	}
	return winner, counts
}

// FinalResult is the outcome of the final accusation.
type FinalResult struct {
	SuspectPlurality string  `json:"suspectPlurality"`
	WeaponPlurality  string  `json:"weaponPlurality"`
	SuspectCounts    []Count `json:"suspectCounts"`
	WeaponCounts     []Count `json:"weaponCounts"`
	Caught           bool    `json:"caught"`
	MurdererID       string  `json:"murdererId"`
	ChosenWeapon     string  `json:"chosenWeapon"`
}

// TallyFinal computes the plurality accusation. The murderer is caught only
// when both the suspect and the weapon pluralities are right.
func TallyFinal(ballots []Ballot, murdererID, weapon string) FinalResult {
	suspects := make([]string, 0, len(ballots))
	weapons := make([]string, 0, len(ballots))
	for _, b := range ballots {
		suspects = append(suspects, b.Suspect)
		weapons = append(weapons, b.Weapon)
	}
	r := FinalResult{MurdererID: murdererID, ChosenWeapon: weapon}
	r.SuspectPlurality, r.SuspectCounts = Plurality(suspects)
	r.WeaponPlurality, r.WeaponCounts = Plurality(weapons)
	r.Caught = r.SuspectPlurality != "" &&
		r.SuspectPlurality == murdererID &&
		r.WeaponPlurality == weapon
	return r
}

// SketchWinner returns the artist with the most sketch votes, or "" when
// nobody voted.
func SketchWinner(votes []string) (string, []Count) {
	return Plurality(votes)
}
