package cabin

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Question is one dossier prompt players answer in the lobby.
type Question struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Scenario frames a game: who died and which dossier questions feed the
// evidence statements. IntroTemplate uses {{0}}, {{1}}... placeholders that
// map to answers by question index.
type Scenario struct {
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	Victim        string     `json:"victim" yaml:"victim"`
	IntroTemplate string     `json:"introTemplate" yaml:"intro_template"`
	Questions     []Question `json:"questions" yaml:"questions"`
}

// AlibiQuestionID is the dossier question whose answer is appended to
// evidence statements when a scenario asks it.
const AlibiQuestionID = "alibi"

// DefaultScenarios is the built-in deck.
var DefaultScenarios = []Scenario{
	{
		ID:            "corporate",
		Title:         "The Boardroom Betrayal",
		Victim:        "The CEO",
		IntroTemplate: "Police found {{0}} near the body. The suspect claimed they were craving {{1}}.",
		Questions: []Question{
			{ID: "object", Text: "Name a heavy office object."},
			{ID: "food", Text: "What fast food are you craving right now?"},
			{ID: AlibiQuestionID, Text: "Where were you 5 minutes ago?"},
		},
	},
	{
		ID:            "wedding",
		Title:         "The Wedding Crasher",
		Victim:        "The Best Man",
		IntroTemplate: "The murder weapon was a {{0}}. Witnesses say the killer smelled like {{1}}.",
		Questions: []Question{
			{ID: "object", Text: "Name a sharp object found at a wedding."},
			{ID: "smell", Text: "What is your favorite weird smell (e.g. gasoline)?"},
			{ID: AlibiQuestionID, Text: "Who were you dancing with?"},
		},
	},
	{
		ID:            "cabin",
		Title:         "Murder at the Cabin",
		Victim:        "The Landlord",
		IntroTemplate: "A {{0}} was found in the snow by the porch. Someone had been humming {{1}} all night.",
		Questions: []Question{
			{ID: "object", Text: "Name something you would pack for a weekend in the woods."},
			{ID: "song", Text: "What song is stuck in your head?"},
			{ID: AlibiQuestionID, Text: "Where were you when the lights went out?"},
		},
	},
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads a YAML deck from path. The file holds a top-level
// `scenarios` list; every entry needs an id, a template and at least one
// question.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenario file: %w", err)
	}
	if len(f.Scenarios) == 0 {
		return nil, errors.New("scenario file has no scenarios")
	}
	for i, s := range f.Scenarios {
		if s.ID == "" || s.IntroTemplate == "" || len(s.Questions) == 0 {
			return nil, fmt.Errorf("scenario %d: id, intro_template and questions are required", i)
		}
	}
	return f.Scenarios, nil
}

// Statement renders the evidence statement about a player from their
// dossier answers. Unanswered placeholders become "something".
func (s Scenario) Statement(answers map[string]string) string {
	out := s.IntroTemplate
	for i, q := range s.Questions {
		val := strings.TrimSpace(answers[q.ID])
		if val == "" {
			val = "something"
		}
		out = strings.ReplaceAll(out, "{{"+strconv.Itoa(i)+"}}", val)
	}
	if alibi := strings.TrimSpace(answers[AlibiQuestionID]); alibi != "" && s.asks(AlibiQuestionID) {
		out += " They claimed: " + alibi + "."
	}
	return out
}

func (s Scenario) asks(id string) bool {
	for _, q := range s.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}
