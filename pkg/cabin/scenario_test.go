package cabin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarios(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.yaml")
	deck := `scenarios:
  - id: lighthouse
    title: Lights Out
    victim: The Keeper
    intro_template: "They found {{0}} on the stairs."
    questions:
      - id: object
        text: Name something rusty.
      - id: alibi
        text: Where were you at high tide?
`
	require.NoError(t, os.WriteFile(path, []byte(deck), 0o644))

	got, err := LoadScenarios(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lighthouse", got[0].ID)
	assert.Equal(t, "They found an anchor on the stairs. They claimed: the pier.",
		got[0].Statement(map[string]string{"object": "an anchor", "alibi": "the pier"}))
}

func TestLoadScenariosRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  - id: x\n"), 0o644))

	_, err := LoadScenarios(path)
	assert.Error(t, err)

	_, err = LoadScenarios(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
