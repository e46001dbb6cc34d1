package repository

import (
	"encoding/json"
	"testing"
)

func TestMergeFields(t *testing.T) {
	doc := json.RawMessage(`{"phase":"lobby","roster":[{"id":"a"}]}`)
	got, err := MergeFields(doc, map[string]any{"phase": "brainstorm", "gameNumber": 2})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var out map[string]any
	json.Unmarshal(got, &out)
	if out["phase"] != "brainstorm" {
		t.Errorf("phase = %v", out["phase"])
	}
	if out["gameNumber"].(float64) != 2 {
		t.Errorf("gameNumber = %v", out["gameNumber"])
	}
	if len(out["roster"].([]any)) != 1 {
		t.Errorf("roster should be untouched: %v", out["roster"])
	}
}

func TestAppendValuesKeepsRepeats(t *testing.T) {
	doc := json.RawMessage(`{"inbox":null}`)
	got, err := AppendValues(doc, "inbox", map[string]string{"text": "same rumor"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err = AppendValues(got, "inbox", map[string]string{"text": "same rumor"}, map[string]string{"text": "other"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	var out struct {
		Inbox []map[string]string `json:"inbox"`
	}
	json.Unmarshal(got, &out)
	if len(out.Inbox) != 3 {
		t.Fatalf("expected 3 cards, got %+v", out.Inbox)
	}
	if out.Inbox[0]["text"] != "same rumor" || out.Inbox[1]["text"] != "same rumor" || out.Inbox[2]["text"] != "other" {
		t.Errorf("inbox order = %+v", out.Inbox)
	}
}

func TestAppendUniqueByKey(t *testing.T) {
	doc := json.RawMessage(`{"roster":[{"id":"a","joinedAt":"2026-01-01T00:00:00Z"}]}`)

	got, added, err := AppendUnique(doc, "roster", "id", map[string]string{"id": "a", "joinedAt": "2026-01-02T00:00:00Z"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if added {
		t.Error("entry with an existing id was added")
	}
	if string(got) != string(doc) {
		t.Errorf("document changed: %s", got)
	}

	got, added, err = AppendUnique(doc, "roster", "id", map[string]string{"id": "b"})
	if err != nil || !added {
		t.Fatalf("expected b to be added: %v %v", added, err)
	}
	var out struct {
		Roster []map[string]string `json:"roster"`
	}
	json.Unmarshal(got, &out)
	if len(out.Roster) != 2 || out.Roster[1]["id"] != "b" {
		t.Errorf("roster = %+v", out.Roster)
	}
}

func TestAppendUniqueNeedsKey(t *testing.T) {
	if _, _, err := AppendUnique(json.RawMessage(`{}`), "roster", "id", map[string]string{"name": "x"}); err == nil {
		t.Fatal("expected error for a value without the key")
	}
}

func TestAppendValuesRejectsNonArray(t *testing.T) {
	if _, err := AppendValues(json.RawMessage(`{"phase":"lobby"}`), "phase", "x"); err == nil {
		t.Fatal("expected error appending to a string field")
	}
}
