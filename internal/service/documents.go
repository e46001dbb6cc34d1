package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/internal/repository"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// sessionDocs wraps the document store with typed session and player
// accessors.
type sessionDocs struct {
	store repository.DocumentStore
}

func (d sessionDocs) session(ctx context.Context, code string) (*model.Session, error) {
	raw, err := d.store.Get(ctx, model.SessionPath(code))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if raw == nil {
		return nil, ErrSessionNotFound
	}
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", code, err)
	}
	return &s, nil
}

func (d sessionDocs) updateSession(ctx context.Context, code string, fields map[string]any) error {
	if err := d.store.Update(ctx, model.SessionPath(code), fields); err != nil {
		return fmt.Errorf("update session %s: %w", code, err)
	}
	return nil
}

// player loads a player record. A roster member whose record is missing
// gets a fresh default record so aggregation never blocks on it.
func (d sessionDocs) player(ctx context.Context, code string, entry model.RosterEntry) (*model.PlayerRecord, error) {
	raw, err := d.store.Get(ctx, model.PlayerPath(code, entry.ID))
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", entry.ID, err)
	}
	if raw == nil {
		return model.NewPlayerRecord(code, entry.ID, entry.DisplayName), nil
	}
	p := model.NewPlayerRecord(code, entry.ID, entry.DisplayName)
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", entry.ID, err)
	}
	if p.Votes == nil {
		p.Votes = map[cabin.Phase]cabin.Ballot{}
	}
	if p.Done == nil {
		p.Done = map[cabin.Phase]bool{}
	}
	return p, nil
}

// players reads every roster member's record in roster order.
func (d sessionDocs) players(ctx context.Context, s *model.Session) ([]*model.PlayerRecord, error) {
	out := make([]*model.PlayerRecord, 0, len(s.Roster))
	for _, entry := range s.Roster {
		p, err := d.player(ctx, s.Code, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (d sessionDocs) savePlayer(ctx context.Context, p *model.PlayerRecord) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", p.ID, err)
	}
	if err := d.store.Set(ctx, model.PlayerPath(p.SessionCode, p.ID), raw); err != nil {
		return fmt.Errorf("save player %s: %w", p.ID, err)
	}
	return nil
}

// createPlayer writes p unless a record already exists at its path.
func (d sessionDocs) createPlayer(ctx context.Context, p *model.PlayerRecord) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", p.ID, err)
	}
	if _, err := d.store.Create(ctx, model.PlayerPath(p.SessionCode, p.ID), raw); err != nil {
		return fmt.Errorf("create player %s: %w", p.ID, err)
	}
	return nil
}

// updatePlayer merges fields into a player record, creating the record if
// it went missing.
func (d sessionDocs) updatePlayer(ctx context.Context, p *model.PlayerRecord, fields map[string]any) error {
	err := d.store.Update(ctx, model.PlayerPath(p.SessionCode, p.ID), fields)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return d.savePlayer(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("update player %s: %w", p.ID, err)
	}
	return nil
}
