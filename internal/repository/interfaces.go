package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/freeeve/dirty-laundry/internal/model"
)

// ErrDocumentNotFound is returned by partial writes against a missing document.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is the key/value document store that holds live session
// state. Documents are JSON objects addressed by path
// ("sessions/{code}", "players/{code}_{id}").
type DocumentStore interface {
	// Get returns the document at path, or nil when it does not exist.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Set replaces the document at path.
	Set(ctx context.Context, path string, doc json.RawMessage) error
	// Create writes doc only if path is free and reports whether it did.
	Create(ctx context.Context, path string, doc json.RawMessage) (bool, error)
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Append pushes values onto the array field. Repeated values are kept.
	Append(ctx context.Context, path, field string, values ...any) error
	// AppendUnique pushes value onto the array field unless an element
	// with the same key property is already there, checked atomically with
	// the write. It reports whether value was added.
	AppendUnique(ctx context.Context, path, field, key string, value any) (bool, error)
	// Subscribe calls fn with the full document after every committed write
	// until the returned cancel func is called or ctx ends. Delivery is
	// at-least-once with no ordering guarantee across writers.
	Subscribe(ctx context.Context, path string, fn func(json.RawMessage)) (func(), error)
}

// PhaseClock tracks which sessions the scheduler has to watch and arms the
// per-session phase timers.
type PhaseClock interface {
	SetTimer(ctx context.Context, code string, deadline time.Time) error
	ClearTimer(ctx context.Context, code string) error
	MarkActive(ctx context.Context, code string) error
	MarkIdle(ctx context.Context, code string) error
	ActiveSessions(ctx context.Context) ([]string, error)
}

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
}

// MessageRepository archives wiretap messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	ListBySession(ctx context.Context, code string) ([]model.Message, error)
}

// ResultRepository archives finished games.
type ResultRepository interface {
	Save(ctx context.Context, result *model.GameResult) error
	ListBySession(ctx context.Context, code string) ([]model.GameResult, error)
}
