package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/dirty-laundry/internal/model"
)

// UserRepo keeps users in memory.
type UserRepo struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

// NewUserRepo creates an empty UserRepo.
func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]*model.User)}
}

func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Provider == provider && u.ProviderID == providerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, u := range r.users {
		if u.Provider == provider && u.ProviderID == providerID {
			if displayName != "" {
				u.DisplayName = displayName
			}
			if avatarURL != "" {
				u.AvatarURL = avatarURL
			}
			u.UpdatedAt = now
			cp := *u
			return &cp, nil
		}
	}
	u := &model.User{
		ID:          uuid.NewString(),
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

// MessageRepo keeps wiretap messages in memory.
type MessageRepo struct {
	mu       sync.RWMutex
	messages []model.Message
}

// NewMessageRepo creates an empty MessageRepo.
func NewMessageRepo() *MessageRepo {
	return &MessageRepo{}
}

func (r *MessageRepo) Create(_ context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *MessageRepo) ListBySession(_ context.Context, code string) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Message
	for _, m := range r.messages {
		if m.SessionCode == code {
			out = append(out, m)
		}
	}
	return out, nil
}

// ResultRepo keeps archived game results in memory.
type ResultRepo struct {
	mu      sync.RWMutex
	results []model.GameResult
}

// NewResultRepo creates an empty ResultRepo.
func NewResultRepo() *ResultRepo {
	return &ResultRepo{}
}

func (r *ResultRepo) Save(_ context.Context, result *model.GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	r.results = append(r.results, *result)
	return nil
}

func (r *ResultRepo) ListBySession(_ context.Context, code string) ([]model.GameResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.GameResult
	for _, res := range r.results {
		if res.SessionCode == code {
			out = append(out, res)
		}
	}
	return out, nil
}
