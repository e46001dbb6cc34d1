// Package memory implements the repository interfaces in process memory.
// It backs STORE=memory deployments and the service and handler tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/freeeve/dirty-laundry/internal/repository"
)

type subscriber struct {
	id int
	fn func(json.RawMessage)
}

// Store is an in-memory repository.DocumentStore. Subscribers are called
// synchronously after the write commits, outside the lock.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]json.RawMessage
	subs   map[string][]subscriber
	nextID int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		docs: make(map[string]json.RawMessage),
		subs: make(map[string][]subscriber),
	}
}

// Get returns a copy of the document at path, or nil if missing.
func (s *Store) Get(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, nil
	}
	return clone(doc), nil
}

// Set replaces the document at path.
func (s *Store) Set(_ context.Context, path string, doc json.RawMessage) error {
	s.mu.Lock()
	s.docs[path] = clone(doc)
	subs := s.subscribersLocked(path)
	s.mu.Unlock()
	notify(subs, doc)
	return nil
}

// Create stores doc only when path is free.
func (s *Store) Create(_ context.Context, path string, doc json.RawMessage) (bool, error) {
	s.mu.Lock()
	if _, taken := s.docs[path]; taken {
		s.mu.Unlock()
		return false, nil
	}
	s.docs[path] = clone(doc)
	subs := s.subscribersLocked(path)
	s.mu.Unlock()
	notify(subs, doc)
	return true, nil
}

// Update merges fields into the document at path.
func (s *Store) Update(_ context.Context, path string, fields map[string]any) error {
	return s.mutate(path, func(doc json.RawMessage) (json.RawMessage, error) {
		return repository.MergeFields(doc, fields)
	})
}

// Append pushes values onto an array field of the document at path.
func (s *Store) Append(_ context.Context, path, field string, values ...any) error {
	return s.mutate(path, func(doc json.RawMessage) (json.RawMessage, error) {
		return repository.AppendValues(doc, field, values...)
	})
}

// AppendUnique pushes value unless an element shares its key property.
func (s *Store) AppendUnique(_ context.Context, path, field, key string, value any) (bool, error) {
	var added bool
	err := s.mutate(path, func(doc json.RawMessage) (json.RawMessage, error) {
		next, ok, err := repository.AppendUnique(doc, field, key, value)
		if err != nil || !ok {
			return nil, err
		}
		added = true
		return next, nil
	})
	return added, err
}

// mutate applies fn under the lock. fn returning a nil document leaves the
// stored one untouched and notifies nobody.
func (s *Store) mutate(path string, fn func(json.RawMessage) (json.RawMessage, error)) error {
	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return repository.ErrDocumentNotFound
	}
	next, err := fn(doc)
	if err != nil || next == nil {
		s.mu.Unlock()
		return err
	}
	s.docs[path] = next
	subs := s.subscribersLocked(path)
	s.mu.Unlock()
	notify(subs, next)
	return nil
}

// Subscribe registers fn for changes to path.
func (s *Store) Subscribe(ctx context.Context, path string, fn func(json.RawMessage)) (func(), error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[path] = append(s.subs[path], subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			s.unsubscribe(path, id)
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				cancel()
			case <-stop:
			}
		}()
	}
	return cancel, nil
}

// SubscriberCount returns the number of live subscriptions on path.
func (s *Store) SubscriberCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[path])
}

func (s *Store) unsubscribe(path string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[path]
	for i, sub := range subs {
		if sub.id == id {
			s.subs[path] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.subs[path]) == 0 {
		delete(s.subs, path)
	}
}

func (s *Store) subscribersLocked(path string) []func(json.RawMessage) {
	subs := s.subs[path]
	out := make([]func(json.RawMessage), len(subs))
	for i, sub := range subs {
		out[i] = sub.fn
	}
	return out
}

func notify(subs []func(json.RawMessage), doc json.RawMessage) {
	for _, fn := range subs {
		fn(clone(doc))
	}
}

func clone(doc json.RawMessage) json.RawMessage {
	if doc == nil {
		return nil
	}
	out := make(json.RawMessage, len(doc))
	copy(out, doc)
	return out
}
