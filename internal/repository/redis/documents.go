package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/dirty-laundry/internal/repository"
)

// maxTxRetries caps optimistic-lock retries for partial writes.
const maxTxRetries = 16

func docKey(path string) string     { return "doc:" + path }
func docChannel(path string) string { return "doc-changed:" + path }

// Get returns the document at path, or nil when the key does not exist.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, docKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return json.RawMessage(data), nil
}

// Set replaces the document and notifies subscribers.
func (c *Client) Set(ctx context.Context, path string, doc json.RawMessage) error {
	if err := c.rdb.Set(ctx, docKey(path), []byte(doc), c.docTTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return c.publish(ctx, path, doc)
}

// Create writes doc with SETNX and reports whether the path was free.
func (c *Client) Create(ctx context.Context, path string, doc json.RawMessage) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, docKey(path), []byte(doc), c.docTTL).Result()
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	if !ok {
		return false, nil
	}
	return true, c.publish(ctx, path, doc)
}

// Update merges fields into the stored document under WATCH so concurrent
// writers never lose each other's fields.
func (c *Client) Update(ctx context.Context, path string, fields map[string]any) error {
	return c.mutate(ctx, path, func(doc json.RawMessage) (json.RawMessage, error) {
		return repository.MergeFields(doc, fields)
	})
}

// Append pushes values onto an array field.
func (c *Client) Append(ctx context.Context, path, field string, values ...any) error {
	return c.mutate(ctx, path, func(doc json.RawMessage) (json.RawMessage, error) {
		return repository.AppendValues(doc, field, values...)
	})
}

// AppendUnique pushes value unless an element shares its key property. The
// check runs inside the WATCH transaction, so two servers racing the same
// value add it once.
func (c *Client) AppendUnique(ctx context.Context, path, field, key string, value any) (bool, error) {
	var added bool
	err := c.mutate(ctx, path, func(doc json.RawMessage) (json.RawMessage, error) {
		next, ok, err := repository.AppendUnique(doc, field, key, value)
		added = ok
		if err != nil || !ok {
			return nil, err
		}
		return next, nil
	})
	return added, err
}

// mutate runs fn in a WATCH transaction, retrying on conflicts. fn returning
// a nil document skips the write and the publish.
func (c *Client) mutate(ctx context.Context, path string, fn func(json.RawMessage) (json.RawMessage, error)) error {
	key := docKey(path)
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var next json.RawMessage
		err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return repository.ErrDocumentNotFound
			}
			if err != nil {
				return err
			}
			next, err = fn(cur)
			if err != nil || next == nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, []byte(next), c.docTTL)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update %s: %w", path, err)
		}
		if next == nil {
			return nil
		}
		return c.publish(ctx, path, next)
	}
	return fmt.Errorf("update %s: gave up after %d conflicting writes", path, maxTxRetries)
}

func (c *Client) publish(ctx context.Context, path string, doc json.RawMessage) error {
	if err := c.rdb.Publish(ctx, docChannel(path), []byte(doc)).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

// Subscribe listens on the document's change channel and calls fn with every
// published version. The subscription is confirmed before Subscribe returns.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(json.RawMessage)) (func(), error) {
	pubsub := c.rdb.Subscribe(ctx, docChannel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(json.RawMessage(msg.Payload))
			}
		}
	}()
	return cancel, nil
}
