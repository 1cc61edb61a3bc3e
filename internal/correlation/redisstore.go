package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 64

// getter is satisfied by both *redis.Client and the *redis.Tx of a WATCH.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore is a Store shared by every server instance through Redis.
//
// Key layout under the prefix:
//
//	{prefix}:wf:{userID}     JSON workflow
//	{prefix}:form:{formID}   owning user ID
//	{prefix}:forms:{userID}  set of form IDs bound to the user
//
// Read-modify-write runs as an optimistic WATCH/MULTI transaction on the
// workflow key. Every key carries ttl so abandoned workflows disappear even
// if no sweeper runs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) workflowKey(userID string) string { return s.prefix + ":wf:" + userID }
func (s *RedisStore) formKey(formID string) string     { return s.prefix + ":form:" + formID }
func (s *RedisStore) formsKey(userID string) string    { return s.prefix + ":forms:" + userID }

// Put stores wf under its user key.
func (s *RedisStore) Put(ctx context.Context, wf Workflow) (*Workflow, error) {
	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}

	var replaced *Workflow
	key := s.workflowKey(wf.UserID)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		replaced = nil
		prev, err := s.load(ctx, tx, wf.UserID)
		if err == nil {
			replaced = &prev
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if wf.FormID != "" {
			if err := s.checkFormLocked(ctx, tx, wf.UserID, wf.FormID); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			if wf.FormID != "" {
				s.bindPipe(ctx, pipe, wf.UserID, wf.FormID)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// Get returns the workflow key resolves to.
func (s *RedisStore) Get(ctx context.Context, key Key) (Workflow, error) {
	userID, err := s.resolve(ctx, s.client, key)
	if err != nil {
		return Workflow{}, err
	}
	wf, err := s.load(ctx, s.client, userID)
	if err != nil {
		return Workflow{}, fmt.Errorf("%s: %w", key, err)
	}
	return wf, nil
}

// Update applies fn inside a WATCH transaction on the workflow key. A form
// key is watched as well and must still name the same user when fn runs.
func (s *RedisStore) Update(ctx context.Context, key Key, fn func(*Workflow) error) (Workflow, error) {
	userID, err := s.resolve(ctx, s.client, key)
	if err != nil {
		return Workflow{}, err
	}

	var result Workflow
	wfKey := s.workflowKey(userID)
	keys := []string{wfKey}
	if key.kind == formKey {
		keys = append(keys, s.formKey(key.id))
	}
	err = s.watch(ctx, func(tx *redis.Tx) error {
		if key.kind == formKey {
			owner, err := s.resolve(ctx, tx, key)
			if err != nil {
				return err
			}
			if owner != userID {
				return fmt.Errorf("%s: %w", key, ErrNotFound)
			}
		}
		wf, err := s.load(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := fn(&wf); err != nil {
			return err
		}
		if wf.UserID != userID {
			return fmt.Errorf("%s: user id is immutable", key)
		}
		if wf.FormID != "" {
			if err := s.checkFormLocked(ctx, tx, userID, wf.FormID); err != nil {
				return err
			}
		}
		data, err := json.Marshal(wf)
		if err != nil {
			return fmt.Errorf("marshal workflow: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, wfKey, data, s.ttl)
			if wf.FormID != "" {
				s.bindPipe(ctx, pipe, userID, wf.FormID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = wf
		return nil
	}, keys...)
	if err != nil {
		return Workflow{}, err
	}
	return result, nil
}

// Remove retires the user's workflow if it is still workflowID.
func (s *RedisStore) Remove(ctx context.Context, userID, workflowID string) (bool, error) {
	removed := false
	wfKey := s.workflowKey(userID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		removed = false
		wf, err := s.load(ctx, tx, userID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if wf.ID != workflowID {
			return nil
		}
		formIDs, err := tx.SMembers(ctx, s.formsKey(userID)).Result()
		if err != nil {
			return fmt.Errorf("redis smembers: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, wfKey, s.formsKey(userID))
			for _, formID := range formIDs {
				pipe.Del(ctx, s.formKey(formID))
			}
			return nil
		})
		if err != nil {
			return err
		}
		removed = true
		return nil
	}, wfKey)
	return removed, err
}

// List scans every workflow key, oldest first.
func (s *RedisStore) List(ctx context.Context) ([]Workflow, error) {
	var result []Workflow
	iter := s.client.Scan(ctx, 0, s.prefix+":wf:*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %q: %w", iter.Val(), err)
		}
		var wf Workflow
		if err := json.Unmarshal(raw, &wf); err != nil {
			return nil, fmt.Errorf("unmarshal workflow %q: %w", iter.Val(), err)
		}
		result = append(result, wf)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *RedisStore) resolve(ctx context.Context, c getter, key Key) (string, error) {
	if key.kind == userKey {
		return key.id, nil
	}
	userID, err := c.Get(ctx, s.formKey(key.id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis get %q: %w", s.formKey(key.id), err)
	}
	return userID, nil
}

func (s *RedisStore) load(ctx context.Context, c getter, userID string) (Workflow, error) {
	raw, err := c.Get(ctx, s.workflowKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("redis get %q: %w", s.workflowKey(userID), err)
	}
	var wf Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return Workflow{}, fmt.Errorf("unmarshal workflow: %w", err)
	}
	return wf, nil
}

func (s *RedisStore) checkFormLocked(ctx context.Context, c getter, userID, formID string) error {
	owner, err := c.Get(ctx, s.formKey(formID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get %q: %w", s.formKey(formID), err)
	}
	if owner != userID {
		return fmt.Errorf("form %s: %w", formID, ErrFormBound)
	}
	return nil
}

func (s *RedisStore) bindPipe(ctx context.Context, pipe redis.Pipeliner, userID, formID string) {
	pipe.Set(ctx, s.formKey(formID), userID, s.ttl)
	pipe.SAdd(ctx, s.formsKey(userID), formID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.formsKey(userID), s.ttl)
	}
}

// watch runs fn in a WATCH transaction, retrying when another writer
// touched the watched keys first.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis transaction on %v: too much contention", keys)
}
