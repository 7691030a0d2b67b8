package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"rocketquiz/internal/docstore"
)

const maxMergeAttempts = 16

// DocumentStore keeps each collection in a hash (field = document id, value =
// JSON body) and announces changes on a per-collection pub/sub channel.
//
//	HSET docstore:{collection} {id} {json}
//	PUBLISH docstore:changes:{collection} {id}
//
// Server timestamps come from the Redis TIME command so that every client
// stamps with the same clock.
type DocumentStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDocumentStore returns a store whose collections expire ttl after their last write (0 disables expiry).
func NewDocumentStore(client *redis.Client, ttl time.Duration) *DocumentStore {
	return &DocumentStore{client: client, ttl: ttl}
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	body, err := s.client.HGet(ctx, s.key(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.Document{ID: id}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{ID: id}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Exists: true, Data: body}, nil
}

func (s *DocumentStore) Create(ctx context.Context, collection, id string, fields docstore.Fields) error {
	now, err := s.serverTime(ctx)
	if err != nil {
		return err
	}
	body, err := docstore.Encode(fields, now)
	if err != nil {
		return err
	}
	ok, err := s.client.HSetNX(ctx, s.key(collection), id, body).Result()
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	if !ok {
		return docstore.ErrAlreadyExists
	}
	s.announce(ctx, collection, id)
	return nil
}

// Merge is an optimistic read-modify-write on the document's hash field.
func (s *DocumentStore) Merge(ctx context.Context, collection, id string, fields docstore.Fields) error {
	key := s.key(collection)
	txf := func(tx *redis.Tx) error {
		now, err := s.serverTime(ctx)
		if err != nil {
			return err
		}
		existing, err := tx.HGet(ctx, key, id).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		body, err := docstore.MergeJSON(existing, fields, now)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, body)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			s.announce(ctx, collection, id)
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("merge %s/%s: %w", collection, id, err)
	}
	return fmt.Errorf("merge %s/%s: too much contention", collection, id)
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	n, err := s.client.HDel(ctx, s.key(collection), id).Result()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	s.announce(ctx, collection, id)
	return nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	all, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, docstore.Document{ID: id, Exists: true, Data: []byte(all[id])})
	}
	return docs, nil
}

func (s *DocumentStore) WatchDocument(ctx context.Context, collection, id string) (<-chan docstore.Document, func(), error) {
	fetch := func(ctx context.Context) (docstore.Document, error) {
		doc, err := s.Get(ctx, collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return doc, nil
		}
		return doc, err
	}
	return watch(ctx, s, collection, func(changed string) bool { return changed == id }, fetch)
}

func (s *DocumentStore) WatchCollection(ctx context.Context, collection string) (<-chan []docstore.Document, func(), error) {
	fetch := func(ctx context.Context) ([]docstore.Document, error) {
		return s.List(ctx, collection)
	}
	return watch(ctx, s, collection, func(string) bool { return true }, fetch)
}

// watch subscribes before reading the initial snapshot so no change between
// the two is lost. Each notification triggers a fresh full read.
func watch[T any](ctx context.Context, s *DocumentStore, collection string, match func(id string) bool, fetch func(context.Context) (T, error)) (<-chan T, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := s.client.Subscribe(ctx, s.channel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", collection, err)
	}
	initial, err := fetch(ctx)
	if err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan T, 1)
	out <- initial
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if !match(msg.Payload) {
					continue
				}
				snap, err := fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				docstore.Offer(out, snap)
			}
		}
	}()

	stop := func() {
		cancel()
		<-done
	}
	return out, stop, nil
}

// announce runs after the write has committed. Failures are logged only.
func (s *DocumentStore) announce(ctx context.Context, collection, id string) {
	pipe := s.client.Pipeline()
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(collection), s.ttl)
	}
	pipe.Publish(ctx, s.channel(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("docstore: announce %s/%s: %v", collection, id, err)
	}
}

func (s *DocumentStore) serverTime(ctx context.Context) (time.Time, error) {
	now, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}
	return now, nil
}

func (s *DocumentStore) key(collection string) string {
	return "docstore:" + collection
}

func (s *DocumentStore) channel(collection string) string {
	return "docstore:changes:" + collection
}
