package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"rocketquiz/internal/docstore"
)

// DocumentStore is an in-process docstore.Store. Writes to the whole store are
// serialized, which is stronger than the contract requires.
type DocumentStore struct {
	now func() time.Time

	mu          sync.RWMutex
	collections map[string]map[string][]byte
	docFeeds    map[string]*docstore.Feed[docstore.Document]
	collFeeds   map[string]*docstore.Feed[[]docstore.Document]
}

// NewDocumentStore returns an empty store stamped with the wall clock.
func NewDocumentStore() *DocumentStore {
	return NewDocumentStoreWithClock(time.Now)
}

// NewDocumentStoreWithClock lets tests control server timestamps.
func NewDocumentStoreWithClock(now func() time.Time) *DocumentStore {
	return &DocumentStore{
		now:         now,
		collections: make(map[string]map[string][]byte),
		docFeeds:    make(map[string]*docstore.Feed[docstore.Document]),
		collFeeds:   make(map[string]*docstore.Feed[[]docstore.Document]),
	}
}

func (s *DocumentStore) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := s.documentLocked(collection, id)
	if !doc.Exists {
		return doc, docstore.ErrNotFound
	}
	return doc, nil
}

func (s *DocumentStore) Create(_ context.Context, collection, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collectionLocked(collection)
	if _, ok := docs[id]; ok {
		return docstore.ErrAlreadyExists
	}
	body, err := docstore.Encode(fields, s.now())
	if err != nil {
		return err
	}
	docs[id] = body
	s.publishLocked(collection, id)
	return nil
}

func (s *DocumentStore) Merge(_ context.Context, collection, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collectionLocked(collection)
	body, err := docstore.MergeJSON(docs[id], fields, s.now())
	if err != nil {
		return err
	}
	docs[id] = body
	s.publishLocked(collection, id)
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collectionLocked(collection)
	if _, ok := docs[id]; !ok {
		return docstore.ErrNotFound
	}
	delete(docs, id)
	s.publishLocked(collection, id)
	return nil
}

func (s *DocumentStore) List(_ context.Context, collection string) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(collection), nil
}

func (s *DocumentStore) WatchDocument(ctx context.Context, collection, id string) (<-chan docstore.Document, func(), error) {
	s.mu.Lock()
	key := collection + "\x00" + id
	feed, ok := s.docFeeds[key]
	if !ok {
		feed = docstore.NewFeed[docstore.Document]()
		s.docFeeds[key] = feed
	}
	ch, cancel := feed.Subscribe(s.documentLocked(collection, id))
	s.mu.Unlock()
	return ch, stopOnDone(ctx, cancel), nil
}

func (s *DocumentStore) WatchCollection(ctx context.Context, collection string) (<-chan []docstore.Document, func(), error) {
	s.mu.Lock()
	feed, ok := s.collFeeds[collection]
	if !ok {
		feed = docstore.NewFeed[[]docstore.Document]()
		s.collFeeds[collection] = feed
	}
	ch, cancel := feed.Subscribe(s.listLocked(collection))
	s.mu.Unlock()
	return ch, stopOnDone(ctx, cancel), nil
}

// Watchers reports live subscriptions, used to check teardown in tests.
func (s *DocumentStore) Watchers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, f := range s.docFeeds {
		n += f.Len()
	}
	for _, f := range s.collFeeds {
		n += f.Len()
	}
	return n
}

func (s *DocumentStore) collectionLocked(collection string) map[string][]byte {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.collections[collection] = docs
	}
	return docs
}

func (s *DocumentStore) documentLocked(collection, id string) docstore.Document {
	body, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{ID: id}
	}
	return docstore.Document{ID: id, Exists: true, Data: append([]byte(nil), body...)}
}

func (s *DocumentStore) listLocked(collection string) []docstore.Document {
	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.documentLocked(collection, id))
	}
	return out
}

// publishLocked runs under the write lock so every feed sees changes in write order.
func (s *DocumentStore) publishLocked(collection, id string) {
	if feed, ok := s.docFeeds[collection+"\x00"+id]; ok {
		feed.Publish(s.documentLocked(collection, id))
	}
	if feed, ok := s.collFeeds[collection]; ok {
		feed.Publish(s.listLocked(collection))
	}
}

func stopOnDone(ctx context.Context, cancel func()) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop
}
