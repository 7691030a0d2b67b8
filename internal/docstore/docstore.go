// Package docstore describes the shared document store the game protocol runs on:
// documents addressed by collection and id, merge writes, server timestamps and
// change feeds that always deliver a full current snapshot.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the id is already taken.
	ErrAlreadyExists = errors.New("document already exists")
)

// Fields is a partial document. Nested Fields (or map[string]any) values are
// merged key by key rather than replaced.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's own clock at write time.
var ServerTimestamp = serverTimestamp{}

// Document is one stored JSON object.
type Document struct {
	ID     string
	Exists bool
	Data   json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if !d.Exists {
		return ErrNotFound
	}
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.ID, err)
	}
	return nil
}

// Store is the capability consumed by the game. Implementations must serialize
// writes to a single document; nothing stronger is promised.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create writes the document only if the id is free.
	Create(ctx context.Context, collection, id string, fields Fields) error
	// Merge updates the given fields, creating the document if needed.
	Merge(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	// List returns every document in the collection ordered by id.
	List(ctx context.Context, collection string) ([]Document, error)
	// WatchDocument delivers the current document immediately and after every change.
	// The channel is closed once cancel is called or ctx ends.
	WatchDocument(ctx context.Context, collection, id string) (<-chan Document, func(), error)
	// WatchCollection delivers the full ordered collection immediately and after every change.
	WatchCollection(ctx context.Context, collection string) (<-chan []Document, func(), error)
}

// ToFields converts a JSON-tagged struct into Fields.
func ToFields(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve returns a copy of fields with every ServerTimestamp replaced by now.
func Resolve(fields Fields, now time.Time) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch val := v.(type) {
	case serverTimestamp:
		return now.UTC()
	case Fields:
		return Resolve(val, now)
	case map[string]any:
		return Resolve(Fields(val), now)
	default:
		return v
	}
}

// Encode resolves timestamps and marshals a new document body.
func Encode(fields Fields, now time.Time) ([]byte, error) {
	return json.Marshal(Resolve(fields, now))
}

// MergeJSON deep-merges fields into an existing JSON object. A nil existing
// body starts from an empty object.
func MergeJSON(existing []byte, fields Fields, now time.Time) ([]byte, error) {
	base := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &base); err != nil {
			return nil, fmt.Errorf("merge: existing body: %w", err)
		}
	}
	raw, err := json.Marshal(Resolve(fields, now))
	if err != nil {
		return nil, fmt.Errorf("merge: fields: %w", err)
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, err
	}
	deepMerge(base, patch)
	return json.Marshal(base)
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}
