// Package docstore provides collections of JSON documents with equality
// queries, atomic batch updates and realtime snapshot subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

type Document struct {
	Ref        Ref
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// DataTo decodes the document into v with the document id under "id".
func (d Document) DataTo(v any) error {
	data := make(map[string]any, len(d.Data)+1)
	for k, val := range d.Data {
		data[k] = val
	}
	data["id"] = d.Ref.ID
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.Ref, err)
	}
	return nil
}

// Decode converts a snapshot into typed values.
func Decode[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.DataTo(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Fields converts a struct into the field map stored for a document.
// The "id" key is dropped; ids live in the Ref.
func Fields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "id")
	return m, nil
}

// Write is one partial update inside a BatchUpdate.
type Write struct {
	Ref    Ref
	Fields map[string]any
}

// Snapshot is the full result set of a subscribed query at one point in time.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Store is the document database used by every service.
type Store interface {
	Get(ctx context.Context, ref Ref) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Set writes the whole document, creating it when missing.
	Set(ctx context.Context, ref Ref, fields map[string]any) error
	// Update merges fields into an existing document. A nil value removes the field.
	Update(ctx context.Context, ref Ref, fields map[string]any) error
	// BatchUpdate applies every write or none of them.
	BatchUpdate(ctx context.Context, writes []Write) error
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
}
