package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackly/internal/events"
)

// SQLStore keeps documents in the documents table and appends one event
// per mutated document in the same transaction.
type SQLStore struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
	Logger *slog.Logger

	hub *hub
}

func NewSQLStore(db *sql.DB, now func() time.Time, logger *slog.Logger) *SQLStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{
		DB:     db,
		Events: events.Writer{Now: now},
		Now:    now,
		Logger: logger,
		hub:    newHub(),
	}
}

func (s *SQLStore) now() string {
	return s.Now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLStore) Get(ctx context.Context, ref Ref) (Document, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT data_json,created_at,updated_at FROM documents WHERE collection=? AND id=?`, ref.Collection, ref.ID)
	return scanDocument(ref, row)
}

func (s *SQLStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	clauses := []string{"collection=?"}
	args := []any{q.Collection}
	for _, f := range q.Filters {
		if f.Value == nil {
			clauses = append(clauses, "json_extract(data_json, ?) IS NULL")
			args = append(args, jsonPath(f.Field))
			continue
		}
		clauses = append(clauses, "json_extract(data_json, ?) = ?")
		args = append(args, jsonPath(f.Field), sqlValue(f.Value))
	}
	var orders []string
	for _, o := range q.Orders {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		orders = append(orders, "json_extract(data_json, ?) "+dir)
		args = append(args, jsonPath(o.Field))
	}
	orders = append(orders, "created_at ASC", "id ASC")
	query := fmt.Sprintf(`SELECT id,data_json,created_at,updated_at FROM documents WHERE %s ORDER BY %s`,
		strings.Join(clauses, " AND "), strings.Join(orders, ", "))
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var id, data, created, updated string
		if err := rows.Scan(&id, &data, &created, &updated); err != nil {
			return nil, err
		}
		doc, err := buildDocument(Ref{Collection: q.Collection, ID: id}, data, created, updated)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", errors.New("collection is required")
	}
	ref := Ref{Collection: collection, ID: uuid.NewString()}
	err := s.inTx(ctx, []string{collection}, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, ref, fields)
	})
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *SQLStore) Set(ctx context.Context, ref Ref, fields map[string]any) error {
	return s.inTx(ctx, []string{ref.Collection}, func(tx *sql.Tx) error {
		_, err := load(ctx, tx, ref)
		if errors.Is(err, ErrNotFound) {
			return s.insert(ctx, tx, ref, fields)
		}
		if err != nil {
			return err
		}
		return s.save(ctx, tx, ref, cleanFields(fields), fields)
	})
}

func (s *SQLStore) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	return s.BatchUpdate(ctx, []Write{{Ref: ref, Fields: fields}})
}

func (s *SQLStore) BatchUpdate(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	collections := make([]string, 0, len(writes))
	for _, w := range writes {
		collections = append(collections, w.Ref.Collection)
	}
	return s.inTx(ctx, collections, func(tx *sql.Tx) error {
		for _, w := range writes {
			doc, err := load(ctx, tx, w.Ref)
			if err != nil {
				return fmt.Errorf("update %s: %w", w.Ref, err)
			}
			merged := merge(doc.Data, w.Fields)
			if err := s.save(ctx, tx, w.Ref, merged, w.Fields); err != nil {
				return fmt.Errorf("update %s: %w", w.Ref, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return s.subscribe(ctx, q), nil
}

// Subscribers returns the number of live subscriptions on collection.
func (s *SQLStore) Subscribers(collection string) int {
	return s.hub.count(collection)
}

func (s *SQLStore) inTx(ctx context.Context, collections []string, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.hub.notify(collections...)
	return nil
}

func (s *SQLStore) insert(ctx context.Context, tx *sql.Tx, ref Ref, fields map[string]any) error {
	data := cleanFields(fields)
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ref, err)
	}
	now := s.now()
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(collection,id,data_json,created_at,updated_at) VALUES (?,?,?,?,?)`,
		ref.Collection, ref.ID, string(raw), now, now); err != nil {
		return err
	}
	_, err = s.Events.Append(ctx, tx, ref.Collection+".created", ref.Collection, ref.ID, "", events.EventPayload(data))
	return err
}

func (s *SQLStore) save(ctx context.Context, tx *sql.Tx, ref Ref, data, changed map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ref, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET data_json=?, updated_at=? WHERE collection=? AND id=?`,
		string(raw), s.now(), ref.Collection, ref.ID); err != nil {
		return err
	}
	_, err = s.Events.Append(ctx, tx, ref.Collection+".updated", ref.Collection, ref.ID, "", events.EventPayload(changed))
	return err
}

func load(ctx context.Context, tx *sql.Tx, ref Ref) (Document, error) {
	row := tx.QueryRowContext(ctx, `SELECT data_json,created_at,updated_at FROM documents WHERE collection=? AND id=?`, ref.Collection, ref.ID)
	return scanDocument(ref, row)
}

func scanDocument(ref Ref, row *sql.Row) (Document, error) {
	var data, created, updated string
	if err := row.Scan(&data, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return buildDocument(ref, data, created, updated)
}

func buildDocument(ref Ref, data, created, updated string) (Document, error) {
	doc := Document{Ref: ref}
	if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", ref, err)
	}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	doc.CreateTime, _ = time.Parse(time.RFC3339Nano, created)
	doc.UpdateTime, _ = time.Parse(time.RFC3339Nano, updated)
	return doc, nil
}

func cleanFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "id" || v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

func merge(base, partial map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		if k == "id" {
			continue
		}
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
