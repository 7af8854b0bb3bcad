package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"trackly/internal/domain"
)

// Log reads the append-only events table.
type Log struct {
	DB *sql.DB
}

type Filter struct {
	Collection string
	Type       string
	DocID      string
}

func (f Filter) clauses() ([]string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.Collection != "" {
		clauses = append(clauses, "collection=?")
		args = append(args, f.Collection)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.DocID != "" {
		clauses = append(clauses, "doc_id=?")
		args = append(args, f.DocID)
	}
	return clauses, args
}

// Latest returns up to limit events older than cursor, newest first.
// A zero cursor starts from the most recent event.
func (l Log) Latest(ctx context.Context, limit int, cursor int64, f Filter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses, args := f.clauses()
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,collection,doc_id,actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return l.query(ctx, query, args...)
}

// After returns up to limit events newer than cursor, oldest first.
func (l Log) After(ctx context.Context, limit int, cursor int64, f Filter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses, args := f.clauses()
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,collection,doc_id,actor_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return l.query(ctx, query, args...)
}

// LatestID returns the most recent event id, 0 when the log is empty.
func (l Log) LatestID(ctx context.Context) (int64, error) {
	var id int64
	if err := l.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (l Log) query(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := l.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var docID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Collection, &docID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.DocID = docID.String
		res = append(res, e)
	}
	return res, rows.Err()
}
