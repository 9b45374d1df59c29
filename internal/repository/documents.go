// Package repository provides persistence for owned JSON documents and a
// change feed over them, using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/avoronova/FinSync/internal/models"
	"github.com/lib/pq"
)

// PostgresDocumentStore implements document CRUD against a PostgreSQL
// database. Every entity lives in one documents table as a JSONB payload
// keyed by (collection, id) and scoped under an owner id.
type PostgresDocumentStore struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresDocumentStore creates a new PostgresDocumentStore using the
// provided *sql.DB. db must be a valid connection to a PostgreSQL instance.
func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{DB: db}
}

const docColumns = `collection, id, owner_id, data, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var doc models.Document
	var raw []byte
	if err := row.Scan(&doc.Collection, &doc.ID, &doc.OwnerID, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &doc, nil
}

// Create inserts a new document. The caller supplies collection, id,
// owner id, and payload; timestamps are stamped by the database.
func (s *PostgresDocumentStore) Create(ctx context.Context, doc models.Document) (string, error) {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO documents (collection, id, owner_id, data) VALUES ($1, $2, $3, $4)
	`, doc.Collection, doc.ID, doc.OwnerID, raw)
	if err != nil {
		return "", fmt.Errorf("Create: %w", err)
	}
	return doc.ID, nil
}

// Get retrieves a single document by collection and id.
// Returns sql.ErrNoRows when no such document exists.
func (s *PostgresDocumentStore) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+docColumns+` FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	return scanDocument(row)
}

func (s *PostgresDocumentStore) queryDocuments(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ListByOwner fetches all documents of one collection belonging to the
// given owner. No server-side ordering is applied; callers that need an
// order sort the snapshot themselves, which keeps the query off any
// composite index.
func (s *PostgresDocumentStore) ListByOwner(ctx context.Context, collection, owner string) ([]models.Document, error) {
	docs, err := s.queryDocuments(ctx, `
		SELECT `+docColumns+` FROM documents WHERE collection = $1 AND owner_id = $2
	`, collection, owner)
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	return docs, nil
}

// ListByOwnerField narrows ListByOwner with an equality match on one
// payload field, e.g. chat messages by sessionId.
func (s *PostgresDocumentStore) ListByOwnerField(ctx context.Context, collection, owner, field, value string) ([]models.Document, error) {
	docs, err := s.queryDocuments(ctx, `
		SELECT `+docColumns+` FROM documents WHERE collection = $1 AND owner_id = $2 AND data->>$3 = $4
	`, collection, owner, field, value)
	if err != nil {
		return nil, fmt.Errorf("ListByOwnerField: %w", err)
	}
	return docs, nil
}

// ListPublic fetches every document of a flat public collection,
// regardless of owner.
func (s *PostgresDocumentStore) ListPublic(ctx context.Context, collection string) ([]models.Document, error) {
	docs, err := s.queryDocuments(ctx, `
		SELECT `+docColumns+` FROM documents WHERE collection = $1
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("ListPublic: %w", err)
	}
	return docs, nil
}

// FindByField returns the first document in a collection whose payload
// field equals value, or (nil, nil) when none matches.
func (s *PostgresDocumentStore) FindByField(ctx context.Context, collection, field, value string) (*models.Document, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+docColumns+` FROM documents WHERE collection = $1 AND data->>$2 = $3 LIMIT 1
	`, collection, field, value)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByField: %w", err)
	}
	return doc, nil
}

// Update merges set into the document payload and removes every key in
// clear. An explicitly cleared field is absent afterwards, not null.
// Returns sql.ErrNoRows when the document does not exist.
func (s *PostgresDocumentStore) Update(ctx context.Context, collection, id string, set map[string]any, clear []string) error {
	if set == nil {
		set = map[string]any{}
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE documents SET data = (data || $3::jsonb) - $4::text[], updated_at = now()
		WHERE collection = $1 AND id = $2
	`, collection, id, raw, pq.Array(clear))
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a document unconditionally.
func (s *PostgresDocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// DeleteByOwnerField removes every document of the owner whose payload
// field equals value and reports how many were removed. Used to cascade
// a session delete over its messages.
func (s *PostgresDocumentStore) DeleteByOwnerField(ctx context.Context, collection, owner, field, value string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND owner_id = $2 AND data->>$3 = $4
	`, collection, owner, field, value)
	if err != nil {
		return 0, fmt.Errorf("DeleteByOwnerField: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// Increment atomically bumps a numeric payload field by delta, treating
// a missing field as zero.
func (s *PostgresDocumentStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE documents
		SET data = jsonb_set(data, ARRAY[$3], to_jsonb(COALESCE((data->>$3)::bigint, 0) + $4), true),
		    updated_at = now()
		WHERE collection = $1 AND id = $2
	`, collection, id, field, delta)
	if err != nil {
		return fmt.Errorf("Increment: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
