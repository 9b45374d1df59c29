package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/avoronova/FinSync/internal/models"
)

// memStore is an in-memory DocumentStore with per-operation failure
// injection, keyed by collection.
type memStore struct {
	mu   sync.Mutex
	docs map[string]map[string]models.Document

	failCreate    map[string]error
	failUpdate    map[string]error
	failDelete    map[string]error
	failList      map[string]error
	failIncrement error

	increments []string
}

func newMemStore() *memStore {
	return &memStore{
		docs:       make(map[string]map[string]models.Document),
		failCreate: make(map[string]error),
		failUpdate: make(map[string]error),
		failDelete: make(map[string]error),
		failList:   make(map[string]error),
	}
}

// normalize round-trips a payload through JSON the way the real store's
// JSONB column does.
func normalize(data map[string]any) map[string]any {
	b, _ := json.Marshal(data)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func (m *memStore) Create(_ context.Context, doc models.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCreate[doc.Collection]; err != nil {
		return "", err
	}
	coll, ok := m.docs[doc.Collection]
	if !ok {
		coll = make(map[string]models.Document)
		m.docs[doc.Collection] = coll
	}
	doc.Data = normalize(doc.Data)
	coll[doc.ID] = doc
	return doc.ID, nil
}

func (m *memStore) Get(_ context.Context, collection, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (m *memStore) list(collection string, match func(models.Document) bool) []models.Document {
	var out []models.Document
	for _, doc := range m.docs[collection] {
		if match(doc) {
			out = append(out, doc)
		}
	}
	return out
}

func (m *memStore) ListByOwner(_ context.Context, collection, owner string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failList[collection]; err != nil {
		return nil, err
	}
	return m.list(collection, func(d models.Document) bool { return d.OwnerID == owner }), nil
}

func (m *memStore) ListByOwnerField(_ context.Context, collection, owner, field, value string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failList[collection]; err != nil {
		return nil, err
	}
	return m.list(collection, func(d models.Document) bool {
		v, _ := d.Data[field].(string)
		return d.OwnerID == owner && v == value
	}), nil
}

func (m *memStore) ListPublic(_ context.Context, collection string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failList[collection]; err != nil {
		return nil, err
	}
	return m.list(collection, func(models.Document) bool { return true }), nil
}

func (m *memStore) FindByField(_ context.Context, collection, field, value string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.docs[collection] {
		if v, _ := doc.Data[field].(string); v == value {
			return &doc, nil
		}
	}
	return nil, nil
}

func (m *memStore) Update(_ context.Context, collection, id string, set map[string]any, clear []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpdate[collection]; err != nil {
		return err
	}
	doc, ok := m.docs[collection][id]
	if !ok {
		return sql.ErrNoRows
	}
	data := make(map[string]any, len(doc.Data))
	for k, v := range doc.Data {
		data[k] = v
	}
	for k, v := range normalize(set) {
		data[k] = v
	}
	for _, k := range clear {
		delete(data, k)
	}
	doc.Data = data
	m.docs[collection][id] = doc
	return nil
}

func (m *memStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDelete[collection]; err != nil {
		return err
	}
	delete(m.docs[collection], id)
	return nil
}

func (m *memStore) DeleteByOwnerField(_ context.Context, collection, owner, field, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDelete[collection]; err != nil {
		return 0, err
	}
	var n int64
	for id, doc := range m.docs[collection] {
		if v, _ := doc.Data[field].(string); doc.OwnerID == owner && v == value {
			delete(m.docs[collection], id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Increment(_ context.Context, collection, id, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increments = append(m.increments, collection+"/"+id)
	if m.failIncrement != nil {
		return m.failIncrement
	}
	doc, ok := m.docs[collection][id]
	if !ok {
		return sql.ErrNoRows
	}
	current, _ := doc.Data[field].(float64)
	doc.Data[field] = current + float64(delta)
	m.docs[collection][id] = doc
	return nil
}

// count returns how many documents a collection holds.
func (m *memStore) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}
