// Package store defines the payment record store contract and an
// in-memory implementation of it.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/yourorg/payment-gateway/internal/payment"
)

var (
	ErrNotFound      = errors.New("store: payment record not found")
	ErrAlreadyExists = errors.New("store: payment record already exists")
)

// RecordStore is durable keyed storage for payment records.
type RecordStore interface {
	// Add persists a new record. It fails with ErrAlreadyExists if the id is taken.
	Add(ctx context.Context, rec payment.Record) error
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (payment.Record, error)
	// Update replaces an existing record. It fails with ErrNotFound if the id is unknown.
	Update(ctx context.Context, rec payment.Record) error
	// Remove deletes a record. Removing an unknown id is not an error.
	Remove(ctx context.Context, id uuid.UUID) error
}

// InMemoryRecordStore keeps records in a map guarded by a RWMutex.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]payment.Record
}

// NewInMemoryRecordStore creates an empty store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		records: make(map[uuid.UUID]payment.Record),
	}
}

func (s *InMemoryRecordStore) Add(_ context.Context, rec payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return ErrAlreadyExists
	}
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

func (s *InMemoryRecordStore) Get(_ context.Context, id uuid.UUID) (payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return payment.Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *InMemoryRecordStore) Update(_ context.Context, rec payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		return ErrNotFound
	}
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

func (s *InMemoryRecordStore) Remove(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// Len returns the number of stored records.
func (s *InMemoryRecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// copyRecord detaches the Authorized pointer so callers cannot mutate stored state.
func copyRecord(rec payment.Record) payment.Record {
	if rec.Authorized != nil {
		v := *rec.Authorized
		rec.Authorized = &v
	}
	return rec
}
