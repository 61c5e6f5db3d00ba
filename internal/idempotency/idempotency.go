// Package idempotency maps caller-supplied idempotency keys to the response
// first produced for them. A key is reserved atomically before any side
// effect runs and later completed with the response or released.
package idempotency

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yourorg/payment-gateway/internal/payment"
)

var (
	// ErrInProgress is returned by Reserve while another flow holds the key.
	ErrInProgress = errors.New("idempotency: request with this key is already in progress")
	// ErrNotReserved is returned by Complete when the key holds no reservation.
	ErrNotReserved = errors.New("idempotency: key is not reserved")
)

// State of an entry.
type State string

const (
	StateReserved State = "RESERVED"
	StateComplete State = "COMPLETE"
)

// Entry is the value stored under a key.
type Entry struct {
	State    State                   `json:"state"`
	Response *payment.CreateResponse `json:"response,omitempty"`
}

// Store is the idempotency cache contract.
type Store interface {
	// Get returns the completed response for key, if any. It has no side effects.
	Get(ctx context.Context, key string) (*payment.CreateResponse, bool, error)
	// Reserve atomically claims key. It returns the cached response when the
	// key is already complete, nil when the caller now owns the reservation,
	// and ErrInProgress when another flow owns it.
	Reserve(ctx context.Context, key string) (*payment.CreateResponse, error)
	// Complete stores resp under a reserved key. A complete entry is never overwritten.
	Complete(ctx context.Context, key string, resp payment.CreateResponse) error
	// Release drops a reservation so the key can be processed again.
	Release(ctx context.Context, key string) error
}

// Options bound the in-memory store. Zero values mean unbounded.
type Options struct {
	TTL        time.Duration
	MaxEntries int
}

type memEntry struct {
	key       string
	entry     Entry
	expiresAt time.Time
	elem      *list.Element // position in completion order, nil while reserved
}

// MemoryStore is a process-lifetime Store guarded by a single mutex.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memEntry
	completed *list.List // oldest completion at the front
	opts      Options
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*memEntry),
		completed: list.New(),
		opts:      opts,
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*payment.CreateResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil || e.entry.State != StateComplete {
		return nil, false, nil
	}
	resp := *e.entry.Response
	return &resp, true, nil
}

func (s *MemoryStore) Reserve(_ context.Context, key string) (*payment.CreateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.lookup(key); e != nil {
		if e.entry.State == StateReserved {
			return nil, ErrInProgress
		}
		resp := *e.entry.Response
		return &resp, nil
	}
	s.entries[key] = &memEntry{key: key, entry: Entry{State: StateReserved}}
	return nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp payment.CreateResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil || e.entry.State != StateReserved {
		return ErrNotReserved
	}
	e.entry = Entry{State: StateComplete, Response: &resp}
	if s.opts.TTL > 0 {
		e.expiresAt = s.now().Add(s.opts.TTL)
	}
	e.elem = s.completed.PushBack(e)
	s.evict()
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.entry.State == StateReserved {
		delete(s.entries, key)
	}
	return nil
}

// Len returns the number of live entries, reserved or complete.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup returns the entry for key, dropping it first if it has expired.
// Callers hold s.mu.
func (s *MemoryStore) lookup(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.drop(e)
		return nil
	}
	return e
}

// evict drops the oldest completed entries while over MaxEntries.
// Reserved entries are never evicted.
func (s *MemoryStore) evict() {
	if s.opts.MaxEntries <= 0 {
		return
	}
	for len(s.entries) > s.opts.MaxEntries {
		front := s.completed.Front()
		if front == nil {
			return
		}
		s.drop(front.Value.(*memEntry))
	}
}

func (s *MemoryStore) drop(e *memEntry) {
	if e.elem != nil {
		s.completed.Remove(e.elem)
	}
	delete(s.entries, e.key)
}
