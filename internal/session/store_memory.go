package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps sessions in process memory. It suits single-node development
// and tests; state is lost on restart.
type MemoryStore struct {
	opts  StoreOptions
	users *keyedMutex

	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts StoreOptions) *MemoryStore {
	return &MemoryStore{
		opts:    opts.normalised(),
		users:   newKeyedMutex(),
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, record Record) error {
	_, err := s.insert(ctx, record)
	return err
}

func (s *MemoryStore) insert(ctx context.Context, record Record) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.SessionID]; exists {
		return nil, ErrDuplicateSessionID
	}
	s.records[record.SessionID] = record

	return func() {
		s.mu.Lock()
		delete(s.records, record.SessionID)
		s.mu.Unlock()
	}, nil
}

func (s *MemoryStore) FindByUser(ctx context.Context, userID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := s.opts.cutoff()

	s.mu.RLock()
	out := make([]Record, 0, 2)
	for _, record := range s.records {
		if record.UserID == userID && record.CreatedAt.After(cutoff) {
			out = append(out, record)
		}
	}
	s.mu.RUnlock()

	sortOldestFirst(out)
	return out, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	record, ok := s.records[sessionID]
	s.mu.RUnlock()

	if !ok || !record.CreatedAt.After(s.opts.cutoff()) {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, sessionID string) error {
	_, err := s.delete(ctx, sessionID, func(Record) bool { return true })
	return err
}

func (s *MemoryStore) DeleteByUserAndSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.delete(ctx, sessionID, func(r Record) bool { return r.UserID == userID })
	return err
}

func (s *MemoryStore) delete(ctx context.Context, sessionID string, match func(Record) bool) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sessionID]
	if !ok || !match(record) {
		return func() {}, nil
	}
	delete(s.records, sessionID)

	return func() {
		s.mu.Lock()
		s.records[record.SessionID] = record
		s.mu.Unlock()
	}, nil
}

// WithUserLock serialises fn against other sections for the same user. Mutations made
// through the section store are undone if fn fails.
func (s *MemoryStore) WithUserLock(ctx context.Context, userID string, fn func(Store) error) error {
	unlock, err := s.users.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// PurgeExpired drops records past their TTL.
func (s *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := s.opts.cutoff()

	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, record := range s.records {
		if !record.CreatedAt.After(cutoff) {
			delete(s.records, id)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memoryTx) Insert(ctx context.Context, record Record) error {
	undo, err := t.store.insert(ctx, record)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, undo)
	return nil
}

func (t *memoryTx) FindByUser(ctx context.Context, userID string) ([]Record, error) {
	return t.store.FindByUser(ctx, userID)
}

func (t *memoryTx) FindByID(ctx context.Context, sessionID string) (Record, error) {
	return t.store.FindByID(ctx, sessionID)
}

func (t *memoryTx) DeleteByID(ctx context.Context, sessionID string) error {
	undo, err := t.store.delete(ctx, sessionID, func(Record) bool { return true })
	if err != nil {
		return err
	}
	t.undo = append(t.undo, undo)
	return nil
}

func (t *memoryTx) DeleteByUserAndSession(ctx context.Context, userID, sessionID string) error {
	undo, err := t.store.delete(ctx, sessionID, func(r Record) bool { return r.UserID == userID })
	if err != nil {
		return err
	}
	t.undo = append(t.undo, undo)
	return nil
}

// Sections do not nest; the outer lock already covers the user.
func (t *memoryTx) WithUserLock(ctx context.Context, _ string, fn func(Store) error) error {
	return fn(t)
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func sortOldestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].SessionID < records[j].SessionID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
