package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local [TokenStore].
type MemoryStore struct {
	mu            sync.Mutex
	now           Clock
	byID          map[string]*ResetToken
	byFingerprint map[[32]byte]string
	byAccount     map[string]map[string]struct{}
}

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:           now,
		byID:          make(map[string]*ResetToken),
		byFingerprint: make(map[[32]byte]string),
		byAccount:     make(map[string]map[string]struct{}),
	}
}

// Insert stores a new record. Inserting an ID that already exists fails.
func (s *MemoryStore) Insert(ctx context.Context, token ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRecord(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(token)
}

// Replace invalidates every token of the account and inserts token.
func (s *MemoryStore) Replace(ctx context.Context, token ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRecord(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(token.AccountID)
	return s.insertLocked(token)
}

func (s *MemoryStore) insertLocked(token ResetToken) error {
	if _, exists := s.byID[token.ID]; exists {
		return ErrInvalidRecord
	}
	if _, exists := s.byFingerprint[token.Fingerprint]; exists {
		return ErrInvalidRecord
	}

	rec := token
	s.byID[rec.ID] = &rec
	s.byFingerprint[rec.Fingerprint] = rec.ID
	ids := s.byAccount[rec.AccountID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.byAccount[rec.AccountID] = ids
	}
	ids[rec.ID] = struct{}{}
	return nil
}

// FindValidByFingerprint returns the record only while it is unused and unexpired.
func (s *MemoryStore) FindValidByFingerprint(ctx context.Context, fingerprint [32]byte) (ResetToken, bool, error) {
	if err := ctx.Err(); err != nil {
		return ResetToken{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return ResetToken{}, false, nil
	}
	rec := s.byID[id]
	if rec == nil || !rec.ValidAt(s.now()) {
		return ResetToken{}, false, nil
	}
	return *rec, true, nil
}

// MarkUsedAtomically flips Used for an unused, unexpired record.
func (s *MemoryStore) MarkUsedAtomically(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.byID[id]
	if rec == nil || !rec.ValidAt(s.now()) {
		return false, nil
	}
	rec.Used = true
	return true, nil
}

// InvalidateAllForAccount marks every outstanding record of the account used.
func (s *MemoryStore) InvalidateAllForAccount(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(accountID)
	return nil
}

func (s *MemoryStore) invalidateLocked(accountID string) {
	for id := range s.byAccount[accountID] {
		if rec := s.byID[id]; rec != nil {
			rec.Used = true
		}
	}
}

// PurgeExpired deletes records that expired before cutoff and returns how
// many were removed.
func (s *MemoryStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.byID {
		if !rec.ExpiresAt.Before(cutoff) {
			continue
		}
		delete(s.byID, id)
		delete(s.byFingerprint, rec.Fingerprint)
		if ids := s.byAccount[rec.AccountID]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.byAccount, rec.AccountID)
			}
		}
		removed++
	}
	return removed, nil
}

// Len returns the number of stored records, valid or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
