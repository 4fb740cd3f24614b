package notification

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store persists notifications. Every user-facing operation is scoped by
// userID; a notification owned by someone else behaves as missing.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

type memoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Notification
}

// NewMemoryStore keeps notifications in process memory.
func NewMemoryStore() Store {
	return &memoryStore{items: make(map[uuid.UUID]*Notification)}
}

func (s *memoryStore) Create(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.items[n.ID] = &cp
	return nil
}

func (s *memoryStore) ListByUser(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	s.mu.RLock()
	var matched []*Notification
	for _, n := range s.items {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*Notification{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (s *memoryStore) UnreadCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) owned(userID string, id uuid.UUID) (*Notification, error) {
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *memoryStore) MarkRead(_ context.Context, userID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.owned(userID, id)
	if err != nil {
		return err
	}
	n.IsRead = true
	return nil
}

func (s *memoryStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) Delete(_ context.Context, userID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.owned(userID, id); err != nil {
		return err
	}
	delete(s.items, id)
	return nil
}
