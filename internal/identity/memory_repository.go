package identity

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]User
	index map[string]string // phone and readable id -> user id
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]User), index: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[user.ID]; exists {
		return errors.New("user exists")
	}
	if _, exists := r.index[user.Phone]; exists {
		return ErrPhoneTaken
	}
	if _, exists := r.index[user.ReadableID]; exists {
		return ErrAliasTaken
	}
	r.byID[user.ID] = user
	r.index[user.Phone] = user.ID
	r.index[user.ReadableID] = user.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findIndexed(phone)
}

func (r *memoryRepository) FindByReadableID(ctx context.Context, readableID string) (User, error) {
	return r.findIndexed(readableID)
}

func (r *memoryRepository) findIndexed(key string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[key]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.byID[id], nil
}
