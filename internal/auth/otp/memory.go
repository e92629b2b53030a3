package otp

import (
	"context"
	"sync"
	"time"

	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	gocache "github.com/patrickmn/go-cache"
)

type record struct {
	fingerprint string
	expiresAt   time.Time
}

// MemoryStore keeps codes in process. Suitable for a single instance.
type MemoryStore struct {
	mu  sync.Mutex
	c   *gocache.Cache
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		c:   gocache.New(gocache.NoExpiration, 0),
		now: time.Now,
	}
}

// WithClock replaces the time source used for expiry checks.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Put(_ context.Context, userID, code string, ttl time.Duration) error {
	m.c.Set(userID, record{
		fingerprint: cryptox.FingerprintToken(code),
		expiresAt:   m.now().Add(ttl),
	}, ttl)
	return nil
}

func (m *MemoryStore) Consume(_ context.Context, userID, code string) (bool, error) {
	m.mu.Lock()
	v, ok := m.c.Get(userID)
	m.c.Delete(userID)
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	rec := v.(record)
	if !m.now().Before(rec.expiresAt) {
		return false, nil
	}
	return cryptox.EqualFingerprint(code, rec.fingerprint), nil
}

// DeleteExpired drops records whose TTL has passed.
func (m *MemoryStore) DeleteExpired() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.c.DeleteExpired()
	for userID, it := range m.c.Items() {
		if rec, ok := it.Object.(record); ok && !now.Before(rec.expiresAt) {
			m.c.Delete(userID)
		}
	}
}

// Len reports the number of stored records, expired or not.
func (m *MemoryStore) Len() int {
	return m.c.ItemCount()
}
