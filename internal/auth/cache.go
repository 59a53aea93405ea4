// Package auth wraps the storage layer's session contract with the
// look-aside cache idiom the gateway this module grew out of used for API
// key lookups: resolve once against the durable store, then serve repeat
// lookups for the same key out of a bounded W-TinyLFU cache until it's
// invalidated or falls out on TTL.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/storage"
	"github.com/maypok86/otter/v2"
)

const (
	// cacheTTL is short enough to pick up a revoked or ratcheted session
	// promptly; every authenticated request re-persists the bumped serial
	// anyway, so staleness only matters within this window.
	cacheTTL    = 10 * time.Second
	cacheMaxLen = 50_000
)

type sessionKey struct {
	userID    string
	sessionID string
}

// CachedSessionStore decorates a storage.SessionStore with an in-process
// cache of recently-read sessions, keyed by (userID, sessionID). Every
// mutation goes through to the backing store first and only then updates
// or invalidates the cache, so the cache can never observe a write the
// store rejected.
type CachedSessionStore struct {
	storage.SessionStore
	cache *otter.Cache[sessionKey, *warden.Session]

	mu     sync.Mutex
	byUser map[string]map[string]struct{} // userID -> known cached session ids
}

// NewCachedSessionStore wraps store with a bounded read cache.
func NewCachedSessionStore(store storage.SessionStore) (*CachedSessionStore, error) {
	c, err := otter.New(&otter.Options[sessionKey, *warden.Session]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[sessionKey, *warden.Session](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: create session cache: %w", err)
	}
	return &CachedSessionStore{
		SessionStore: store,
		cache:        c,
		byUser:       make(map[string]map[string]struct{}),
	}, nil
}

// Get serves from cache when present, otherwise falls through to the store
// and populates the cache with the result.
func (c *CachedSessionStore) Get(ctx context.Context, userID, sessionID string) (*warden.Session, error) {
	key := sessionKey{userID, sessionID}
	if sess, ok := c.cache.GetIfPresent(key); ok {
		return sess, nil
	}
	sess, err := c.SessionStore.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	c.remember(key, sess)
	return sess, nil
}

// Put writes through to the store, then refreshes the cache entry with the
// store's (possibly session-ID-assigning) result.
func (c *CachedSessionStore) Put(ctx context.Context, session *warden.Session) (*warden.Session, error) {
	sess, err := c.SessionStore.Put(ctx, session)
	if err != nil {
		return nil, err
	}
	c.remember(sessionKey{sess.UserID, sess.SessionID}, sess)
	return sess, nil
}

// Delete writes through to the store and invalidates the cache entry.
func (c *CachedSessionStore) Delete(ctx context.Context, userID, sessionID string) error {
	if err := c.SessionStore.Delete(ctx, userID, sessionID); err != nil {
		return err
	}
	c.invalidate(userID, sessionID)
	return nil
}

// DeleteAll writes through to the store and invalidates every cached
// session for userID that this process has seen.
func (c *CachedSessionStore) DeleteAll(ctx context.Context, userID string) error {
	if err := c.SessionStore.DeleteAll(ctx, userID); err != nil {
		return err
	}
	c.mu.Lock()
	known := c.byUser[userID]
	delete(c.byUser, userID)
	c.mu.Unlock()

	for sessionID := range known {
		c.cache.Invalidate(sessionKey{userID, sessionID})
	}
	return nil
}

// NewForUser writes through to the store and seeds the cache with the
// freshly minted session.
func (c *CachedSessionStore) NewForUser(ctx context.Context, userID string, ctime int64, clientPublicKey [32]byte) (*warden.Session, error) {
	sess, err := c.SessionStore.NewForUser(ctx, userID, ctime, clientPublicKey)
	if err != nil {
		return nil, err
	}
	c.remember(sessionKey{sess.UserID, sess.SessionID}, sess)
	return sess, nil
}

func (c *CachedSessionStore) remember(key sessionKey, sess *warden.Session) {
	c.cache.Set(key, sess)

	c.mu.Lock()
	defer c.mu.Unlock()
	known, ok := c.byUser[key.userID]
	if !ok {
		known = make(map[string]struct{})
		c.byUser[key.userID] = known
	}
	known[key.sessionID] = struct{}{}
}

func (c *CachedSessionStore) invalidate(userID, sessionID string) {
	c.cache.Invalidate(sessionKey{userID, sessionID})

	c.mu.Lock()
	defer c.mu.Unlock()
	if known, ok := c.byUser[userID]; ok {
		delete(known, sessionID)
	}
}
