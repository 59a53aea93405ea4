package auth

import (
	"context"
	"testing"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/storage/memory"
)

func TestCachedSessionStoreServesFromCache(t *testing.T) {
	backing := memory.New()
	cached, err := NewCachedSessionStore(backing)
	if err != nil {
		t.Fatalf("new cached session store: %v", err)
	}
	ctx := context.Background()

	sess, err := cached.NewForUser(ctx, "u1", 0, [32]byte{})
	if err != nil {
		t.Fatalf("new for user: %v", err)
	}

	// Delete directly from the backing store, bypassing the cache's
	// invalidation path, to prove Get is actually served from cache.
	backing.Delete(ctx, "u1", sess.SessionID)

	got, err := cached.Get(ctx, "u1", sess.SessionID)
	if err != nil {
		t.Fatalf("expected cached hit despite backing delete, got error: %v", err)
	}
	if got.SessionID != sess.SessionID {
		t.Fatalf("want session %q, got %q", sess.SessionID, got.SessionID)
	}
}

func TestCachedSessionStoreDeleteInvalidates(t *testing.T) {
	backing := memory.New()
	cached, err := NewCachedSessionStore(backing)
	if err != nil {
		t.Fatalf("new cached session store: %v", err)
	}
	ctx := context.Background()

	sess, _ := cached.NewForUser(ctx, "u1", 0, [32]byte{})
	cached.Get(ctx, "u1", sess.SessionID) // warm the cache

	if err := cached.Delete(ctx, "u1", sess.SessionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cached.Get(ctx, "u1", sess.SessionID); err != warden.ErrNotFound {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}

func TestCachedSessionStorePutRefreshesCache(t *testing.T) {
	backing := memory.New()
	cached, err := NewCachedSessionStore(backing)
	if err != nil {
		t.Fatalf("new cached session store: %v", err)
	}
	ctx := context.Background()

	sess, _ := cached.NewForUser(ctx, "u1", 0, [32]byte{})
	sess.Serial = 9
	if _, err := cached.Put(ctx, sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cached.Get(ctx, "u1", sess.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Serial != 9 {
		t.Fatalf("want serial 9 after put, got %d", got.Serial)
	}
}

func TestCachedSessionStoreDeleteAllInvalidatesEverything(t *testing.T) {
	backing := memory.New()
	cached, err := NewCachedSessionStore(backing)
	if err != nil {
		t.Fatalf("new cached session store: %v", err)
	}
	ctx := context.Background()

	a, _ := cached.NewForUser(ctx, "u1", 0, [32]byte{})
	b, _ := cached.NewForUser(ctx, "u1", 0, [32]byte{})
	cached.Get(ctx, "u1", a.SessionID)
	cached.Get(ctx, "u1", b.SessionID)

	if err := cached.DeleteAll(ctx, "u1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if _, err := cached.Get(ctx, "u1", a.SessionID); err != warden.ErrNotFound {
		t.Fatalf("want ErrNotFound for a, got %v", err)
	}
	if _, err := cached.Get(ctx, "u1", b.SessionID); err != warden.ErrNotFound {
		t.Fatalf("want ErrNotFound for b, got %v", err)
	}
}
