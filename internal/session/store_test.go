package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"donorhub/backend/internal/security"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(clock *fakeClock, opts ...Option) *MemoryStore {
	return NewMemoryStore(append([]Option{WithClock(clock.Now)}, opts...)...)
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	sess, err := store.Create("user-1", "access-1", "10.0.0.1", "ua", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Create should allocate a session id")
	}
	if !sess.LastActivityAt.Equal(clock.Now()) {
		t.Errorf("LastActivityAt = %v, want %v", sess.LastActivityAt, clock.Now())
	}
	if want := clock.Now().Add(SlidingWindow); !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, want)
	}

	got, ok := store.Get(sess.ID)
	if !ok {
		t.Fatal("Get should find the new session")
	}
	if got.UserID != "user-1" || got.AccessToken != "access-1" || got.IPAddress != "10.0.0.1" || got.UserAgent != "ua" {
		t.Errorf("Get = %+v", got)
	}
	if store.CountForUser("user-1") != 1 {
		t.Errorf("CountForUser = %d, want 1", store.CountForUser("user-1"))
	}
}

func TestMemoryStore_CreateWithID(t *testing.T) {
	store := newTestStore(newFakeClock())
	sess, err := store.Create("user-1", "a", "", "", "fixed-id")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", sess.ID)
	}
	if _, err := store.Create("user-2", "b", "", "", "fixed-id"); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("duplicate Create err = %v, want ErrDuplicateSession", err)
	}
	if _, err := store.Create("", "b", "", "", ""); !errors.Is(err, ErrMissingUser) {
		t.Errorf("Create without user err = %v, want ErrMissingUser", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := newTestStore(newFakeClock())
	sess, _ := store.Create("user-1", "access-1", "", "", "s1")
	sess.UserID = "mallory"
	got, _ := store.Get("s1")
	if got.UserID != "user-1" {
		t.Error("mutating a returned session must not affect the store")
	}
	got.AccessToken = "changed"
	again, _ := store.Get("s1")
	if again.AccessToken != "access-1" {
		t.Error("mutating a Get result must not affect the store")
	}
}

func TestMemoryStore_TouchSlidesExpiry(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	sess, _ := store.Create("user-1", "a", "", "", "s1")

	clock.Advance(10 * time.Minute)
	if !store.Touch(sess.ID) {
		t.Fatal("Touch within the window should succeed")
	}
	got, _ := store.Get(sess.ID)
	if want := clock.Now().Add(SlidingWindow); !got.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt after touch = %v, want %v", got.ExpiresAt, want)
	}
	if !got.LastActivityAt.Equal(clock.Now()) {
		t.Errorf("LastActivityAt after touch = %v, want %v", got.LastActivityAt, clock.Now())
	}

	// Still live 14 minutes after the touch, past the original 15 minute deadline.
	clock.Advance(14 * time.Minute)
	if !store.Touch(sess.ID) {
		t.Error("session touched 14m ago should still be live")
	}
}

func TestMemoryStore_SlidingWindowBoundary(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	store.Create("user-1", "a", "", "", "s1")
	store.Create("user-1", "b", "", "", "s2")

	clock.Advance(SlidingWindow - time.Second)
	if !store.Touch("s1") {
		t.Error("Touch at T+W-1s should succeed")
	}

	clock.Advance(2 * time.Second) // T+W+1s for s2
	if store.Touch("s2") {
		t.Error("Touch at T+W+1s should fail")
	}
	if _, ok := store.Get("s2"); ok {
		t.Error("expired session should be gone")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1 (expired entry removed lazily)", store.Len())
	}
}

func TestMemoryStore_ExpiryIsExclusive(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	store.Create("user-1", "a", "", "", "s1")
	clock.Advance(SlidingWindow)
	if _, ok := store.Get("s1"); ok {
		t.Error("session must not be live at exactly its expiry")
	}
}

func TestMemoryStore_GetRemovesExpired(t *testing.T) {
	clock := newFakeClock()
	var evicted []string
	store := newTestStore(clock, WithEvictionHook(func(reason string, n int) {
		evicted = append(evicted, fmt.Sprintf("%s:%d", reason, n))
	}))
	store.Create("user-1", "a", "", "", "s1")
	store.SetRefreshToken("s1", "refresh-1")
	clock.Advance(SlidingWindow + time.Minute)

	if _, ok := store.Get("s1"); ok {
		t.Fatal("Get on expired session should return false")
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
	if store.CountForUser("user-1") != 0 {
		t.Error("user index should be cleaned")
	}
	if _, ok := store.GetByRefreshToken("refresh-1"); ok {
		t.Error("refresh index should be cleaned")
	}
	if len(evicted) != 1 || evicted[0] != EvictExpired+":1" {
		t.Errorf("evictions = %v, want [expired:1]", evicted)
	}
}

func TestMemoryStore_RefreshTokenIndex(t *testing.T) {
	store := newTestStore(newFakeClock())
	store.Create("user-1", "a", "", "", "s1")

	if _, ok := store.GetByRefreshToken("refresh-1"); ok {
		t.Fatal("unindexed refresh token should not resolve")
	}
	if !store.SetRefreshToken("s1", "refresh-1") {
		t.Fatal("SetRefreshToken should succeed on live session")
	}
	got, ok := store.GetByRefreshToken("refresh-1")
	if !ok || got.ID != "s1" {
		t.Fatalf("GetByRefreshToken = %+v, %v", got, ok)
	}
	if got.RefreshTokenHash != security.HashRefreshToken("refresh-1") {
		t.Errorf("RefreshTokenHash = %q, want digest of the token", got.RefreshTokenHash)
	}

	// Replacing the refresh token drops the old index entry.
	store.SetRefreshToken("s1", "refresh-2")
	if _, ok := store.GetByRefreshToken("refresh-1"); ok {
		t.Error("old refresh token should no longer resolve")
	}
	if _, ok := store.GetByRefreshToken("refresh-2"); !ok {
		t.Error("new refresh token should resolve")
	}
	if store.SetRefreshToken("missing", "x") {
		t.Error("SetRefreshToken on missing session should fail")
	}
	if _, ok := store.GetByRefreshToken(""); ok {
		t.Error("empty refresh token should not resolve")
	}
}

func TestMemoryStore_RefreshIndexRequiresMatchingDigest(t *testing.T) {
	store := newTestStore(newFakeClock())
	store.Create("user-1", "a", "", "", "s1")
	store.SetRefreshToken("s1", "refresh-1")

	// An index entry whose session no longer holds that digest is stale.
	key := security.HashRefreshToken("refresh-stale")
	store.mu.Lock()
	store.byRefresh[key] = "s1"
	store.mu.Unlock()

	if _, ok := store.GetByRefreshToken("refresh-stale"); ok {
		t.Error("token not held by the session should not resolve")
	}
	store.mu.Lock()
	_, kept := store.byRefresh[key]
	store.mu.Unlock()
	if kept {
		t.Error("stale index entry should be dropped")
	}
	if _, ok := store.GetByRefreshToken("refresh-1"); !ok {
		t.Error("current refresh token should still resolve")
	}
}

func TestMemoryStore_SetAccessTokenKeepsExpiry(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	sess, _ := store.Create("user-1", "a", "", "", "s1")
	clock.Advance(5 * time.Minute)
	if !store.SetAccessToken("s1", "b") {
		t.Fatal("SetAccessToken should succeed")
	}
	got, _ := store.Get("s1")
	if got.AccessToken != "b" {
		t.Errorf("AccessToken = %q, want b", got.AccessToken)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("SetAccessToken moved expiry from %v to %v", sess.ExpiresAt, got.ExpiresAt)
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	store := newTestStore(newFakeClock())
	store.Create("user-1", "a", "", "", "s1")
	store.SetRefreshToken("s1", "refresh-1")

	if !store.Remove("s1") {
		t.Fatal("Remove should report true for an existing session")
	}
	if store.Remove("s1") {
		t.Error("second Remove should report false")
	}
	if _, ok := store.Get("s1"); ok {
		t.Error("removed session should not be found")
	}
	if _, ok := store.GetByRefreshToken("refresh-1"); ok {
		t.Error("refresh index entry should be removed with the session")
	}
	if store.Touch("s1") {
		t.Error("Touch on removed session should fail")
	}
}

func TestMemoryStore_RemoveAllForUser(t *testing.T) {
	store := newTestStore(newFakeClock())
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("u1-%d", i)
		store.Create("user-1", "a", "", "", id)
		store.SetRefreshToken(id, "refresh-"+id)
	}
	store.Create("user-2", "b", "", "", "u2-0")

	if n := store.RemoveAllForUser("user-1"); n != 3 {
		t.Errorf("RemoveAllForUser = %d, want 3", n)
	}
	if n := store.RemoveAllForUser("user-1"); n != 0 {
		t.Errorf("second RemoveAllForUser = %d, want 0", n)
	}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("u1-%d", i)
		if _, ok := store.Get(id); ok {
			t.Errorf("session %s should be removed", id)
		}
		if _, ok := store.GetByRefreshToken("refresh-" + id); ok {
			t.Errorf("refresh index for %s should be removed", id)
		}
	}
	if _, ok := store.Get("u2-0"); !ok {
		t.Error("other user's session must survive")
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := newTestStore(newFakeClock())
	store.Create("user-1", "a", "", "", "s1")
	store.Create("user-2", "b", "", "", "s2")
	store.SetRefreshToken("s2", "r2")
	if n := store.Clear(); n != 2 {
		t.Errorf("Clear = %d, want 2", n)
	}
	if store.Len() != 0 || store.CountForUser("user-1") != 0 {
		t.Error("Clear should empty table and indices")
	}
	if _, ok := store.GetByRefreshToken("r2"); ok {
		t.Error("Clear should empty the refresh index")
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	store.Create("user-1", "a", "", "", "old")
	store.SetRefreshToken("old", "refresh-old")
	clock.Advance(10 * time.Minute)
	store.Create("user-1", "b", "", "", "young")

	clock.Advance(6 * time.Minute) // old is 16m idle, young 6m
	if n := store.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
	store.mu.Lock()
	_, orphan := store.byRefresh[security.HashRefreshToken("refresh-old")]
	refreshEntries := len(store.byRefresh)
	store.mu.Unlock()
	if orphan || refreshEntries != 0 {
		t.Errorf("refresh index should be empty after sweep, has %d entries", refreshEntries)
	}
	if _, ok := store.Get("young"); !ok {
		t.Error("young session should survive the sweep")
	}
}

func TestMemoryStore_SweepRemovesOrphanIndexEntries(t *testing.T) {
	store := newTestStore(newFakeClock())
	store.Create("user-1", "a", "", "", "s1")
	store.mu.Lock()
	store.byRefresh["dangling"] = "no-such-session"
	store.mu.Unlock()

	store.Sweep()

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.byRefresh["dangling"]; ok {
		t.Error("sweep should drop index entries pointing at missing sessions")
	}
}

func TestMemoryStore_StartStop(t *testing.T) {
	clock := newFakeClock()
	swept := make(chan int, 16)
	store := newTestStore(clock,
		WithSweepInterval(5*time.Millisecond),
		WithEvictionHook(func(reason string, n int) {
			if reason == EvictSweep {
				swept <- n
			}
		}),
	)
	store.Create("user-1", "a", "", "", "s1")
	clock.Advance(SlidingWindow + time.Second)

	store.Start()
	store.Start() // idempotent
	select {
	case n := <-swept:
		if n != 1 {
			t.Errorf("background sweep evicted %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("background sweep did not run")
	}
	store.Stop()
	store.Stop() // idempotent
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
}

func TestMemoryStore_StopBeforeStart(t *testing.T) {
	store := NewMemoryStore()
	done := make(chan struct{})
	go func() {
		store.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop before Start should return immediately")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", w%4)
			for i := 0; i < perWorker; i++ {
				sess, err := store.Create(user, "a", "", "", "")
				if err != nil {
					t.Errorf("Create: %v", err)
					return
				}
				store.SetRefreshToken(sess.ID, "r-"+sess.ID)
				store.Touch(sess.ID)
				store.Get(sess.ID)
				store.GetByRefreshToken("r-" + sess.ID)
				if i%3 == 0 {
					store.Remove(sess.ID)
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for u := 0; u < 4; u++ {
		total += store.CountForUser(fmt.Sprintf("user-%d", u))
	}
	if total != store.Len() {
		t.Errorf("user index holds %d sessions, table holds %d", total, store.Len())
	}
	removed := 0
	for u := 0; u < 4; u++ {
		removed += store.RemoveAllForUser(fmt.Sprintf("user-%d", u))
	}
	if removed != total {
		t.Errorf("RemoveAllForUser total = %d, want %d", removed, total)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d after removing everything", store.Len())
	}
}

func TestMemoryStore_RemoveAllForUserConcurrentWithCreate(t *testing.T) {
	store := newTestStore(newFakeClock())
	var created sync.WaitGroup
	var mu sync.Mutex
	ids := make([]string, 0, 200)

	created.Add(1)
	go func() {
		defer created.Done()
		for i := 0; i < 200; i++ {
			sess, err := store.Create("user-1", "a", "", "", "")
			if err == nil {
				mu.Lock()
				ids = append(ids, sess.ID)
				mu.Unlock()
			}
		}
	}()
	removed := 0
	for i := 0; i < 20; i++ {
		removed += store.RemoveAllForUser("user-1")
	}
	created.Wait()
	removed += store.RemoveAllForUser("user-1")

	if removed != len(ids) {
		t.Errorf("removed %d sessions in total, created %d: each must be counted exactly once", removed, len(ids))
	}
}
