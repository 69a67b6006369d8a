package keyseq

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRepository(t *testing.T) (*Repository, *MemStore, *fakeClock) {
	t.Helper()
	store := NewMemStore()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	repo := NewRepository(store, RepositoryOptions{
		Expiry: 10 * time.Second,
		Now:    clock.Now,
	})
	return repo, store, clock
}

func TestRepositoryPersistGetRoundTrip(t *testing.T) {
	repo, _, clock := newTestRepository(t)

	cfg := NewKeySequenceConfig(3, 99, 10, 20, 0)
	stored, err := repo.Persist(cfg)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	want := clock.Now().Add(10 * time.Second).UnixMilli()
	if cfg.ExpireAt() != want || stored.ExpireAt() != want {
		t.Fatalf("expireAt=%d stored=%d want %d", cfg.ExpireAt(), stored.ExpireAt(), want)
	}

	got, ok, err := repo.Get(cfg.Key())
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !got.Equal(cfg) {
		t.Fatalf("got %s want %s", got, cfg)
	}

	all, err := repo.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 || !all[0].Equal(cfg) {
		t.Fatalf("get all = %v", all)
	}
}

func TestRepositoryGetReturnsCopy(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	cfg := NewSequenceAtFloor(1, 5)
	if _, err := repo.Persist(cfg); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, _, _ := repo.Get(cfg.Key())
	got.SetOwnerID(77)
	again, _, _ := repo.Get(cfg.Key())
	if again.OwnerID() != 5 {
		t.Fatalf("stored config mutated through Get result: owner=%d", again.OwnerID())
	}
}

func TestRepositoryPersistThenPurge(t *testing.T) {
	repo, store, _ := newTestRepository(t)

	cfg := NewSequenceAtFloor(2, 1)
	if _, err := repo.Persist(cfg); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := repo.Purge(cfg); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if ok, _ := repo.Contains(cfg.Key()); ok {
		t.Fatalf("entry still present after purge")
	}
	all, err := repo.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("get all after purge = %v", all)
	}
	v, ok, _ := store.Get(DirectoryKey)
	if !ok {
		t.Fatalf("directory missing")
	}
	if v.(*KeySequenceConfigKeys).Contains(cfg.Key()) {
		t.Fatalf("directory still lists purged key")
	}
}

func TestRepositoryDoesNotRegisterPreexistingEntries(t *testing.T) {
	repo, store, _ := newTestRepository(t)

	cfg := NewSequenceAtFloor(4, 1)
	if err := store.Put(cfg.Key(), cfg.Copy()); err != nil {
		t.Fatalf("raw put: %v", err)
	}
	if _, err := repo.Persist(cfg); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if ok, _ := repo.Contains(cfg.Key()); !ok {
		t.Fatalf("entry should exist")
	}
	all, err := repo.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("unregistered entry surfaced through GetAll: %v", all)
	}
}

func TestRepositoryPersistIsIdempotentForDirectory(t *testing.T) {
	repo, store, _ := newTestRepository(t)
	cfg := NewSequenceAtFloor(1, 1)
	for i := 0; i < 3; i++ {
		if _, err := repo.Persist(cfg); err != nil {
			t.Fatalf("persist %d: %v", i, err)
		}
	}
	if got := store.Size(); got != 2 {
		t.Fatalf("store size %d want 2 (config + directory)", got)
	}
	all, _ := repo.GetAll()
	if len(all) != 1 {
		t.Fatalf("get all = %d entries", len(all))
	}
}

func TestRepositoryGetAllSkipsDanglingKeys(t *testing.T) {
	repo, store, _ := newTestRepository(t)
	cfg := NewSequenceAtFloor(1, 1)
	if _, err := repo.Persist(cfg); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := store.Remove(cfg.Key()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	all, err := repo.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("dangling key resolved: %v", all)
	}
}

func TestRepositoryGetWrongType(t *testing.T) {
	repo, store, _ := newTestRepository(t)
	key := ConfigKey(9)
	if err := store.Put(key, []byte("not a config")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, _, err := repo.Get(key); err == nil {
		t.Fatalf("expected type error")
	}
}

func TestConsistencyCheck(t *testing.T) {
	repo, store, _ := newTestRepository(t)
	cfg := NewSequenceAtFloor(1, 10)
	if _, err := repo.Persist(cfg); err != nil {
		t.Fatalf("persist: %v", err)
	}

	ok, err := repo.ConsistencyCheck(context.Background(), cfg)
	if err != nil || !ok {
		t.Fatalf("unchanged owner: ok=%v err=%v", ok, err)
	}

	changed := cfg.Copy()
	changed.SetOwnerID(11)
	if err := store.Put(cfg.Key(), changed); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = repo.ConsistencyCheck(context.Background(), cfg)
	if err != nil || ok {
		t.Fatalf("changed owner: ok=%v err=%v", ok, err)
	}

	ok, err = repo.ConsistencyCheck(context.Background(), NewSequenceAtFloor(2, 10))
	if err != nil || ok {
		t.Fatalf("absent entry: ok=%v err=%v", ok, err)
	}
}

func TestConsistencyCheckHonorsContext(t *testing.T) {
	store := NewMemStore()
	repo := NewRepository(store, RepositoryOptions{ConsistencyCheckDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := repo.ConsistencyCheck(ctx, NewSequenceAtFloor(1, 1))
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestRepositoryClosedStore(t *testing.T) {
	repo, store, _ := newTestRepository(t)
	_ = store.Close()
	if _, err := repo.Persist(NewSequenceAtFloor(1, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
}

func TestRepositoryRenewWritesOnlyTheConfig(t *testing.T) {
	repo, store, clock := newTestRepository(t)
	cfg := NewSequenceAtFloor(2, 1)

	stored, err := repo.Renew(cfg)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	want := clock.Now().Add(10 * time.Second).UnixMilli()
	if stored.ExpireAt() != want || cfg.ExpireAt() != want {
		t.Fatalf("expireAt stored=%d cfg=%d want %d", stored.ExpireAt(), cfg.ExpireAt(), want)
	}
	if store.Size() != 1 {
		t.Fatalf("renew touched the directory: size %d", store.Size())
	}
	if ok, _ := store.ContainsKey(DirectoryKey); ok {
		t.Fatalf("renew registered the config")
	}
}
