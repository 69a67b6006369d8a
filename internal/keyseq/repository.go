package keyseq

import (
	"context"
	"fmt"
	"sync"
	"time"

	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// DefaultClaimExpiry is used when a Repository is built without an explicit expiry.
const DefaultClaimExpiry = 30 * time.Second

// RepositoryOptions configures a Repository.
type RepositoryOptions struct {
	// Expiry is added to now on every Persist. Zero means DefaultClaimExpiry.
	Expiry time.Duration
	// ConsistencyCheckDelay is waited before ConsistencyCheck re-reads the store.
	ConsistencyCheckDelay time.Duration
	// Now overrides the clock. Optional.
	Now    func() time.Time
	Logger logpkg.Logger
}

// Repository stores KeySequenceConfig entries and keeps the directory of
// registered config keys at DirectoryKey.
type Repository struct {
	store  Store
	expiry time.Duration
	delay  time.Duration
	now    func() time.Time
	log    logpkg.Logger

	// mu serializes directory read-modify-write cycles.
	mu sync.Mutex
}

// NewRepository creates a Repository over store.
func NewRepository(store Store, opts RepositoryOptions) *Repository {
	if opts.Expiry == 0 {
		opts.Expiry = DefaultClaimExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Repository{
		store:  store,
		expiry: opts.Expiry,
		delay:  opts.ConsistencyCheckDelay,
		now:    opts.Now,
		log:    opts.Logger.WithComponent("keyseq-repository"),
	}
}

// Persist writes cfg at its key with a fresh expiry and returns the stored
// snapshot. cfg's expiry is updated to match. The key is added to the
// directory only when no raw entry existed at that key before the call.
func (r *Repository) Persist(cfg *KeySequenceConfig) (*KeySequenceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cfg.Key()
	existed, err := r.store.ContainsKey(key)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", key, err)
	}

	expireAt := r.now().Add(r.expiry).UnixMilli()
	cfg.SetExpireAt(expireAt)
	snapshot := cfg.Copy()
	if err := r.store.Put(key, snapshot); err != nil {
		return nil, fmt.Errorf("persist %s: %w", key, err)
	}

	if !existed {
		dir, err := r.directory()
		if err != nil {
			return nil, err
		}
		if dir.Add(key) {
			if err := r.store.Put(DirectoryKey, dir); err != nil {
				return nil, fmt.Errorf("register %s: %w", key, err)
			}
			r.log.Debug("registered sequence config", logpkg.Int64("seq_id", cfg.SeqID()))
		}
	}
	return snapshot, nil
}

// Renew writes cfg with a fresh expiry and nothing else. It is the hot-path
// counterpart of Persist for configs that are already registered.
func (r *Repository) Renew(cfg *KeySequenceConfig) (*KeySequenceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg.SetExpireAt(r.now().Add(r.expiry).UnixMilli())
	snapshot := cfg.Copy()
	if err := r.store.Put(cfg.Key(), snapshot); err != nil {
		return nil, fmt.Errorf("renew %s: %w", cfg.Key(), err)
	}
	return snapshot, nil
}

// Purge removes the config entry and unregisters its key.
func (r *Repository) Purge(cfg *KeySequenceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cfg.Key()
	if err := r.store.Remove(key); err != nil {
		return fmt.Errorf("purge %s: %w", key, err)
	}
	dir, err := r.directory()
	if err != nil {
		return err
	}
	if dir.Remove(key) {
		if err := r.store.Put(DirectoryKey, dir); err != nil {
			return fmt.Errorf("unregister %s: %w", key, err)
		}
	}
	return nil
}

// Get returns a copy of the config stored at key.
func (r *Repository) Get(key Key) (*KeySequenceConfig, bool, error) {
	v, ok, err := r.store.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	cfg, isCfg := v.(*KeySequenceConfig)
	if !isCfg {
		return nil, false, fmt.Errorf("keyseq: value at %s is %T, not a sequence config", key, v)
	}
	return cfg.Copy(), true, nil
}

// Contains reports whether any raw entry exists at key.
func (r *Repository) Contains(key Key) (bool, error) {
	return r.store.ContainsKey(key)
}

// GetAll returns configs for every registered key that still resolves.
func (r *Repository) GetAll() ([]*KeySequenceConfig, error) {
	r.mu.Lock()
	dir, err := r.directory()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]*KeySequenceConfig, 0, dir.Len())
	for _, key := range dir.Keys() {
		cfg, ok, err := r.Get(key)
		if err != nil {
			r.log.Warn("skipping unreadable sequence config", logpkg.Str("key", key.String()), logpkg.Err(err))
			continue
		}
		if ok {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// ConsistencyCheck waits ConsistencyCheckDelay, then re-reads the stored config
// and reports whether its owner still equals expected's owner.
func (r *Repository) ConsistencyCheck(ctx context.Context, expected *KeySequenceConfig) (bool, error) {
	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
	current, ok, err := r.Get(expected.Key())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if current.OwnerID() != expected.OwnerID() {
		r.log.Info("sequence ownership changed during claim",
			logpkg.Int64("seq_id", expected.SeqID()),
			logpkg.Int64("expected_owner", expected.OwnerID()),
			logpkg.Int64("current_owner", current.OwnerID()),
		)
		return false, nil
	}
	return true, nil
}

// directory loads a private copy of the directory. Callers hold r.mu.
func (r *Repository) directory() (*KeySequenceConfigKeys, error) {
	v, ok, err := r.store.Get(DirectoryKey)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}
	if !ok {
		return NewKeySequenceConfigKeys(), nil
	}
	dir, isDir := v.(*KeySequenceConfigKeys)
	if !isDir {
		return nil, fmt.Errorf("keyseq: value at directory key is %T", v)
	}
	return NewKeySequenceConfigKeys(dir.Keys()...), nil
}
