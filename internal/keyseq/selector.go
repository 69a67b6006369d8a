package keyseq

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// ErrNoRepository is returned when a selector is used before Attach.
var ErrNoRepository = errors.New("keyseq: no repository attached to selector")

// ClaimOutcome tags the result of a claim attempt.
type ClaimOutcome int

const (
	ClaimNone ClaimOutcome = iota
	// ClaimCreated: no config existed; a new one was created at the floor.
	ClaimCreated
	// ClaimReused: the config was already owned by this selector's owner.
	ClaimReused
	// ClaimStaleReclaimed: the config was expired or unowned and was taken over.
	ClaimStaleReclaimed
	// ClaimContended: another owner holds a live claim.
	ClaimContended
	// ClaimInconsistent: ownership changed while claiming; retry later.
	ClaimInconsistent
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimCreated:
		return "created"
	case ClaimReused:
		return "reused"
	case ClaimStaleReclaimed:
		return "stale-reclaimed"
	case ClaimContended:
		return "contended"
	case ClaimInconsistent:
		return "inconsistent"
	default:
		return "none"
	}
}

// Claimed reports whether the outcome produced a usable sequence.
func (o ClaimOutcome) Claimed() bool {
	return o == ClaimCreated || o == ClaimReused || o == ClaimStaleReclaimed
}

// NewOwnerID returns a random positive owner id.
func NewOwnerID() int64 {
	u := uuid.New()
	id := int64(binary.BigEndian.Uint64(u[:8]) >> 1)
	if id == 0 {
		id = 1
	}
	return id
}

// SelectorOption configures a SingleKeySequenceSelector.
type SelectorOption func(*SingleKeySequenceSelector)

// WithOwnerID pins the owner id instead of generating one.
func WithOwnerID(id int64) SelectorOption {
	return func(s *SingleKeySequenceSelector) { s.ownerID = id }
}

// WithSelectorLogger sets the logger.
func WithSelectorLogger(l logpkg.Logger) SelectorOption {
	return func(s *SingleKeySequenceSelector) { s.log = l }
}

// WithClock overrides time.Now for expiry decisions.
func WithClock(now func() time.Time) SelectorOption {
	return func(s *SingleKeySequenceSelector) { s.now = now }
}

// SingleKeySequenceSelector claims exactly one sequence id. Once claimed, the
// sequence is cached and returned without consulting the repository again.
type SingleKeySequenceSelector struct {
	seqID   int64
	ownerID int64
	log     logpkg.Logger
	now     func() time.Time

	// mu serializes claiming, syncing and closing.
	mu      sync.Mutex
	repo    *Repository
	outcome ClaimOutcome
	current atomic.Pointer[KeySequence]
}

// NewSingleKeySequenceSelector builds a selector for seqID (must be > 0).
func NewSingleKeySequenceSelector(seqID int64, opts ...SelectorOption) *SingleKeySequenceSelector {
	s := &SingleKeySequenceSelector{seqID: seqID, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.ownerID == 0 {
		s.ownerID = NewOwnerID()
	}
	if s.log == nil {
		s.log = logpkg.NewNopLogger()
	}
	s.log = s.log.WithComponent("keyseq-selector")
	return s
}

// Attach binds the repository used for claims.
func (s *SingleKeySequenceSelector) Attach(repo *Repository) {
	s.mu.Lock()
	s.repo = repo
	s.mu.Unlock()
}

func (s *SingleKeySequenceSelector) SeqID() int64   { return s.seqID }
func (s *SingleKeySequenceSelector) OwnerID() int64 { return s.ownerID }

// FirstAvailable returns the claimed sequence, claiming it on first success.
// A nil sequence with a non-claim outcome means "not now"; callers retry on a
// later cycle.
func (s *SingleKeySequenceSelector) FirstAvailable(ctx context.Context) (*KeySequence, ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, ClaimNone, ErrNoRepository
	}
	if s.seqID <= 0 {
		return nil, ClaimNone, errors.New("keyseq: sequence id must be positive")
	}
	if cur := s.current.Load(); cur != nil {
		return cur, s.outcome, nil
	}

	all, err := s.repo.GetAll()
	if err != nil {
		return nil, ClaimNone, err
	}
	var found *KeySequenceConfig
	for _, cfg := range all {
		if cfg.SeqID() == s.seqID {
			found = cfg
			break
		}
	}

	if found == nil {
		cfg := NewSequenceAtFloor(s.seqID, s.ownerID)
		if _, err := s.repo.Persist(cfg); err != nil {
			return nil, ClaimNone, err
		}
		return s.claim(cfg, ClaimCreated), ClaimCreated, nil
	}

	now := s.now().UnixMilli()
	switch {
	case found.OwnerID() == 0 || found.ExpireAt() < now:
		ok, err := s.repo.ConsistencyCheck(ctx, found)
		if err != nil || !ok {
			return nil, ClaimInconsistent, err
		}
		found.SetOwnerID(s.ownerID)
		if _, err := s.repo.Persist(found); err != nil {
			return nil, ClaimNone, err
		}
		return s.claim(found, ClaimStaleReclaimed), ClaimStaleReclaimed, nil

	case found.OwnerID() == s.ownerID:
		return s.claim(found, ClaimReused), ClaimReused, nil

	default:
		ok, err := s.repo.ConsistencyCheck(ctx, found)
		if err != nil {
			return nil, ClaimNone, err
		}
		if ok {
			s.log.Info("sequence claimed by another owner",
				logpkg.Int64("seq_id", s.seqID),
				logpkg.Int64("owner_id", found.OwnerID()),
				logpkg.Int64("expire_at", found.ExpireAt()),
			)
			return nil, ClaimContended, nil
		}
		current, present, err := s.repo.Get(found.Key())
		if err != nil {
			return nil, ClaimNone, err
		}
		if present && current.OwnerID() == s.ownerID {
			return s.claim(current, ClaimReused), ClaimReused, nil
		}
		return nil, ClaimInconsistent, nil
	}
}

func (s *SingleKeySequenceSelector) claim(cfg *KeySequenceConfig, outcome ClaimOutcome) *KeySequence {
	seq := NewKeySequence(cfg)
	s.outcome = outcome
	s.current.Store(seq)
	s.log.Info("sequence claimed",
		logpkg.Int64("seq_id", cfg.SeqID()),
		logpkg.Int64("owner_id", s.ownerID),
		logpkg.Str("outcome", outcome.String()),
		logpkg.Int64("reader_index", cfg.ReaderIndex()),
		logpkg.Int64("writer_index", cfg.WriterIndex()),
	)
	return seq
}

// CurrentKeySequence returns a supplier of the claimed sequence (nil before
// the first successful claim and after Close).
func (s *SingleKeySequenceSelector) CurrentKeySequence() func() *KeySequence {
	return s.current.Load
}

// Sync persists the writer cursor and the committed reader index of the
// claimed sequence, renewing its expiry. Snapshots are taken under the
// selector lock so persisted cursors never regress.
func (s *SingleKeySequenceSelector) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Load()
	if cur == nil || s.repo == nil {
		return nil
	}
	stored, err := s.repo.Renew(cur.Durable())
	if err != nil {
		return err
	}
	cur.Config(true).SetExpireAt(stored.ExpireAt())
	return nil
}

// Close persists the final cursors with the owner cleared so that the next
// selector for this id can claim it without waiting for expiry. Keys pulled
// but never committed are handed over as pending.
func (s *SingleKeySequenceSelector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Swap(nil)
	if cur == nil || s.repo == nil {
		return nil
	}
	final := cur.Durable()
	final.SetOwnerID(0)
	_, err := s.repo.Renew(final)
	return err
}
