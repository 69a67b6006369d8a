package keyseq

import (
	"iter"
	"sync/atomic"
)

// KeySequence hands out writer and reader keys of one logical sequence.
// Writer and reader cursors advance independently and lock-free.
//
// The reader cursor moves when a key is pulled. The committed reader index
// trails it and only moves once the entries up to it are gone from the store;
// it is the reader position that gets persisted.
type KeySequence struct {
	cfg       *KeySequenceConfig
	committed atomic.Int64
}

// NewKeySequence wraps cfg; cfg becomes the sequence's live state.
func NewKeySequence(cfg *KeySequenceConfig) *KeySequence {
	s := &KeySequence{cfg: cfg}
	s.committed.Store(cfg.readerIndex.Load())
	return s
}

// SeqID returns the logical sequence id.
func (s *KeySequence) SeqID() int64 { return s.cfg.seqID }

// NextWriterKey advances the writer cursor and returns the key at its new position.
func (s *KeySequence) NextWriterKey() Key {
	return NewKey(s.cfg.seqID, s.cfg.writerIndex.Add(1))
}

// NextReaderKey advances the reader cursor by one if it is behind the writer
// cursor. It returns false without advancing when nothing is available or when
// a concurrent reader moved the cursor first.
func (s *KeySequence) NextReaderKey() (Key, bool) {
	r := s.cfg.readerIndex.Load()
	if r >= s.cfg.writerIndex.Load() {
		return Key{}, false
	}
	if !s.cfg.readerIndex.CompareAndSwap(r, r+1) {
		return Key{}, false
	}
	return NewKey(s.cfg.seqID, r+1), true
}

// ReaderKeysAvailable is writerIndex - readerIndex.
func (s *KeySequence) ReaderKeysAvailable() int64 {
	r := s.cfg.readerIndex.Load()
	return s.cfg.writerIndex.Load() - r
}

// NextReaderKeys returns up to limit reader keys, each claimed on pull. The
// returned sequence is single-use: ranging over it again continues from where
// the previous loop stopped and yields nothing once exhausted.
func (s *KeySequence) NextReaderKeys(limit int64) iter.Seq[Key] {
	remaining := limit
	return func(yield func(Key) bool) {
		for remaining > 0 {
			remaining--
			k, ok := s.NextReaderKey()
			if !ok {
				remaining = 0
				return
			}
			if !yield(k) {
				return
			}
		}
	}
}

// Config returns the live state when live is true, otherwise a snapshot.
func (s *KeySequence) Config(live bool) *KeySequenceConfig {
	if live {
		return s.cfg
	}
	return s.cfg.Copy()
}

// Commit marks every reader key up to index as processed. The committed index
// never moves backwards and never passes the reader cursor.
func (s *KeySequence) Commit(index int64) {
	for {
		c := s.committed.Load()
		if index <= c || index > s.cfg.readerIndex.Load() {
			return
		}
		if s.committed.CompareAndSwap(c, index) {
			return
		}
	}
}

// CommittedReaderIndex returns the highest committed reader index.
func (s *KeySequence) CommittedReaderIndex() int64 { return s.committed.Load() }

// Durable returns a snapshot carrying the committed reader index instead of
// the live one.
func (s *KeySequence) Durable() *KeySequenceConfig {
	c := s.cfg.Copy()
	c.readerIndex.Store(s.committed.Load())
	return c
}
