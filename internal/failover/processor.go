package failover

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rfoltyns/esfailover/internal/keyseq"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// RetryProcessor pulls a bounded batch of queued items and hands each one to
// every registered listener. Items are removed once notified, whatever the
// listeners return. Entries that are not failed items are released and
// removed.
type RetryProcessor struct {
	current   func() *keyseq.KeySequence
	store     keyseq.Store
	listeners func() []RetryListener
	syncer    interface{ Sync() error }
	batchSize int64
	backoff   time.Duration
	// gate is held for writing while reader keys are pulled; Deliver holds it
	// for reading across writer key allocation and Put.
	gate *sync.RWMutex
	// passMu serializes passes so reader keys are committed in order.
	passMu sync.Mutex
	c      *counters
	log    logpkg.Logger
}

// Run waits for the backoff, then runs one Retry pass. Panics are logged.
func (p *RetryProcessor) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("retry pass panicked", logpkg.F("panic", r))
		}
	}()
	if p.backoff > 0 {
		t := time.NewTimer(p.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if ctx.Err() != nil {
		return
	}
	p.Retry()
}

// Retry processes up to batchSize available items and returns how many were
// handed to listeners. Every pass persists the cursors, which also renews the
// sequence claim while the queue is idle.
func (p *RetryProcessor) Retry() int {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	seq := p.current()
	if seq == nil {
		p.log.Debug("no key sequence claimed, skipping retry")
		return 0
	}
	retried, pulled := p.drain(seq)

	if err := p.syncer.Sync(); err != nil {
		p.log.Warn("failed to persist sequence cursors", logpkg.Err(err))
	}
	if retried > 0 {
		p.log.Debug("retry pass finished", logpkg.Int("retried", retried), logpkg.Int("pulled", pulled))
	}
	return retried
}

// drain pulls one batch and commits the reader index up to the first key whose
// entry could not be read or removed.
func (p *RetryProcessor) drain(seq *keyseq.KeySequence) (retried, pulled int) {
	n := min(p.batchSize, seq.ReaderKeysAvailable())
	if n <= 0 {
		return 0, 0
	}

	p.gate.Lock()
	keys := slices.Collect(seq.NextReaderKeys(n))
	p.gate.Unlock()

	listeners := p.listeners()
	committable := true
	for _, key := range keys {
		done := p.process(key, listeners, &retried)
		if committable && done {
			seq.Commit(key.Index())
		} else {
			committable = false
		}
	}
	return retried, len(keys)
}

// process handles one pulled key and reports whether its entry is gone.
func (p *RetryProcessor) process(key keyseq.Key, listeners []RetryListener, retried *int) bool {
	v, ok, err := p.store.Get(key)
	if err != nil {
		p.log.Warn("failed to read queued item", logpkg.Str("key", key.String()), logpkg.Err(err))
		return false
	}
	if !ok {
		p.c.orphaned.Add(1)
		p.log.Debug("orphaned key", logpkg.Str("key", key.String()))
		return true
	}

	item, isItem := v.(*FailedItem)
	if !isItem {
		p.c.foreign.Add(1)
		p.log.Warn("unexpected value in failover store", logpkg.Str("key", key.String()), logpkg.Str("type", fmt.Sprintf("%T", v)))
		if r, ok := v.(Releasable); ok {
			r.Release()
		}
		return p.remove(key)
	}

	for _, l := range listeners {
		p.notify(l, item)
	}
	p.c.retried.Add(1)
	*retried++
	removed := p.remove(key)
	item.Release()
	return removed
}

func (p *RetryProcessor) remove(key keyseq.Key) bool {
	if err := p.store.Remove(key); err != nil {
		p.log.Warn("failed to remove queued entry", logpkg.Str("key", key.String()), logpkg.Err(err))
		return false
	}
	return true
}

func (p *RetryProcessor) notify(l RetryListener, item *FailedItem) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("retry listener panicked",
				logpkg.Str("target", item.Info.TargetName),
				logpkg.F("panic", r),
			)
		}
	}()
	if !l.Notify(item) {
		p.log.Debug("retry listener rejected item", logpkg.Str("target", item.Info.TargetName))
	}
}
