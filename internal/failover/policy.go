package failover

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	cronlib "github.com/robfig/cron/v3"

	"github.com/rfoltyns/esfailover/internal/keyseq"
	pebblestore "github.com/rfoltyns/esfailover/internal/storage/pebble"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

const (
	DefaultRetryDelay          = 10 * time.Second
	DefaultMonitorTaskInterval = 30 * time.Second
	DefaultRetryBackoff        = time.Second
)

// KeySequenceSelector resolves the sequence a policy writes to and reads from.
type KeySequenceSelector interface {
	Attach(repo *keyseq.Repository)
	FirstAvailable(ctx context.Context) (*keyseq.KeySequence, keyseq.ClaimOutcome, error)
	CurrentKeySequence() func() *keyseq.KeySequence
	Sync() error
	Close() error
}

// Options configures a Policy.
type Options struct {
	// FileName is the store directory. Ignored when Store is set.
	FileName string
	// NumberOfEntries bounds the store. Must be greater than 2.
	NumberOfEntries int64
	// AverageValueSize in bytes. Must be at least 1024.
	AverageValueSize int
	// BatchSize bounds items per retry pass. Must be at least 1.
	BatchSize int
	// RetryDelay between retry passes.
	RetryDelay time.Duration
	// RetryBackoff is waited at the start of each pass.
	RetryBackoff time.Duration
	Monitored    bool
	// MonitorTaskInterval between stats log lines when Monitored.
	MonitorTaskInterval time.Duration
	// ClaimExpiry and ConsistencyCheckDelay tune the sequence repository.
	// ClaimExpiry must exceed RetryDelay plus RetryBackoff.
	ClaimExpiry           time.Duration
	ConsistencyCheckDelay time.Duration
	Fsync                 pebblestore.FsyncMode
	// Selector is required.
	Selector KeySequenceSelector
	// Store replaces the pebble store. The policy takes ownership and closes it.
	Store keyseq.Store
	// OnCorruption is passed to the pebble store.
	OnCorruption CorruptionHandler
	Logger       logpkg.Logger
	// Registerer receives the policy's collectors. Optional.
	Registerer prometheus.Registerer
}

func (o *Options) validate() error {
	if o.Selector == nil {
		return fmt.Errorf("%w: key sequence selector is required", ErrConfiguration)
	}
	if o.Store == nil && o.FileName == "" {
		return fmt.Errorf("%w: file name is required", ErrConfiguration)
	}
	if o.NumberOfEntries <= 2 {
		return fmt.Errorf("%w: number of entries must be greater than 2, got %d", ErrConfiguration, o.NumberOfEntries)
	}
	if o.AverageValueSize < 1024 {
		return fmt.Errorf("%w: average value size must be at least 1024, got %d", ErrConfiguration, o.AverageValueSize)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrConfiguration, o.BatchSize)
	}
	if o.RetryDelay < 0 || o.RetryBackoff < 0 || o.MonitorTaskInterval < 0 || o.ClaimExpiry < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrConfiguration)
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.ClaimExpiry == 0 {
		o.ClaimExpiry = keyseq.DefaultClaimExpiry
	}
	// Each retry pass renews the claim.
	if o.ClaimExpiry <= o.RetryDelay+o.RetryBackoff {
		return fmt.Errorf("%w: claim expiry %s must exceed retry delay plus backoff %s",
			ErrConfiguration, o.ClaimExpiry, o.RetryDelay+o.RetryBackoff)
	}
	if o.MonitorTaskInterval == 0 {
		o.MonitorTaskInterval = DefaultMonitorTaskInterval
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
	return nil
}

// Policy queues failed items in a persistent store and redelivers them to
// listeners on a fixed delay.
type Policy struct {
	opts     Options
	store    keyseq.Store
	selector KeySequenceSelector
	current  func() *keyseq.KeySequence
	seqID    int64
	log      logpkg.Logger
	// copies is set when the store serializes values on Put.
	copies bool

	c          counters
	gate       sync.RWMutex
	processor  *RetryProcessor
	collectors []prometheus.Collector

	listenersMu sync.RWMutex
	listeners   []RetryListener

	// mu guards the lifecycle below.
	mu      sync.Mutex
	started bool
	stopped atomic.Bool
	cron    *cronlib.Cron
	cancel  context.CancelFunc
}

// New validates opts, opens the store and claims a key sequence. The store is
// closed again if the claim fails.
func New(ctx context.Context, opts Options) (*Policy, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger.WithComponent("failover")

	var owned []prometheus.Collector
	store := opts.Store
	if store == nil {
		mo := MapOptions{
			Path:             opts.FileName,
			MaxEntries:       opts.NumberOfEntries,
			AverageValueSize: opts.AverageValueSize,
			Fsync:            opts.Fsync,
			Logger:           opts.Logger,
			OnCorruption:     opts.OnCorruption,
		}
		if opts.Registerer != nil {
			sm := NewStoreMetrics()
			if err := opts.Registerer.Register(sm); err != nil {
				return nil, fmt.Errorf("%w: register store metrics: %w", ErrInitialization, err)
			}
			owned = append(owned, sm)
			mo.Metrics = sm
		}
		m, err := OpenMap(mo)
		if err != nil {
			unregisterAll(opts.Registerer, owned)
			return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
		}
		store = m
	}

	repo := keyseq.NewRepository(store, keyseq.RepositoryOptions{
		Expiry:                opts.ClaimExpiry,
		ConsistencyCheckDelay: opts.ConsistencyCheckDelay,
		Logger:                opts.Logger,
	})
	opts.Selector.Attach(repo)
	seq, outcome, err := opts.Selector.FirstAvailable(ctx)
	if err == nil && seq == nil {
		err = fmt.Errorf("no key sequence available (%s)", outcome)
	}
	if err != nil {
		if cerr := store.Close(); cerr != nil {
			log.Warn("failed to close store after failed claim", logpkg.Err(cerr))
		}
		unregisterAll(opts.Registerer, owned)
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	p := &Policy{
		opts:     opts,
		store:    store,
		selector: opts.Selector,
		current:  opts.Selector.CurrentKeySequence(),
		seqID:    seq.SeqID(),
		log:      log.With(logpkg.Int64("seq_id", seq.SeqID())),

		collectors: owned,
	}
	if c, ok := store.(valueCopier); ok {
		p.copies = c.CopiesValues()
	}
	p.processor = &RetryProcessor{
		current:   p.current,
		store:     store,
		listeners: p.listenerSnapshot,
		syncer:    opts.Selector,
		batchSize: int64(opts.BatchSize),
		backoff:   opts.RetryBackoff,
		gate:      &p.gate,
		c:         &p.c,
		log:       p.log.WithComponent("retry-processor"),
	}

	if opts.Registerer != nil {
		src := statsSource{c: &p.c, store: store, current: p.current}
		for _, col := range src.collectors(p.seqID) {
			if err := opts.Registerer.Register(col); err != nil {
				p.unregister()
				_ = opts.Selector.Close()
				_ = store.Close()
				return nil, fmt.Errorf("%w: register metrics: %w", ErrInitialization, err)
			}
			p.collectors = append(p.collectors, col)
		}
	}

	p.log.Info("failover policy ready",
		logpkg.Str("claim", outcome.String()),
		logpkg.Int64("queued", seq.ReaderKeysAvailable()),
		logpkg.Int64("entries", store.Size()),
	)
	return p, nil
}

// AddListener registers l for retried items. Nil listeners are ignored.
func (p *Policy) AddListener(l RetryListener) {
	if l == nil {
		return
	}
	p.listenersMu.Lock()
	p.listeners = append(p.listeners, l)
	p.listenersMu.Unlock()
}

func (p *Policy) listenerSnapshot() []RetryListener {
	p.listenersMu.RLock()
	defer p.listenersMu.RUnlock()
	return append([]RetryListener(nil), p.listeners...)
}

// Deliver queues item for retry. It returns false, and counts a store
// failure, when the item is nil, the policy is stopped or the write fails.
// Stores that serialize values release the item once it is written; otherwise
// it is released after its retry.
func (p *Policy) Deliver(item *FailedItem) bool {
	if item == nil {
		p.c.storeFailures.Add(1)
		p.log.Warn("refusing to store nil item")
		return false
	}

	p.gate.RLock()
	defer p.gate.RUnlock()

	if p.stopped.Load() {
		p.c.storeFailures.Add(1)
		p.log.Warn("policy stopped, item dropped", logpkg.Str("target", item.Info.TargetName))
		return false
	}
	seq := p.current()
	if seq == nil {
		p.c.storeFailures.Add(1)
		p.log.Warn("no key sequence claimed, item dropped", logpkg.Str("target", item.Info.TargetName))
		return false
	}

	key := seq.NextWriterKey()
	if err := p.selector.Sync(); err != nil {
		p.log.Warn("failed to persist sequence cursors", logpkg.Err(err))
	}
	if err := p.store.Put(key, item); err != nil {
		p.c.storeFailures.Add(1)
		p.log.Error("failed to store item",
			logpkg.Str("key", key.String()),
			logpkg.Str("target", item.Info.TargetName),
			logpkg.Err(err),
		)
		return false
	}
	p.c.stored.Add(1)
	if p.copies {
		item.Release()
	}
	return true
}

// Start schedules the retry task, and the monitor task when Monitored.
// Calling Start on a running policy is a no-op.
func (p *Policy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped.Load() {
		return ErrStopped
	}
	if p.started {
		return nil
	}
	if len(p.listenerSnapshot()) == 0 {
		return ErrNoListeners
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.cron = newScheduler(p.log.WithComponent("scheduler"))
	p.cron.Schedule(fixedDelay{delay: p.opts.RetryDelay}, cronlib.FuncJob(func() {
		p.processor.Run(ctx)
	}))
	if p.opts.Monitored {
		p.cron.Schedule(fixedDelay{delay: p.opts.MonitorTaskInterval}, &monitor{
			src: statsSource{c: &p.c, store: p.store, current: p.current},
			log: p.log.WithComponent("monitor"),
		})
	}
	p.cron.Start()
	p.started = true

	p.log.Info("failover policy started",
		logpkg.Dur("retry_delay", p.opts.RetryDelay),
		logpkg.Int("batch_size", p.opts.BatchSize),
		logpkg.Bool("monitored", p.opts.Monitored),
	)
	return nil
}

// RetryNow runs one retry pass on the caller's goroutine.
func (p *Policy) RetryNow() (int, error) {
	if p.stopped.Load() {
		return 0, ErrStopped
	}
	return p.processor.Retry(), nil
}

// Stop halts scheduling, waits up to timeout for a running pass, then
// releases the sequence claim and closes the store. forced cancels a pass
// that is still waiting out its backoff. Later calls are no-ops.
func (p *Policy) Stop(timeout time.Duration, forced bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped.Load() {
		return nil
	}
	p.gate.Lock()
	p.stopped.Store(true)
	p.gate.Unlock()

	var result *multierror.Error
	if p.cron != nil {
		if forced {
			p.cancel()
		}
		done := p.cron.Stop()
		t := time.NewTimer(timeout)
		select {
		case <-done.Done():
			t.Stop()
		case <-t.C:
			result = multierror.Append(result, fmt.Errorf("retry task still running after %s", timeout))
		}
		p.cancel()
	}

	p.unregister()
	if err := p.selector.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("release key sequence: %w", err))
	}
	if err := p.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}

	st := p.Stats()
	p.log.Info("failover policy stopped",
		logpkg.Int64("stored", st.Stored),
		logpkg.Int64("retried", st.Retried),
		logpkg.Int64("store_failures", st.StoreFailures),
	)
	return result.ErrorOrNil()
}

func (p *Policy) unregister() {
	unregisterAll(p.opts.Registerer, p.collectors)
	p.collectors = nil
}

func unregisterAll(reg prometheus.Registerer, cols []prometheus.Collector) {
	if reg == nil {
		return
	}
	for _, col := range cols {
		reg.Unregister(col)
	}
}

// Stats returns current counters, store size and queued item count.
func (p *Policy) Stats() Stats {
	return statsSource{c: &p.c, store: p.store, current: p.current}.snapshot()
}
