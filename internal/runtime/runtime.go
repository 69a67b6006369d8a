package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rfoltyns/esfailover/internal/config"
	"github.com/rfoltyns/esfailover/internal/failover"
	"github.com/rfoltyns/esfailover/internal/keyseq"
	pebblestore "github.com/rfoltyns/esfailover/internal/storage/pebble"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Registerer is handed to policies opened through the runtime. Optional.
	Registerer prometheus.Registerer
}

// Runtime wires a failover store, its sequence repository and configuration
// for one process.
type Runtime struct {
	store      *failover.Map
	repo       *keyseq.Repository
	config     cfgpkg.Config
	log        logpkg.Logger
	registerer prometheus.Registerer
	// handedOff is set once a policy owns the store.
	handedOff bool
}

// Open opens the store named by the configuration.
func Open(opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	fc := opts.Config.Failover
	if fc.FileName == "" {
		fc.FileName = cfgpkg.DefaultFileName()
	}
	fsync, err := pebblestore.ParseFsyncMode(fc.Fsync)
	if err != nil {
		return nil, err
	}
	mo := failover.MapOptions{
		Path:             fc.FileName,
		MaxEntries:       fc.NumberOfEntries,
		AverageValueSize: fc.AverageValueSize,
		Fsync:            fsync,
		Logger:           opts.Logger,
	}
	if opts.Registerer != nil {
		sm, err := failover.RegisterStoreMetrics(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register store metrics: %w", err)
		}
		mo.Metrics = sm
	}
	store, err := failover.OpenMap(mo)
	if err != nil {
		return nil, err
	}
	opts.Config.Failover = fc
	rt := &Runtime{
		store:      store,
		config:     opts.Config,
		log:        opts.Logger,
		registerer: opts.Registerer,
	}
	rt.repo = keyseq.NewRepository(store, keyseq.RepositoryOptions{
		Expiry:                opts.Config.Tunables.ClaimExpiry,
		ConsistencyCheckDelay: opts.Config.Tunables.ConsistencyCheckDelay,
		Logger:                opts.Logger,
	})
	return rt, nil
}

// Close closes the store unless a policy took it over.
func (r *Runtime) Close() error {
	if r.store == nil || r.handedOff {
		return nil
	}
	return r.store.Close()
}

// CheckHealth reads the directory entry to confirm the store is usable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.store.ContainsKey(keyseq.DirectoryKey)
	return err
}

// Sequences lists every registered sequence config.
func (r *Runtime) Sequences() ([]*keyseq.KeySequenceConfig, error) {
	return r.repo.GetAll()
}

// Size is the number of live keys in the store.
func (r *Runtime) Size() int64 { return r.store.Size() }

// Purge removes the config of seqID. It reports false when no such sequence
// is registered. Queued items of the sequence are left on disk.
func (r *Runtime) Purge(seqID int64) (bool, error) {
	cfg, ok, err := r.repo.Get(keyseq.ConfigKey(seqID))
	if err != nil || !ok {
		return false, err
	}
	if err := r.repo.Purge(cfg); err != nil {
		return false, err
	}
	r.log.Info("sequence purged", logpkg.Int64("seq_id", seqID), logpkg.Int64("owner_id", cfg.OwnerID()))
	return true, nil
}

// OpenPolicy builds a policy for seqID on the runtime's store. The policy owns
// the store from then on; Close on the runtime becomes a no-op.
func (r *Runtime) OpenPolicy(ctx context.Context, seqID int64) (*failover.Policy, error) {
	if r.handedOff {
		return nil, errors.New("store already owned by a policy")
	}
	fc := r.config.Failover
	sel := keyseq.NewSingleKeySequenceSelector(seqID, keyseq.WithSelectorLogger(r.log))
	p, err := failover.New(ctx, failover.Options{
		FileName:              fc.FileName,
		NumberOfEntries:       fc.NumberOfEntries,
		AverageValueSize:      fc.AverageValueSize,
		BatchSize:             fc.BatchSize,
		RetryDelay:            fc.RetryDelay,
		RetryBackoff:          r.config.Tunables.RetryBackoff,
		Monitored:             fc.Monitored,
		MonitorTaskInterval:   fc.MonitorTaskInterval,
		ClaimExpiry:           r.config.Tunables.ClaimExpiry,
		ConsistencyCheckDelay: r.config.Tunables.ConsistencyCheckDelay,
		Selector:              sel,
		Store:                 r.store,
		Logger:                r.log,
		Registerer:            r.registerer,
	})
	if err != nil {
		// failover.New closes the store when it fails past validation.
		if !errors.Is(err, failover.ErrConfiguration) {
			r.handedOff = true
		}
		return nil, fmt.Errorf("open policy for sequence %d: %w", seqID, err)
	}
	r.handedOff = true
	return p, nil
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
