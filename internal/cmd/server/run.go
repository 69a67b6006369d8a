package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	cfgpkg "github.com/rfoltyns/esfailover/internal/config"
	"github.com/rfoltyns/esfailover/internal/failover"
	"github.com/rfoltyns/esfailover/internal/runtime"
	httpserver "github.com/rfoltyns/esfailover/internal/server/http"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// DefaultStopTimeout bounds the graceful policy shutdown.
const DefaultStopTimeout = 5 * time.Second

type Options struct {
	Config cfgpkg.Config
	// HTTPAddr enables the admin server when set.
	HTTPAddr string
	// SpoolPath receives retried items as JSON lines. Stdout when empty.
	SpoolPath   string
	StopTimeout time.Duration
	Logger      logpkg.Logger
}

// Run claims the configured sequence, starts retrying into the spool and
// blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) (err error) {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	procLogger := opts.Logger

	spool := os.Stdout
	if opts.SpoolPath != "" {
		f, ferr := os.OpenFile(opts.SpoolPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				err = multierror.Append(err, cerr).ErrorOrNil()
			}
		}()
		spool = f
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: procLogger, Registerer: reg})
	if err != nil {
		return err
	}
	defer rt.Close()

	seqID := rt.Config().Failover.SeqID
	p, err := rt.OpenPolicy(sctx, seqID)
	if err != nil {
		return err
	}
	p.AddListener(failover.NewJSONLinesListener(spool))
	if err := p.Start(); err != nil {
		return multierror.Append(err, p.Stop(opts.StopTimeout, true)).ErrorOrNil()
	}

	procLogger.Info("failover policy running",
		logpkg.Int64("seq_id", seqID),
		logpkg.Str("file", rt.Config().Failover.FileName),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("spool", opts.SpoolPath),
	)

	var (
		wg   sync.WaitGroup
		hsrv *httpserver.Server
	)
	if opts.HTTPAddr != "" {
		hsrv = httpserver.New(rt, p, reg, procLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
				procLogger.Error("http server failed", logpkg.Err(err))
			}
		}()
	}

	<-sctx.Done()
	// Servers go first so nothing reads the store while it closes.
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	return p.Stop(opts.StopTimeout, false)
}
