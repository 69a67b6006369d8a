package runtime

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rfoltyns/esfailover/internal/config"
	"github.com/rfoltyns/esfailover/internal/failover"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Failover.FileName = filepath.Join(t.TempDir(), "store")
	cfg.Failover.NumberOfEntries = 100
	cfg.Failover.Fsync = "never"
	cfg.Tunables.ConsistencyCheckDelay = 0
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Size() != 0 {
		t.Fatalf("fresh store has %d entries", rt.Size())
	}
}

func TestOpenRejectsBadFsync(t *testing.T) {
	cfg := testConfig(t)
	cfg.Failover.Fsync = "sometimes"
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected fsync error")
	}
}

func TestPolicyThenInspectAndPurge(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p, err := rt.OpenPolicy(context.Background(), 3)
	if err != nil {
		t.Fatalf("open policy: %v", err)
	}
	for i := 0; i < 2; i++ {
		if !p.Deliver(failover.NewFailedItem("t", []byte("x"), nil)) {
			t.Fatalf("deliver %d failed", i)
		}
	}
	if _, err := rt.OpenPolicy(context.Background(), 4); err == nil {
		t.Fatalf("second policy on the same runtime should fail")
	}
	if err := p.Stop(time.Second, false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close after hand-off: %v", err)
	}

	rt, err = Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()

	seqs, err := rt.Sequences()
	if err != nil {
		t.Fatalf("sequences: %v", err)
	}
	if len(seqs) != 1 || seqs[0].SeqID() != 3 {
		t.Fatalf("sequences = %v", seqs)
	}
	if got := seqs[0].WriterIndex() - seqs[0].ReaderIndex(); got != 2 {
		t.Fatalf("queued %d want 2", got)
	}
	if seqs[0].OwnerID() != 0 {
		t.Fatalf("stopped policy left owner %d", seqs[0].OwnerID())
	}

	ok, err := rt.Purge(3)
	if err != nil || !ok {
		t.Fatalf("purge: ok=%v err=%v", ok, err)
	}
	ok, err = rt.Purge(3)
	if err != nil || ok {
		t.Fatalf("second purge: ok=%v err=%v", ok, err)
	}
	seqs, _ = rt.Sequences()
	if len(seqs) != 0 {
		t.Fatalf("sequences after purge = %v", seqs)
	}
}
