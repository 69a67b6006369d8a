// Package runtime wires the failover store, the sequence repository and the
// configuration of one process. It exposes Open/Close, a health check, admin
// helpers over registered sequences, and a constructor for policies that
// reuse the already-open store.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	seqs, _ := rt.Sequences()
//	p, _ := rt.OpenPolicy(ctx, cfg.Failover.SeqID)
//	defer p.Stop(5*time.Second, false)
package runtime
