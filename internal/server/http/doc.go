// Package httpserver serves a small read-only admin surface for a running
// failover policy: health, counters, registered sequences and Prometheus
// metrics.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	s := httpserver.New(rt, policy, reg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":9108")
package httpserver
