// Package serverrun exposes a shared Run entrypoint used by the CLI to host a
// failover policy as a long-running process: retried items are appended to a
// spool file and an admin HTTP server reports health and metrics.
//
// Example:
//
//	opts := serverrun.Options{Config: config.Default(), HTTPAddr: ":9108", SpoolPath: "./retried.jsonl"}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
