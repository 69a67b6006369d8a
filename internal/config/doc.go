// Package config provides loading and environment overlay for esfailover
// configuration. It exposes a Default() baseline; the failover section maps
// onto failover.Options and the tunables section replaces what used to be
// process-wide system properties (claim expiry, consistency-check delay,
// retry backoff).
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/esfailover.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg) // ESFAILOVER_FAILOVER_BATCHSIZE=500 ...
package config
