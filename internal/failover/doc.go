// Package failover queues deliveries that failed and retries them later.
//
// A Policy owns a persistent store (a pebble-backed Map unless one is
// injected) and one claimed key sequence. Deliver writes an item at the next
// writer key; a fixed-delay task pulls up to BatchSize reader keys and hands
// each item to every RetryListener, then removes it.
//
//	sel := keyseq.NewSingleKeySequenceSelector(1)
//	p, err := failover.New(ctx, failover.Options{
//	    FileName:         "/var/lib/esfailover/queue",
//	    NumberOfEntries:  1_000_000,
//	    AverageValueSize: 2048,
//	    BatchSize:        1000,
//	    RetryDelay:       10 * time.Second,
//	    Selector:         sel,
//	})
//	if err != nil { /* handle */ }
//	p.AddListener(failover.RetryListenerFunc(resend))
//	_ = p.Start()
//	defer p.Stop(5*time.Second, false)
//
//	p.Deliver(failover.NewFailedItem("logs-2024.06", body, nil))
//
// Records on disk are framed as kind(1B) | body | crc32c(kind|body). Values
// that fail verification are returned as RawValue and reported to the
// CorruptionHandler; the retry task counts them as foreign and leaves them
// in place.
package failover
