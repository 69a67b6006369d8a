// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// batches, key counting, background error reporting and minimal metrics hooks.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeAlways,
//	    OnBackgroundError: func(err error, corruption bool) { /* log */ },
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("k"), []byte("v"))
//	v, _ := db.Get([]byte("k"))
//	ok, _ := db.Has([]byte("k"))
package pebblestore
