// Package pebblestore provides a thin wrapper around Pebble with fsync
// policy and batches.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates with batches
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
//
// The batch is the unit of atomicity for everything mailroom persists: a
// publish commits the issue record, its delivery tasks, and the idempotency
// record in one batch, or not at all.
package pebblestore
