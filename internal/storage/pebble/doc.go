// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// batches, prefix deletion and minimal metrics hooks.
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
//	// Wipe a keyspace
//	_ = db.DeletePrefixes(ctx, []byte("ch/"), []byte("cursor/"))
package pebblestore
