// Package runtime wires storage, config, and the domain stores into a
// single-node mailroom instance. It exposes Open/Close, a basic health
// check, and accessors for the stores and the delivery queue.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	subs, _ := rt.Subscribers().ListConfirmed(context.Background())
package runtime
