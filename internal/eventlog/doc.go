// Package eventlog implements the bus's durable channel store and consumer
// cursors on top of Pebble.
//
// # Overview
//
// Every channel is an append-only sequence of events numbered 1, 2, 3, ...
// Keys are lexicographically ordered for efficient range scans:
//   - chanmeta/{channel}          (registry entry: name, creation time, order)
//   - ch/{channel}/m              (last assigned id)
//   - ch/{channel}/e/{id_be8}     (events)
//   - cursor/{channel}/{consumer} (consumer offsets)
//
// Records are stored as: varint headerLen | header | payload | crc32c(header|payload).
// The header holds the capture time and the event type; the payload is raw JSON.
//
// API surface (internal)
//
//	s, _ := eventlog.Open(ctx, db, eventlog.Options{InitialChannels: []string{"general"}})
//	ev, _ := s.Append(ctx, "general", "order.created", json.RawMessage(`{"orderId":"A-1"}`))
//
//	// Reads auto-create the channel and count as throughput
//	evs, _ := s.EventsSince(ctx, "general", 0)
//
//	// Durable cursors
//	c, _ := s.Consumer(ctx, "worker", "general")
//	batch, _ := c.Poll(ctx, eventlog.PollOptions{Limit: 10})
//	_ = c.Commit(ctx, batch[len(batch)-1].ID)
//
//	// Blocking wait/notify
//	woke := s.WaitForAppend(ctx, "general", 200*time.Millisecond)
//
//	// Side-effect free inspection for monitoring
//	_ = s.Inspect(ctx, func(v eventlog.View) error { _, err := v.Summaries(time.Minute); return err })
//
// # Concurrency
//
// Appends hold a per-channel mutex across id assignment and the batch commit,
// and the in-memory high-watermark advances only after the commit succeeds.
// Cursor writes hold a per-(consumer, channel) mutex. Reset takes the store
// lock exclusively; every other operation holds it shared.
package eventlog
