// Package bussvc implements the event bus facade on top of the channel store:
// publish, consumer poll/commit/reset, overview snapshots, CEL search and a
// tail subscription. HTTP and gRPC transports share it.
//
// Example:
//
//	svc := bussvc.NewWithLogger(rt, logger)
//	ev, _ := svc.Publish(ctx, "general", "order.created", json.RawMessage(`{"orderId":"A-1"}`))
//	batch, _ := svc.Poll(ctx, "worker", "general", eventlog.PollOptions{Limit: 10})
//	_ = svc.Commit(ctx, "worker", "general", batch[len(batch)-1].ID)
//	hits, _ := svc.Search(ctx, "general", 0, `event_type == "order.created"`, 0)
package bussvc
