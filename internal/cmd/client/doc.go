// Package client provides the `eventbus` command-line client.
//
// The commands talk to the gRPC endpoint (BUS_GRPC, default
// 127.0.0.1:50051) and print records as JSON.
//
// Usage
//
//	eventbus publish --channel ventas --type order.created --data '{"orderId":"A-1"}'
//	eventbus events --channel ventas --filter 'event_type == "order.created"'
//	eventbus poll --consumer crm --channel ventas --limit 1 --manual
//	eventbus commit --consumer crm --channel ventas --id 1
//	eventbus offset --consumer crm --channel ventas
//	eventbus consumer reset --consumer crm --channel ventas
//	eventbus overview
//	eventbus reset --confirm
//
// Notes
//
//   - poll advances the cursor past the returned batch unless --manual is set.
//   - server validation errors keep their code (e.g. invalid_offset).
package client
