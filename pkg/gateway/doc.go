// Package gateway implements the chat-service real-time gateway client built
// on top of [pkg/websocket]: HTTPS service discovery of the gateway URL,
// a persistent zlib inflate stream over the WebSocket connection, opcode
// and dispatch-event routing, and the periodic heartbeat loop that keeps
// the connection alive.
//
// A typical session starts with [Connect], which discovers the endpoint,
// dials it, and wires the dispatch pump and heartbeat goroutines together.
// Callers then register handlers on [Client.Dispatcher] with [HandleTyped]
// or [HandleEventTyped] before the server's first packets arrive.
//
// [pkg/websocket]: https://pkg.go.dev/github.com/corvidlabs/gatewaylink/pkg/websocket
package gateway
