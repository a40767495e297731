// Package websocket is a lightweight yet robust client-only
// implementation of the WebSocket protocol (RFC 6455).
//
// It focuses on continuous asynchronous reading of text/binary messages,
// and enables occasional writing, over a single connection established
// by [Dial]. Design goals: reliability, maintainability, and efficiency.
//
// The opening handshake is performed over a raw TCP (or TLS) socket that
// this package dials and owns directly, rather than through an HTTP client,
// since the same socket keeps serving WebSocket frames long after the
// handshake's single HTTP exchange completes.
//
// Incoming messages are defragmented internally and delivered through the
// channel returned by [Conn.IncomingMessages]. Outgoing messages and control
// frames are serialized onto the connection by a single internal writer
// goroutine, so that concurrent callers of [Conn.SendTextMessage] and
// [Conn.SendBinaryMessage] can't interleave partial frames.
//
// WebSocket [extensions] and [subprotocols] are not supported: the opening
// handshake fails the connection if the server negotiates either.
//
// [extensions]: https://www.iana.org/assignments/websocket/websocket.xhtml#extension-name
// [subprotocols]: https://www.iana.org/assignments/websocket/websocket.xhtml#subprotocol-name
package websocket
