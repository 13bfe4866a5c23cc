// Package stdb is the client SDK for the reactive database service.
//
// A DbConnection is built with a Builder, dials the service asynchronously
// over a websocket (JSON subprotocol) and keeps client-side row mirrors
// (TableCache) consistent with the server by applying subscription and
// transaction updates.
//
// Threading model:
//   - Network I/O runs on transport goroutines which only enqueue.
//   - FrameTick drains the inbound queue on the caller's goroutine; every row,
//     subscription and on-connect callback fires from inside FrameTick.
//   - Connect errors and disconnects are handed to the configured Executor,
//     because FrameTick is typically not pumped while the connection is down.
package stdb
