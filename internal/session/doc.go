// Package session owns the game client's connection to the database module.
//
// A Manager moves between three states:
//
//	Disconnected  no connection handle
//	Connecting    handle built, websocket or identity still pending
//	Connected     handle active
//
// Every Manager method and every callback runs on the scheduler's loop
// goroutine: row, subscription and connect callbacks are dispatched from
// Tick, while connect errors and disconnects are posted to the scheduler.
// The Manager itself holds no locks. Status is the only method safe to call
// from other goroutines.
//
// There is no reconnection. A dropped connection stays dropped until
// StartConnection is called again.
package session
