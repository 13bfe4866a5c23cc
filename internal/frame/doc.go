// Package frame implements the cooperative frame scheduler.
//
// A Ticker owns one loop goroutine (the caller of Run). Recurring callbacks
// registered with AddTicker and one-shot tasks queued with Post all execute on
// that goroutine, so code driven by the scheduler needs no locking of its own.
// Post is safe to call from any goroutine and is how network goroutines hand
// work back to the loop.
package frame
