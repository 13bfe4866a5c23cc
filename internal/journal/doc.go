// Package journal records observed row changes to Postgres.
//
// The session manager calls Record from its loop goroutine; Record never
// blocks. A background writer drains the queue in batches into:
//
//	row_events(id, table_name, op, row_key, payload jsonb, observed_at)
//
// When the queue is at its ceiling new events are dropped and counted.
package journal
