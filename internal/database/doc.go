// Package database opens the Postgres pool used by the row-event journal.
package database
