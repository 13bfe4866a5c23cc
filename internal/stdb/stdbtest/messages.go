package stdbtest

import (
	"encoding/json"

	"github.com/rickgao/mmorpg-client/internal/stdb"
)

func envelope(tag string, body any) []byte {
	data, err := json.Marshal(map[string]any{tag: body})
	if err != nil {
		panic(err)
	}
	return data
}

func rawRows(rows []any) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			panic(err)
		}
		out = append(out, data)
	}
	return out
}

// IdentityToken builds the message the server sends after the handshake.
func IdentityToken(identity stdb.Identity, token string) []byte {
	return envelope("IdentityToken", stdb.IdentityTokenMsg{
		Identity: identity,
		Token:    token,
	})
}

// InitialSubscription builds the reply to the subscription with requestID.
func InitialSubscription(requestID uint32, tables ...stdb.TableUpdate) []byte {
	return envelope("InitialSubscription", stdb.InitialSubscriptionMsg{
		DatabaseUpdate: stdb.DatabaseUpdate{Tables: tables},
		RequestID:      requestID,
	})
}

// Committed builds a committed transaction caused by reducer.
func Committed(reducer string, caller stdb.Identity, tables ...stdb.TableUpdate) []byte {
	return CommittedCall(0, reducer, caller, tables...)
}

// CommittedCall is Committed answering the call sent with requestID.
func CommittedCall(requestID uint32, reducer string, caller stdb.Identity, tables ...stdb.TableUpdate) []byte {
	return envelope("TransactionUpdate", stdb.TransactionUpdateMsg{
		Status:         stdb.UpdateStatus{Committed: &stdb.DatabaseUpdate{Tables: tables}},
		CallerIdentity: caller,
		ReducerCall:    stdb.ReducerCall{ReducerName: reducer, RequestID: requestID},
	})
}

// Failed builds a failed transaction.
func Failed(reducer, msg string) []byte {
	return FailedCall(0, reducer, msg)
}

// FailedCall is Failed answering the call sent with requestID.
func FailedCall(requestID uint32, reducer, msg string) []byte {
	return envelope("TransactionUpdate", stdb.TransactionUpdateMsg{
		Status:      stdb.UpdateStatus{Failed: &msg},
		ReducerCall: stdb.ReducerCall{ReducerName: reducer, RequestID: requestID},
	})
}

// SubscriptionError builds a rejection of the subscription with requestID.
func SubscriptionError(requestID uint32, msg string) []byte {
	return envelope("SubscriptionError", stdb.SubscriptionErrorMsg{
		RequestID: &requestID,
		Error:     msg,
	})
}

// Inserts builds a table update adding rows.
func Inserts(table string, rows ...any) stdb.TableUpdate {
	return stdb.TableUpdate{
		TableName: table,
		NumRows:   uint64(len(rows)),
		Updates:   []stdb.QueryUpdate{{Inserts: rawRows(rows)}},
	}
}

// Deletes builds a table update removing rows.
func Deletes(table string, rows ...any) stdb.TableUpdate {
	return stdb.TableUpdate{
		TableName: table,
		NumRows:   uint64(len(rows)),
		Updates:   []stdb.QueryUpdate{{Deletes: rawRows(rows)}},
	}
}

// Replace builds a table update deleting oldRow and inserting newRow.
func Replace(table string, oldRow, newRow any) stdb.TableUpdate {
	return stdb.TableUpdate{
		TableName: table,
		NumRows:   1,
		Updates: []stdb.QueryUpdate{{
			Deletes: rawRows([]any{oldRow}),
			Inserts: rawRows([]any{newRow}),
		}},
	}
}
