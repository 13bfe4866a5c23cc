package stdb

import "encoding/json"

// Client → server messages. The service speaks externally tagged JSON:
// {"Subscribe": {...}}.

// SubscribeMsg requests rows matching the queries, now and in future.
type SubscribeMsg struct {
	QueryStrings []string `json:"query_strings"`
	RequestID    uint32   `json:"request_id"`
}

// CallReducerMsg invokes a server-side reducer.
type CallReducerMsg struct {
	Reducer   string `json:"reducer"`
	Args      string `json:"args"` // JSON array of arguments, as a string
	RequestID uint32 `json:"request_id"`
	Flags     uint8  `json:"flags"`
}

type clientEnvelope struct {
	Subscribe   *SubscribeMsg   `json:"Subscribe,omitempty"`
	CallReducer *CallReducerMsg `json:"CallReducer,omitempty"`
}

// Server → client messages.

// IdentityTokenMsg is the first message after a successful handshake.
type IdentityTokenMsg struct {
	Identity     Identity     `json:"identity"`
	Token        string       `json:"token"`
	ConnectionID ConnectionID `json:"connection_id"`
}

// InitialSubscriptionMsg carries every row matching a new subscription.
type InitialSubscriptionMsg struct {
	DatabaseUpdate DatabaseUpdate `json:"database_update"`
	RequestID      uint32         `json:"request_id"`
}

// TransactionUpdateMsg reports the outcome of a transaction.
type TransactionUpdateMsg struct {
	Status         UpdateStatus `json:"status"`
	CallerIdentity Identity     `json:"caller_identity"`
	ReducerCall    ReducerCall  `json:"reducer_call"`
}

// SubscriptionErrorMsg reports a rejected subscription.
type SubscriptionErrorMsg struct {
	RequestID *uint32 `json:"request_id,omitempty"`
	Error     string  `json:"error"`
}

// UpdateStatus is either Committed (with table changes) or Failed (with a message).
type UpdateStatus struct {
	Committed *DatabaseUpdate `json:"Committed,omitempty"`
	Failed    *string         `json:"Failed,omitempty"`
}

// ReducerCall identifies the reducer behind a transaction.
type ReducerCall struct {
	ReducerName string `json:"reducer_name"`
	RequestID   uint32 `json:"request_id"`
}

// DatabaseUpdate groups row changes by table.
type DatabaseUpdate struct {
	Tables []TableUpdate `json:"tables"`
}

// TableUpdate lists the rows removed from and added to one table.
type TableUpdate struct {
	TableName string        `json:"table_name"`
	NumRows   uint64        `json:"num_rows"`
	Updates   []QueryUpdate `json:"updates"`
}

// QueryUpdate is one batch of row changes. Rows are either JSON objects or
// strings holding JSON.
type QueryUpdate struct {
	Deletes []json.RawMessage `json:"deletes"`
	Inserts []json.RawMessage `json:"inserts"`
}

// Message type tags.
const (
	msgIdentityToken       = "IdentityToken"
	msgInitialSubscription = "InitialSubscription"
	msgTransactionUpdate   = "TransactionUpdate"
	msgSubscriptionError   = "SubscriptionError"
)
