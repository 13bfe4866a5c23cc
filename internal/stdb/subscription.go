package stdb

import "fmt"

type subscription struct {
	queries   []string
	onApplied func(Event)
	onError   func(error)
	applied   bool
}

// SubscriptionBuilder configures a subscription before it is sent.
type SubscriptionBuilder struct {
	conn      *DbConnection
	onApplied func(Event)
	onError   func(error)
}

// SubscriptionBuilder starts a new subscription on c.
func (c *DbConnection) SubscriptionBuilder() *SubscriptionBuilder {
	return &SubscriptionBuilder{conn: c}
}

// OnApplied is called from FrameTick after the initial rows are in the caches
// and their insert callbacks have fired.
func (b *SubscriptionBuilder) OnApplied(fn func(ev Event)) *SubscriptionBuilder {
	b.onApplied = fn
	return b
}

// OnError is called if the server rejects the subscription.
func (b *SubscriptionBuilder) OnError(fn func(err error)) *SubscriptionBuilder {
	b.onError = fn
	return b
}

// Subscribe sends the queries to the server.
func (b *SubscriptionBuilder) Subscribe(queries ...string) (*SubscriptionHandle, error) {
	c := b.conn
	if c == nil || !c.active.Load() {
		return nil, ErrNotConnected
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("subscribe: no queries")
	}

	id := c.requestID.Add(1)
	data, err := encodeClientMessage(clientEnvelope{Subscribe: &SubscribeMsg{
		QueryStrings: queries,
		RequestID:    id,
	}})
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		queries:   append([]string(nil), queries...),
		onApplied: b.onApplied,
		onError:   b.onError,
	}
	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	if err := c.transport.Send(data); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	c.logger.Debug("subscribe sent", "request_id", id, "queries", len(queries))
	return &SubscriptionHandle{conn: c, requestID: id}, nil
}

// SubscribeToAllTables subscribes to every registered table.
func (b *SubscriptionBuilder) SubscribeToAllTables() (*SubscriptionHandle, error) {
	names := b.conn.TableNames()
	if len(names) == 0 {
		return nil, ErrNoTables
	}

	queries := make([]string, len(names))
	for i, name := range names {
		queries[i] = "SELECT * FROM " + name
	}
	return b.Subscribe(queries...)
}

// SubscriptionHandle refers to a sent subscription.
type SubscriptionHandle struct {
	conn      *DbConnection
	requestID uint32
}

// RequestID returns the id the subscription was sent with.
func (h *SubscriptionHandle) RequestID() uint32 { return h.requestID }

// IsApplied reports whether the initial rows have arrived.
func (h *SubscriptionHandle) IsApplied() bool {
	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	sub, ok := h.conn.subs[h.requestID]
	return ok && sub.applied
}

// Queries returns the subscribed queries, nil if the server rejected them.
func (h *SubscriptionHandle) Queries() []string {
	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	if sub, ok := h.conn.subs[h.requestID]; ok {
		return append([]string(nil), sub.queries...)
	}
	return nil
}
