package timeline

import "time"

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT UNIQUE NOT NULL,
	trace_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	message_id TEXT,
	sender_id TEXT,
	author_is_bot BOOLEAN NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	reply TEXT,
	suspended_until INTEGER NOT NULL DEFAULT 0,
	delivery_status TEXT NOT NULL DEFAULT 'none',
	delivery_error TEXT,
	created_at INTEGER NOT NULL,
	delivered_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_decisions_trace ON decisions(trace_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(outcome);
`

// Decision is one audited engine decision.
type Decision struct {
	ID             int64      `json:"id"`
	EventID        string     `json:"event_id"`
	TraceID        string     `json:"trace_id"`
	Channel        string     `json:"channel"`
	ChatID         string     `json:"chat_id"`
	MessageID      string     `json:"message_id"`
	SenderID       string     `json:"sender_id"`
	AuthorIsBot    bool       `json:"author_is_bot"`
	Outcome        string     `json:"outcome"`
	Reply          string     `json:"reply,omitempty"`
	SuspendedUntil int64      `json:"suspended_until,omitempty"` // unix seconds, set for suspensions
	DeliveryStatus string     `json:"delivery_status"`
	DeliveryError  string     `json:"delivery_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

const (
	DeliveryNone    = "none" // nothing was published for the decision
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)
