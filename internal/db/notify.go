package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Notifier publishes conversation completions over PostgreSQL NOTIFY so
// downstream consumers (progress tracking, dashboards) can react.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a new Notifier.  The channel should match the
// NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	return &Notifier{DB: db, Channel: channel}
}

// Notify sends the conversation id as the payload.  NOTIFY does not accept
// bind parameters, so both channel and payload are quoted.
func (n *Notifier) Notify(ctx context.Context, conversationID string) error {
	stmt := fmt.Sprintf("NOTIFY %s, %s", pq.QuoteIdentifier(n.Channel), pq.QuoteLiteral(conversationID))
	_, err := n.DB.ExecContext(ctx, stmt)
	return err
}
