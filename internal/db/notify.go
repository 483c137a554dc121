package db

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL. The intake
// path notifies the channel whenever an inbound message is recorded, so
// out-of-process consumers (dashboards, enrichment workers) can react
// without polling the messages table.
type Notifier struct {
	DB      *sql.DB
	DSN     string
	Channel string
	Logger  *slog.Logger
}

// NewNotifier constructs a Notifier. The DSN is needed because pq's
// listener opens its own dedicated connection.
func NewNotifier(db *sql.DB, dsn, channel string, logger *slog.Logger) *Notifier {
	return &Notifier{DB: db, DSN: dsn, Channel: channel, Logger: logger}
}

// Notify publishes a message ID on the channel.
func (n *Notifier) Notify(ctx context.Context, messageID string) error {
	_, err := n.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, n.Channel, messageID)
	return err
}

// Listen yields message IDs as they are published on the channel. The
// returned channel closes when ctx is cancelled or the listener dies.
func (n *Notifier) Listen(ctx context.Context) (<-chan string, error) {
	listener := pq.NewListener(n.DSN, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil && n.Logger != nil {
				n.Logger.Warn("notify listener event", "event", int(ev), "error", err)
			}
		})
	if err := listener.Listen(n.Channel); err != nil {
		_ = listener.Close()
		return nil, err
	}
	ch := make(chan string)
	go func() {
		defer func() {
			_ = listener.Close()
			close(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case note, ok := <-listener.Notify:
				if !ok {
					return
				}
				// Reconnect events arrive as nil notifications.
				if note == nil {
					continue
				}
				select {
				case ch <- note.Extra:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
