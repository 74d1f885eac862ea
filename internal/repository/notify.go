package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/RealZimboGuy/leadflow/internal/config"
)

// StepsChannel is the Postgres NOTIFY channel raised when new steps are queued.
const StepsChannel = "leadflow_steps"

// Notifier wakes step workers in other processes. It only does something on
// Postgres; other databases rely on polling.
type Notifier struct {
	db *sql.DB
}

func NewNotifier(db *sql.DB) *Notifier {
	return &Notifier{db: db}
}

func (n *Notifier) Notify(ctx context.Context) {
	if !isPostgres() {
		return
	}
	if _, err := n.db.ExecContext(ctx, `SELECT pg_notify($1, '')`, StepsChannel); err != nil {
		slog.WarnContext(ctx, "Failed to notify step workers", "error", err)
	}
}

// Listen calls onNotify for every notification on StepsChannel until ctx is
// done. It returns immediately on databases without LISTEN support.
func (n *Notifier) Listen(ctx context.Context, onNotify func()) {
	if !isPostgres() {
		return
	}
	listener := pq.NewListener(config.GetSystemSettingString(config.DATABASE_URL), 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Warn("Step listener event", "event", ev, "error", err)
			}
		})
	defer listener.Close()
	if err := listener.Listen(StepsChannel); err != nil {
		slog.Error("Failed to listen for step notifications", "error", err)
		return
	}
	slog.Info("Listening for step notifications", "channel", StepsChannel)
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Notify:
			onNotify()
		case <-time.After(90 * time.Second):
			go func() { _ = listener.Ping() }()
		}
	}
}
