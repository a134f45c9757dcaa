// Package notify delivers row-change events published by database triggers
// over Postgres LISTEN/NOTIFY. Consumers treat every event as a cache
// invalidation and reload; payloads carry routing fields only, never row data.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Channel is the NOTIFY channel the schema triggers publish on.
const Channel = "supportdesk_changes"

// Table names carried in event payloads.
const (
	TableIdentities = "identities"
	TableAuditLog   = "audit_log"
)

// Op mirrors the trigger operation.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// ChangeEvent describes one row-level change.
type ChangeEvent struct {
	Table     string `json:"table"`
	Op        Op     `json:"op"`
	AccountID string `json:"account_id"`
}

// Connector opens the dedicated listen connection, and re-opens it after
// failures.
type Connector func(ctx context.Context) (*pgx.Conn, error)

// Listener owns a dedicated connection subscribed to Channel and fans events
// into a Go channel.
type Listener struct {
	connect Connector
	logger  *zap.Logger

	// retryDelay spaces reconnect attempts after a dropped connection.
	retryDelay time.Duration
}

// NewListener builds a listener. connect is called once per (re)subscription.
func NewListener(connect Connector, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		connect:    connect,
		logger:     logger,
		retryDelay: 2 * time.Second,
	}
}

// Run listens until ctx is done, sending decoded events to out. The channel
// is closed on return. Malformed payloads are logged and skipped; connection
// loss triggers reconnect with a fixed delay.
func (l *Listener) Run(ctx context.Context, out chan<- ChangeEvent) {
	defer close(out)

	for {
		if err := l.listenOnce(ctx, out); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("change listener disconnected", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context, out chan<- ChangeEvent) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return err
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var ev ChangeEvent
		if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
			l.logger.Warn("change listener bad payload",
				zap.String("payload", notification.Payload),
				zap.Error(err))
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
