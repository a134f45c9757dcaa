// Package audit writes structured action records and resolves them back into
// human-readable activity entries. Writes are fire-and-forget: an audit
// failure must never block the action that triggered it.
package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Recorder captures one action record.
type Recorder interface {
	Record(ctx context.Context, accountID string, identityID *string, action string, detail map[string]any)
}

// PGRecorder implements Recorder backed by the audit_log table.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRecorder creates a PostgreSQL-backed audit recorder.
func NewRecorder(pool *pgxpool.Pool, logger *zap.Logger) *PGRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGRecorder{pool: pool, logger: logger}
}

// Record inserts one action record. Failures are logged and swallowed.
func (r *PGRecorder) Record(ctx context.Context, accountID string, identityID *string, action string, detail map[string]any) {
	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			r.logger.Warn("audit detail not serializable",
				zap.String("action", action),
				zap.Error(err))
			detailJSON = nil
		}
	}
	if detailJSON == nil {
		detailJSON = []byte("{}")
	}

	const insertSQL = `
		INSERT INTO audit_log (account_id, identity_id, action, detail)
		VALUES ($1, $2, $3, $4::jsonb)
	`
	if _, err := r.pool.Exec(ctx, insertSQL, accountID, identityID, action, string(detailJSON)); err != nil {
		r.logger.Warn("audit write failed",
			zap.String("account_id", accountID),
			zap.String("action", action),
			zap.Error(err))
	}
}
