// Package data holds the PostgreSQL repositories.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	apperrors "github.com/gatehouse/gatehouse/internal/errors"
	"github.com/gatehouse/gatehouse/internal/ports"
)

const (
	authEventColumns = `id, client_id, user_id, session_id, kind, occurred_at`

	defaultAuthEventLimit = 20
	maxAuthEventLimit     = 200
)

// AuthEventRepo journals session changes in PostgreSQL.
type AuthEventRepo struct {
	DB  *sql.DB
	now func() time.Time
}

var _ ports.AuthEventJournal = (*AuthEventRepo)(nil)

// NewAuthEventRepo creates a new AuthEventRepo with the given database connection.
func NewAuthEventRepo(db *sql.DB) *AuthEventRepo {
	return &AuthEventRepo{DB: db, now: time.Now}
}

// Record inserts ev. A zero OccurredAt is stamped with the current time.
func (r *AuthEventRepo) Record(ctx context.Context, ev domainauth.AuthEvent) error {
	if strings.TrimSpace(ev.ClientID) == "" {
		return apperrors.ValidationField("client_id", "client ID is required")
	}
	if !ev.Kind.Valid() {
		return apperrors.ValidationField("kind", fmt.Sprintf("unknown change kind %q", ev.Kind))
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = r.now()
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO auth_events (client_id, user_id, session_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ClientID, ev.UserID, ev.SessionID, string(ev.Kind), occurred.UTC())
	if err != nil {
		return fmt.Errorf("insert auth event: %w", apperrors.MapDBError(err))
	}
	return nil
}

// ListByUser returns the newest events for userID first. A non-positive limit uses the default.
func (r *AuthEventRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domainauth.AuthEvent, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user ID is required")
	}
	switch {
	case limit <= 0:
		limit = defaultAuthEventLimit
	case limit > maxAuthEventLimit:
		limit = maxAuthEventLimit
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+authEventColumns+` FROM auth_events WHERE user_id = $1 ORDER BY occurred_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query auth events: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	out := make([]domainauth.AuthEvent, 0, limit)
	for rows.Next() {
		var (
			ev       domainauth.AuthEvent
			kind     string
			occurred time.Time
		)
		if scanErr := rows.Scan(&ev.ID, &ev.ClientID, &ev.UserID, &ev.SessionID, &kind, &occurred); scanErr != nil {
			return nil, fmt.Errorf("scan auth event: %w", scanErr)
		}
		ev.Kind = domainauth.ChangeKind(kind)
		ev.OccurredAt = occurred.UTC()
		out = append(out, ev)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate auth events: %w", apperrors.MapDBError(rowsErr))
	}
	return out, nil
}

// PruneBefore deletes events older than cutoff and reports how many were removed.
func (r *AuthEventRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM auth_events WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune auth events: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune auth events: %w", err)
	}
	return n, nil
}
