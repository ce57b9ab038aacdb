package data

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	apperrors "github.com/gatehouse/gatehouse/internal/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*AuthEventRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAuthEventRepo(db), mock
}

func TestAuthEventRepo_Record(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_events")).
		WithArgs("client-1", "user-1", "sess-1", "SIGNED_IN", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Record(context.Background(), domainauth.AuthEvent{
		ClientID:   "client-1",
		UserID:     "user-1",
		SessionID:  "sess-1",
		Kind:       domainauth.ChangeSignedIn,
		OccurredAt: at,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthEventRepo_RecordStampsMissingTime(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_events")).
		WithArgs("client-1", "", "", "SIGNED_OUT", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Record(context.Background(), domainauth.AuthEvent{
		ClientID: "client-1",
		Kind:     domainauth.ChangeSignedOut,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthEventRepo_RecordValidation(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.Record(context.Background(), domainauth.AuthEvent{Kind: domainauth.ChangeSignedIn})
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "client_id", apperrors.GetField(err))

	err = repo.Record(context.Background(), domainauth.AuthEvent{ClientID: "c", Kind: "BOGUS"})
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "kind", apperrors.GetField(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthEventRepo_RecordMapsDBErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_events")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation})

	err := repo.Record(context.Background(), domainauth.AuthEvent{
		ClientID: "client-1",
		Kind:     domainauth.ChangeSignedIn,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "insert auth event")
}

func TestAuthEventRepo_ListByUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	rows := sqlmock.NewRows([]string{"id", "client_id", "user_id", "session_id", "kind", "occurred_at"}).
		AddRow(int64(2), "client-1", "user-1", "", "SIGNED_OUT", t2).
		AddRow(int64(1), "client-1", "user-1", "sess-1", "SIGNED_IN", t1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + authEventColumns + " FROM auth_events WHERE user_id = $1")).
		WithArgs("user-1", 5).
		WillReturnRows(rows)

	events, err := repo.ListByUser(context.Background(), "user-1", 5)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domainauth.AuthEvent{
		ID:         2,
		ClientID:   "client-1",
		UserID:     "user-1",
		Kind:       domainauth.ChangeSignedOut,
		OccurredAt: t2,
	}, events[0])
	assert.Equal(t, "sess-1", events[1].SessionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthEventRepo_ListByUserClampsLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, defaultAuthEventLimit},
		{"negative", -3, defaultAuthEventLimit},
		{"max", 10_000, maxAuthEventLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery("SELECT").
				WithArgs("user-1", tt.want).
				WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "user_id", "session_id", "kind", "occurred_at"}))

			events, err := repo.ListByUser(context.Background(), "user-1", tt.limit)

			require.NoError(t, err)
			assert.Empty(t, events)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuthEventRepo_ListByUserErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.ListByUser(context.Background(), " ", 5)
	require.Error(t, err)

	mock.ExpectQuery("SELECT").WillReturnError(context.DeadlineExceeded)
	_, err = repo.ListByUser(context.Background(), "user-1", 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAuthEventRepo_PruneBefore(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_events WHERE occurred_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.PruneBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
