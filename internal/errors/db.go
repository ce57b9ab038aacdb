package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const msgUnavailable = "The database is unavailable. Please try again."

// keyDetail matches the Detail of a unique violation: "Key (col)=(value) already exists.".
var keyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)

type dbRule struct {
	match   func(error) bool
	code    ErrorCode
	message string
}

// dbRules are checked in order; the first match decides the code.
var dbRules = []dbRule{
	{isErr(context.DeadlineExceeded), ErrCodeTimeout, "Request timed out. Please try again."},
	{isErr(context.Canceled), ErrCodeCanceled, "Request was canceled."},
	{isErr(sql.ErrNoRows, pgx.ErrNoRows), ErrCodeNotFound, "Resource not found"},
	{isErr(sql.ErrConnDone), ErrCodeUnavailable, msgUnavailable},
	{isConnectError, ErrCodeUnavailable, msgUnavailable},
}

func isErr(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

func isConnectError(err error) bool {
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// MapDBError turns driver and context errors into AppErrors. Errors it does
// not recognise are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	for _, rule := range dbRules {
		if rule.match(err) {
			return &AppError{Code: rule.code, Message: rule.message, Cause: err}
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPgError(pgErr)
	}
	return err
}

func fromPgError(pgErr *pgconn.PgError) *AppError {
	appErr := &AppError{
		Code:    ErrCodeInternal,
		Message: "A database error occurred. Please try again.",
		Field:   pgErr.ColumnName,
		Cause:   pgErr,
	}
	switch code := pgErr.Code; {
	case code == pgerrcode.UniqueViolation:
		appErr.Code, appErr.Message = ErrCodeConflict, "This value already exists."
		if appErr.Field == "" {
			if m := keyDetail.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
				appErr.Field = m[1]
			}
		}
	case code == pgerrcode.CheckViolation, code == pgerrcode.NotNullViolation:
		appErr.Code, appErr.Message = ErrCodeValidation, "Invalid data. Please check your input."
	case pgerrcode.IsConnectionException(code), pgerrcode.IsInsufficientResources(code):
		appErr.Code, appErr.Message = ErrCodeUnavailable, msgUnavailable
	}
	return appErr
}
