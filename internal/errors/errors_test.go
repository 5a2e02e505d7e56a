package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrCodeInternal, "store write failed")

	require.Error(t, err)
	assert.Equal(t, "store write failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsInternal(err))
	assert.Equal(t, ErrCodeInternal, GetCode(err))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
}

func TestCodePredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("job %s not found", "abc")))
	assert.True(t, IsConflict(Conflict("duplicate id")))
	assert.True(t, IsValidation(ValidationField("command", "required")))
	assert.True(t, IsUnavailable(Unavailable("store unavailable")))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.Equal(t, "command", GetField(ValidationField("command", "required")))
}

func TestCodePredicatesSeeThroughWrapping(t *testing.T) {
	inner := NotFound("job not found")
	outer := fmt.Errorf("claim: %w", inner)
	assert.True(t, IsNotFound(outer))
}

func TestMapDBError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("no rows", func(t *testing.T) {
		err := MapDBError(pgx.ErrNoRows)
		assert.True(t, IsNotFound(err))
	})

	t.Run("context deadline", func(t *testing.T) {
		err := MapDBError(fmt.Errorf("query: %w", context.DeadlineExceeded))
		assert.True(t, IsTimeout(err))
	})

	t.Run("context canceled", func(t *testing.T) {
		err := MapDBError(context.Canceled)
		assert.True(t, IsCanceled(err))
	})

	t.Run("unique violation", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:   pgerrcode.UniqueViolation,
			Detail: "Key (id)=(job-1) already exists.",
		}
		err := MapDBError(pgErr)
		assert.True(t, IsConflict(err))
		assert.Equal(t, "id", GetField(err))
	})

	t.Run("not null violation", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "command"}
		err := MapDBError(pgErr)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "command", GetField(err))
	})

	t.Run("deadlock maps to unavailable", func(t *testing.T) {
		err := MapDBError(&pgconn.PgError{Code: pgerrcode.DeadlockDetected})
		assert.True(t, IsUnavailable(err))
	})

	t.Run("unknown pg error maps to internal", func(t *testing.T) {
		err := MapDBError(&pgconn.PgError{Code: pgerrcode.UndefinedTable})
		assert.True(t, IsInternal(err))
	})

	t.Run("unrecognized error passes through", func(t *testing.T) {
		plain := errors.New("plain")
		assert.Equal(t, plain, MapDBError(plain))
	})
}

func TestIsRetryableContention(t *testing.T) {
	assert.True(t, IsRetryableContention(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}))
	assert.True(t, IsRetryableContention(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.True(t, IsRetryableContention(&pgconn.PgError{Code: pgerrcode.LockNotAvailable}))
	assert.True(t, IsRetryableContention(&pgconn.PgError{Code: pgerrcode.ConnectionFailure}))

	assert.False(t, IsRetryableContention(nil))
	assert.False(t, IsRetryableContention(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsRetryableContention(errors.New("plain")))
}
