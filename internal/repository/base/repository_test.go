package base

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: CodeSerializationFailure}))
	assert.True(t, IsRetryable(fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: CodeDeadlockDetected})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(pgx.ErrNoRows))
	assert.False(t, IsRetryable(nil))
}

func TestIsExclusionViolation(t *testing.T) {
	assert.True(t, IsExclusionViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeExclusionViolation})))
	assert.False(t, IsExclusionViolation(&pgconn.PgError{Code: CodeSerializationFailure}))
}

func TestParseExclusionConflict(t *testing.T) {
	detail := `Key (tutor_id, tstzrange(scheduled_at, ends_at, '[)'::text))=(3, ["2024-03-04 10:30:00+00","2024-03-04 11:30:00+00")) ` +
		`conflicts with existing key (tutor_id, tstzrange(scheduled_at, ends_at, '[)'::text))=(3, ["2024-03-04 10:00:00+00","2024-03-04 11:00:00+00")).`

	conflict, ok := ParseExclusionConflict(fmt.Errorf("create booking: %w", &pgconn.PgError{Code: CodeExclusionViolation, Detail: detail}))
	require.True(t, ok)
	assert.Equal(t, int64(3), conflict.TutorID)
	assert.True(t, conflict.Start.Equal(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)))
	assert.True(t, conflict.End.Equal(time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)))
}

func TestParseExclusionConflict_NonUTCSession(t *testing.T) {
	detail := `Key (tutor_id, tstzrange(scheduled_at, ends_at, '[)'::text))=(3, ["2024-03-04 16:00:00+05:30","2024-03-04 17:00:00+05:30")) ` +
		`conflicts with existing key (tutor_id, tstzrange(scheduled_at, ends_at, '[)'::text))=(3, ["2024-03-04 15:30:00.5+05:30","2024-03-04 16:30:00+05:30")).`

	conflict, ok := ParseExclusionConflict(&pgconn.PgError{Code: CodeExclusionViolation, Detail: detail})
	require.True(t, ok)
	assert.True(t, conflict.Start.Equal(time.Date(2024, 3, 4, 10, 0, 0, 500_000_000, time.UTC)))
	assert.True(t, conflict.End.Equal(time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)))
}

func TestParseExclusionConflict_Unrecognized(t *testing.T) {
	_, ok := ParseExclusionConflict(&pgconn.PgError{Code: CodeExclusionViolation, Detail: "something else"})
	assert.False(t, ok)

	_, ok = ParseExclusionConflict(&pgconn.PgError{Code: CodeSerializationFailure})
	assert.False(t, ok)

	_, ok = ParseExclusionConflict(assert.AnError)
	assert.False(t, ok)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("get booking: %w", pgx.ErrNoRows)))
	assert.False(t, IsNotFound(assert.AnError))
}

func TestTxFromContext(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	assert.False(t, ok)
}
