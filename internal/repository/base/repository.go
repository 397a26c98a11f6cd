package base

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the part of pgx shared by the pool and a transaction
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// WithTx returns a context carrying the transaction
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// Repository базовый репозиторий с общими методами
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый базовый репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool возвращает пул соединений
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// DB returns the transaction bound to ctx, or the pool outside of a transaction
func (r *Repository) DB(ctx context.Context) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

// QueryRow выполняет запрос и возвращает одну строку
func (r *Repository) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return r.DB(ctx).QueryRow(ctx, query, args...)
}

// Query выполняет запрос и возвращает множество строк
func (r *Repository) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return r.DB(ctx).Query(ctx, query, args...)
}

// ExecAffected выполняет команду и возвращает количество затронутых строк
func (r *Repository) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.DB(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Postgres error codes the booking engine reacts to
const (
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeExclusionViolation   = "23P01"
)

// IsRetryable reports whether the transaction lost a serialization race and may be rerun
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == CodeSerializationFailure || pgErr.Code == CodeDeadlockDetected
}

// IsExclusionViolation reports whether an exclusion constraint rejected the write
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == CodeExclusionViolation
}

// ExclusionConflict is the existing key named by an exclusion violation
type ExclusionConflict struct {
	TutorID int64
	Start   time.Time
	End     time.Time
}

var existingKeyRe = regexp.MustCompile(`conflicts with existing key \(.*?\)=\((\d+), [\[(]"([^"]+)","([^"]+)"[\])]\)`)

// ParseExclusionConflict extracts the tutor and range of the row that won the slot
func ParseExclusionConflict(err error) (ExclusionConflict, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CodeExclusionViolation {
		return ExclusionConflict{}, false
	}

	m := existingKeyRe.FindStringSubmatch(pgErr.Detail)
	if m == nil {
		return ExclusionConflict{}, false
	}

	tutorID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ExclusionConflict{}, false
	}
	start, ok := parseRangeBound(m[2])
	if !ok {
		return ExclusionConflict{}, false
	}
	end, ok := parseRangeBound(m[3])
	if !ok {
		return ExclusionConflict{}, false
	}

	return ExclusionConflict{TutorID: tutorID, Start: start, End: end}, true
}

// дробные секунды time.Parse принимает и без указания в layout
func parseRangeBound(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05-07", "2006-01-02 15:04:05-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
