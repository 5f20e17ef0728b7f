// Package postgres implements the stat store on PostgreSQL.
// Every rule that must hold under concurrent writers (streak transition,
// unique unlocks, best score) is expressed as a single SQL statement.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/beanwise/learning-engine/pkg/logger"
)

// ErrMigrationFailed wraps the error of a migration step.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Config tunes the pgx pool. Zero values keep pgxpool defaults.
type Config struct {
	URL string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration

	// Logger receives pgx warnings and errors. Nil keeps pgx quiet.
	Logger *logger.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	setIf := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	setIf(&pc.MaxConnLifetime, c.MaxConnLifetime)
	setIf(&pc.MaxConnIdleTime, c.MaxConnIdleTime)
	setIf(&pc.HealthCheckPeriod, c.HealthCheckPeriod)
	setIf(&pc.ConnConfig.ConnectTimeout, c.ConnectTimeout)

	if c.Logger != nil {
		pc.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   pgxLogger(c.Logger.With(logger.Component("pgx"))),
			LogLevel: tracelog.LogLevelWarn,
		}
	}
	return pc, nil
}

// pgxLogger forwards pgx trace output to the engine logger.
func pgxLogger(log *logger.Logger) tracelog.LoggerFunc {
	return func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		fields := make([]logger.Field, 0, len(data))
		for k, v := range data {
			fields = append(fields, logger.Any(k, v))
		}
		if level <= tracelog.LogLevelError {
			log.Error(msg, fields...)
			return
		}
		log.Warn(msg, fields...)
	}
}

// Connection is the pool shared by all repositories.
type Connection struct {
	*pgxpool.Pool
}

// NewConnection opens the pool and fails fast when the database does not answer.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{Pool: pool}, nil
}

// WithTx runs fn in a read-committed transaction, committing only when fn
// returns nil.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, c.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// Querier is satisfied by *Connection and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLSTATE codes the repositories branch on.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool { return sqlState(err) == codeUniqueViolation }
func IsNoRows(err error) bool          { return errors.Is(err, pgx.ErrNoRows) }

// IsSerializationFailure reports conflicts worth retrying.
func IsSerializationFailure(err error) bool {
	switch sqlState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
