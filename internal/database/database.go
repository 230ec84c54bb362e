package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"refdata/internal/config"
)

const (
	applicationName = "refdata"
	connectTimeout  = 5 * time.Second
	maxRetryDelay   = 5 * time.Second
)

var (
	sqlOpen          = sql.Open
	firstRetryDelay  = 500 * time.Millisecond
	errMissingFields = errors.New("invalid database config: host, port, user, and name are required")
)

// BuildPostgresDSN renders c as a postgres:// URL. Credentials are escaped and
// the session is tagged with application_name so it shows up in pg_stat_activity.
func BuildPostgresDSN(c config.DatabaseConfig) (string, error) {
	if c.Host == "" || c.Port == "" || c.User == "" || c.Name == "" {
		return "", errMissingFields
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   c.Name,
		User:   url.User(c.User),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	q.Set("application_name", applicationName)
	q.Set("connect_timeout", fmt.Sprint(int(connectTimeout.Seconds())))
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// NewPostgres returns a traced connection pool for the reference store. It
// pings the server up to c.ConnectRetries times, backing off between attempts,
// so the service can start alongside a database that is still booting.
func NewPostgres(ctx context.Context, c config.DatabaseConfig, log *zap.Logger) (*sql.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dsn, err := BuildPostgresDSN(c)
	if err != nil {
		return nil, err
	}

	driverName, err := otelsql.Register("pgx",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL, semconv.DBName(c.Name)),
		otelsql.WithSQLCommenter(true),
		otelsql.WithSpanOptions(otelsql.SpanOptions{OmitConnResetSession: true, OmitRows: true}),
	)
	if err != nil {
		return nil, fmt.Errorf("register traced driver: %w", err)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	configurePool(db, c)

	if err := waitForServer(ctx, db, c, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("db_connected",
		zap.String("host", c.Host),
		zap.String("database", c.Name),
		zap.Int("max_open_conns", c.MaxOpenConns),
	)
	return db, nil
}

func configurePool(db *sql.DB, c config.DatabaseConfig) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetimeSec) * time.Second)
	}
}

// waitForServer pings db until it answers, the attempts run out or ctx ends.
func waitForServer(ctx context.Context, db *sql.DB, c config.DatabaseConfig, log *zap.Logger) error {
	attempts := max(c.ConnectRetries, 1)
	delay := firstRetryDelay

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt >= attempts || ctx.Err() != nil {
			return fmt.Errorf("db ping after %d attempt(s): %w", attempt, err)
		}

		log.Warn("db_ping_retry",
			zap.String("host", c.Host),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("db ping: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}
