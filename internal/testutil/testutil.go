// Package testutil connects integration tests to the Postgres and Redis
// instances started by the docker-compose test profile. Tests skip when the
// infrastructure is missing unless TEST_REQUIRE_INFRA (or the per-store
// variant) is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse/gatehouse/internal/migrate"
)

const pingTimeout = 2 * time.Second

// Postgres describes where the test database lives.
type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// PostgresFromEnv reads TEST_DB_* overrides. The port defaults to 55432 so a
// developer database on 5432 is never touched by accident.
func PostgresFromEnv() Postgres {
	return Postgres{
		Host:     env("TEST_DB_HOST", "localhost"),
		Port:     env("TEST_DB_PORT", "55432"),
		User:     env("TEST_DB_USER", "gatehouse"),
		Password: env("TEST_DB_PASSWORD", "gatehouse"),
		Name:     env("TEST_DB_NAME", "gatehouse"),
		SSLMode:  env("DB_SSL_MODE", "disable"),
	}
}

// DSN renders a pgx connection URL, optionally pinned to a search_path.
func (p Postgres) DSN(searchPath string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
		Path:   "/" + p.Name,
	}
	q := url.Values{"sslmode": {p.SSLMode}}
	if searchPath != "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// WithAutoDB runs fn against a freshly migrated schema that is dropped once
// the test finishes.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	fn(SetupDB(t))
}

// SetupDB opens a connection scoped to a private schema and applies the
// migrations to it.
func SetupDB(t testing.TB) *sql.DB {
	t.Helper()
	cfg := PostgresFromEnv()

	admin, err := openPinged(cfg.DSN(""))
	if err != nil {
		unavailable(t, "postgres", requireFlag("TEST_REQUIRE_DB"), err)
	}
	t.Cleanup(func() { _ = admin.Close() })

	schema := randomSchema()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := openPinged(cfg.DSN(schema + ",public"))
	if err != nil {
		t.Fatalf("open schema %s: %v", schema, err)
	}
	db.SetMaxOpenConns(5)

	// Registered after admin's cleanup so it runs first.
	t.Cleanup(func() {
		_ = db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := admin.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})

	if err := migrate.Run(ctx, db, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	return db
}

// SetupTestRedis returns a client on an isolated logical database that has
// been flushed. REDIS_ADDR and TEST_REDIS_DB override the defaults.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr := env("REDIS_ADDR", "localhost:56379")
	db := 1
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			t.Fatalf("invalid TEST_REDIS_DB %q", v)
		}
		db = n
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, "redis at "+addr, requireFlag("TEST_REQUIRE_REDIS"), err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis db %d: %v", db, err)
	}
	return client
}

func openPinged(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func unavailable(t testing.TB, what string, required bool, err error) {
	t.Helper()
	if required {
		t.Fatalf("%s not available: %v", what, err)
	}
	t.Skipf("%s not available: %v", what, err)
}

func randomSchema() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireFlag(key string) bool {
	return truthy(os.Getenv(key)) || truthy(os.Getenv("TEST_REQUIRE_INFRA"))
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
