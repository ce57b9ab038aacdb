package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DBConfig contains PostgreSQL configuration for the auth event journal.
type DBConfig struct {
	// Enabled turns on the journal. Without it no database is opened.
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"gatehouse"`
	Password string `env:"PASSWORD" envDefault:"gatehouse"`
	Name     string `env:"NAME"     envDefault:"gatehouse"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`

	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN renders the pgx connection URL. Credentials are escaped.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisTopology names how the Redis deployment is reached.
type RedisTopology string

const (
	RedisDirect   RedisTopology = "direct"
	RedisSentinel RedisTopology = "sentinel"
	RedisCluster  RedisTopology = "cluster"
)

// RedisConfig contains Redis configuration. Redis holds sessions, client
// bindings and, in the default setup, the change bus.
type RedisConfig struct {
	// URI is either host:port or a redis:// / rediss:// URL.
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// SessionPrefix namespaces session and client binding keys.
	SessionPrefix string `env:"SESSION_PREFIX" envDefault:"session:"`
}

// Topology reports which deployment shape the flags select. Cluster wins over sentinel.
func (c RedisConfig) Topology() RedisTopology {
	switch {
	case c.UseCluster:
		return RedisCluster
	case c.UseSentinel:
		return RedisSentinel
	default:
		return RedisDirect
	}
}

// UniversalOptions translates the config into go-redis options for the
// selected topology. URL credentials take precedence over Password.
func (c RedisConfig) UniversalOptions() (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{Password: c.Password, DB: c.DB}

	switch c.Topology() {
	case RedisSentinel:
		opts.Addrs = compact(c.SentinelNodes)
		opts.MasterName = c.SentinelMasterName
		opts.SentinelPassword = c.SentinelPassword
		if len(opts.Addrs) == 0 {
			return nil, errors.New("redis sentinel requires at least one sentinel node")
		}
		return opts, nil
	case RedisCluster:
		opts.Addrs = compact(c.ClusterNodes)
		opts.DB = 0
		if len(opts.Addrs) > 0 {
			return opts, nil
		}
	}

	uri := strings.TrimSpace(c.URI)
	if uri == "" {
		return nil, errors.New("redis URI is required")
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return opts, nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	if c.Topology() == RedisDirect {
		opts.DB = parsed.DB
	}
	opts.TLSConfig = parsed.TLSConfig
	return opts, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
