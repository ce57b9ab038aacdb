// Package statsd emits DogStatsD-style metrics over UDP.
package statsd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxPacketSize keeps a batch inside one Ethernet frame.
	DefaultMaxPacketSize = 1432
	// DefaultFlushInterval bounds how long a metric can sit in the buffer.
	DefaultFlushInterval = time.Second
)

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string

	// MaxPacketSize caps a batched datagram. Defaults to DefaultMaxPacketSize.
	MaxPacketSize int
	// FlushInterval is how often partial batches are sent. Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Client batches metric lines and sends them over UDP. It is safe for concurrent use.
// A nil *Client is a valid no-op sink.
type Client struct {
	prefix     string
	globalTags string
	maxPacket  int
	logger     *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	buf    bytes.Buffer
	closed bool

	stop chan struct{}
	done chan struct{}
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured endpoint and starts the flush loop. A disabled
// config yields a client that drops everything.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPacket := cfg.MaxPacketSize
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacketSize
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	client := &Client{
		prefix:     sanitizePrefix(cfg.Prefix),
		globalTags: formatTags(cfg.GlobalTags, nil),
		maxPacket:  maxPacket,
		logger:     logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		client.closed = true
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	client.conn = conn
	client.stop = make(chan struct{})
	client.done = make(chan struct{})

	go client.flushLoop(interval)
	return client, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.add(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.add(name, formatFloat(value), "g", tags)
}

// Timing records a timing metric in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.add(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Flush sends any buffered lines now.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Close flushes the buffer, stops the flush loop, and releases the socket.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.flushLocked()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return conn.Close()
}

func (c *Client) add(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.metricName(name)
	if metric == "" {
		return
	}
	line := metric + ":" + value + "|" + kind + mergeTags(c.globalTags, formatTags(tags, nil))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	// Lines are newline separated; flush first if this one would overflow the packet.
	if c.buf.Len() > 0 && c.buf.Len()+1+len(line) > c.maxPacket {
		c.flushLocked()
	}
	if c.buf.Len() > 0 {
		c.buf.WriteByte('\n')
	}
	c.buf.WriteString(line)
	if c.buf.Len() >= c.maxPacket {
		c.flushLocked()
	}
}

func (c *Client) flushLocked() {
	if c.buf.Len() == 0 || c.conn == nil {
		return
	}
	if _, err := c.conn.Write(c.buf.Bytes()); err != nil {
		c.logger.Debug("statsd write failed", "error", err)
	}
	c.buf.Reset()
}

func (c *Client) flushLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

func (c *Client) metricName(name string) string {
	normalized := normalizeMetricName(name)
	switch {
	case normalized == "":
		return ""
	case c.prefix == "":
		return normalized
	default:
		return c.prefix + "." + normalized
	}
}

func sanitizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), ".")
}

// normalizeMetricName maps characters the line protocol reserves to underscores.
func normalizeMetricName(name string) string {
	n := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', ':', '|', '@', '#', ',', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// formatTags renders tags as a sorted "|#k:v,..." suffix. Keys in override win.
func formatTags(tags, override map[string]string) string {
	merged := make(map[string]string, len(tags)+len(override))
	for _, src := range []map[string]string{tags, override} {
		for k, v := range src {
			if key := strings.TrimSpace(k); key != "" {
				merged[key] = strings.TrimSpace(v)
			}
		}
	}
	if len(merged) == 0 {
		return ""
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ":" + merged[k]
	}
	return "|#" + strings.Join(pairs, ",")
}

// mergeTags joins a pre-rendered global suffix with a per-metric one. Global tags
// come first; collectors resolve duplicates in favour of the last value.
func mergeTags(global, local string) string {
	switch {
	case global == "":
		return local
	case local == "":
		return global
	default:
		return global + "," + strings.TrimPrefix(local, "|#")
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
