package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func readPacket(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	buf := make([]byte, 2048)
	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	return string(buf[:n])
}

func newTestClient(t *testing.T, pc net.PacketConn, cfg Config) *Client {
	t.Helper()
	cfg.Enabled = true
	cfg.Address = pc.LocalAddr().String()
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Hour
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  metrics.app  ": "metrics.app",
		"..foo..":         "foo",
		".":               "",
		"":                "",
	}
	for input, want := range tests {
		if got := sanitizePrefix(input); got != want {
			t.Fatalf("sanitizePrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" view/transition ": "view_transition",
		"auth..change":      "auth.change",
		"bad:name|x":        "bad_name_x",
		"...":               "",
	}
	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	got := formatTags(
		map[string]string{" kind ": " SIGNED_IN ", "": "ignored", "env": "prod"},
		map[string]string{"env": "stage"},
	)
	if want := "|#env:stage,kind:SIGNED_IN"; got != want {
		t.Fatalf("formatTags() = %q, want %q", got, want)
	}
	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil) = %q, want empty", got)
	}
}

func TestMergeTags(t *testing.T) {
	t.Parallel()

	if got := mergeTags("|#env:prod", "|#to:home"); got != "|#env:prod,to:home" {
		t.Fatalf("mergeTags() = %q", got)
	}
	if got := mergeTags("", "|#to:home"); got != "|#to:home" {
		t.Fatalf("mergeTags() = %q", got)
	}
	if got := mergeTags("|#env:prod", ""); got != "|#env:prod" {
		t.Fatalf("mergeTags() = %q", got)
	}
}

func TestClientBatchesUntilFlush(t *testing.T) {
	pc := listenUDP(t)
	client := newTestClient(t, pc, Config{Prefix: "gatehouse", GlobalTags: map[string]string{"env": "test"}})

	client.Count("view.transition", 1, map[string]string{"to": "home"})
	client.Gauge("view.mounted", 3, nil)
	client.Timing("auth.change.duration", 1500*time.Microsecond, nil)
	client.Flush()

	got := strings.Split(readPacket(t, pc), "\n")
	want := []string{
		"gatehouse.view.transition:1|c|#env:test,to:home",
		"gatehouse.view.mounted:3|g|#env:test",
		"gatehouse.auth.change.duration:1.5|ms|#env:test",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClientSplitsOversizedBatches(t *testing.T) {
	pc := listenUDP(t)
	client := newTestClient(t, pc, Config{MaxPacketSize: 20})

	client.Count("first.metric", 1, nil)  // 16 bytes
	client.Count("second.metric", 1, nil) // would overflow, so the first is sent alone

	if got := readPacket(t, pc); got != "first.metric:1|c" {
		t.Fatalf("first packet = %q", got)
	}
	client.Flush()
	if got := readPacket(t, pc); got != "second.metric:1|c" {
		t.Fatalf("second packet = %q", got)
	}
}

func TestClientFlushesOnInterval(t *testing.T) {
	pc := listenUDP(t)
	client := newTestClient(t, pc, Config{FlushInterval: 20 * time.Millisecond})

	client.Count("tick", 2, nil)

	if got := readPacket(t, pc); got != "tick:2|c" {
		t.Fatalf("packet = %q", got)
	}
}

func TestClientCloseFlushesAndDisables(t *testing.T) {
	pc := listenUDP(t)
	client := newTestClient(t, pc, Config{})

	client.Count("last", 1, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := readPacket(t, pc); got != "last:1|c" {
		t.Fatalf("packet = %q", got)
	}
	if client.Enabled() {
		t.Fatal("closed client should report disabled")
	}
	client.Count("dropped", 1, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDisabledAndNilClients(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Enabled() {
		t.Fatal("disabled client should not be enabled")
	}
	client.Count("x", 1, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var nilClient *Client
	nilClient.Count("x", 1, nil)
	nilClient.Gauge("x", 1, nil)
	nilClient.Timing("x", time.Second, nil)
	nilClient.Flush()
	if nilClient.Enabled() {
		t.Fatal("nil client should not be enabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
