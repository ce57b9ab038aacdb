package httpx

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gatehouse/gatehouse/internal/domain/shell"
)

// toast is the client-side payload for a notice, shared by SSE and Hx-Trigger.
type toast struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type"`
	At      string `json:"at,omitempty"`
}

func newToast(n shell.Notice) toast {
	t := toast{Title: n.Title, Message: n.Message, Type: string(n.Level)}
	if !n.At.IsZero() {
		t.At = n.At.UTC().Format(time.RFC3339)
	}
	return t
}

// sseStream writes text/event-stream frames and flushes after each one.
type sseStream struct {
	w  io.Writer
	rc *http.ResponseController
}

// startSSE writes the stream headers. It fails when the writer chain cannot flush.
func startSSE(w http.ResponseWriter) (*sseStream, error) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse flush: %w", err)
	}
	return &sseStream{w: w, rc: rc}, nil
}

// Event writes one named event. Multi-line payloads become multiple data lines.
func (s *sseStream) Event(name, id string, payload []byte) error {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(name)
	buf.WriteByte('\n')
	if id != "" {
		buf.WriteString("id: ")
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(make([]byte, 0, 4096), len(payload)+1)
	wrote := false
	for sc.Scan() {
		buf.WriteString("data: ")
		buf.Write(sc.Bytes())
		buf.WriteByte('\n')
		wrote = true
	}
	if !wrote {
		buf.WriteString("data: \n")
	}
	buf.WriteByte('\n')
	return s.write(buf.Bytes())
}

// JSON writes one named event with a JSON payload.
func (s *sseStream) JSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Event(name, "", b)
}

// Comment writes a keep-alive comment line.
func (s *sseStream) Comment(text string) error {
	return s.write([]byte(": " + strings.ReplaceAll(text, "\n", " ") + "\n\n"))
}

func (s *sseStream) write(b []byte) error {
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.rc.Flush()
}
