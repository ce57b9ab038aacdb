package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrListenerRequired indicates a hub cannot be constructed without a listener.
var ErrListenerRequired = errors.New("change hub listener is required")

// Listener receives change events for a single client from an upstream bus.
// Listen blocks until ctx is cancelled or the upstream fails. ready is called once
// the upstream subscription is established.
type Listener interface {
	Listen(ctx context.Context, clientID string, deliver func(ChangeEvent), ready func()) error
}

// Hub fans change events out to every subscriber of a client.
type Hub interface {
	Subscribe(clientID string) (func(), <-chan ChangeEvent)
	StopAll()
}

// HubOptions configure the behaviour of ChangeHub.
type HubOptions struct {
	Listener     Listener
	Backoff      time.Duration
	ReadyTimeout time.Duration
	Buffer       int
	Logger       *slog.Logger
}

type listenerState struct {
	cancel context.CancelFunc
	ready  chan struct{}
}

// ChangeHub shares one upstream listener per client between all of its subscribers.
type ChangeHub struct {
	listener     Listener
	backoff      time.Duration
	readyTimeout time.Duration
	buffer       int
	logger       *slog.Logger

	mu        sync.Mutex
	subs      map[string]map[chan ChangeEvent]struct{}
	listeners map[string]*listenerState
}

// NewChangeHub constructs a ChangeHub.
func NewChangeHub(opts HubOptions) (*ChangeHub, error) {
	if opts.Listener == nil {
		return nil, ErrListenerRequired
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 2 * time.Second
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ChangeHub{
		listener:     opts.Listener,
		backoff:      backoff,
		readyTimeout: readyTimeout,
		buffer:       buffer,
		logger:       logger.With("component", "change_hub"),
		subs:         make(map[string]map[chan ChangeEvent]struct{}),
		listeners:    make(map[string]*listenerState),
	}, nil
}

// Subscribe registers a new subscriber for clientID. The returned func releases the
// subscription and closes the channel; calling it more than once is safe.
// Subscribe waits up to the ready timeout for the upstream listener to attach.
func (h *ChangeHub) Subscribe(clientID string) (func(), <-chan ChangeEvent) {
	h.mu.Lock()
	state, ok := h.listeners[clientID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		state = &listenerState{cancel: cancel, ready: make(chan struct{})}
		h.listeners[clientID] = state
		go h.listenLoop(ctx, clientID, state.ready)
	}

	ch := make(chan ChangeEvent, h.buffer)
	if h.subs[clientID] == nil {
		h.subs[clientID] = make(map[chan ChangeEvent]struct{})
	}
	h.subs[clientID][ch] = struct{}{}
	ready := state.ready
	h.mu.Unlock()

	timer := time.NewTimer(h.readyTimeout)
	select {
	case <-ready:
	case <-timer.C:
	}
	timer.Stop()

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subscribers := h.subs[clientID]
		if subscribers == nil {
			return
		}
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			h.stopListener(clientID)
			delete(h.subs, clientID)
		}
	}

	return unsub, ch
}

// Subscribers reports how many subscribers clientID currently has.
func (h *ChangeHub) Subscribers(clientID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[clientID])
}

// StopAll cancels every listener and closes every subscriber channel.
func (h *ChangeHub) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for clientID, state := range h.listeners {
		state.cancel()
		delete(h.listeners, clientID)
	}
	for clientID, subscribers := range h.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(h.subs, clientID)
	}
}

func (h *ChangeHub) stopListener(clientID string) {
	state, ok := h.listeners[clientID]
	if !ok {
		return
	}
	state.cancel()
	delete(h.listeners, clientID)
}

func (h *ChangeHub) listenLoop(ctx context.Context, clientID string, ready chan struct{}) {
	var once sync.Once
	markReady := func() { once.Do(func() { close(ready) }) }
	defer markReady()

	deliver := func(ev ChangeEvent) {
		if ctx.Err() != nil {
			return
		}
		h.broadcast(clientID, ev)
	}

	for ctx.Err() == nil {
		err := h.listener.Listen(ctx, clientID, deliver, markReady)
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn("change listener stopped, retrying", "client_id", clientID, "error", err)
		timer := time.NewTimer(h.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// broadcast delivers ev to every subscriber. A subscriber whose buffer is full loses its
// oldest pending event so the most recent change always gets through.
func (h *ChangeHub) broadcast(clientID string, ev ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[clientID] {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// drainAndClose removes any buffered events before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan ChangeEvent) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Hub = (*ChangeHub)(nil)
