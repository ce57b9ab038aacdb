// Package memory provides in-process adapters used for local development and tests.
package memory

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
)

// ChangeBus is an in-process change bus. It satisfies both ports.ChangePublisher and
// domainauth.Listener so a single instance can feed a ChangeHub.
type ChangeBus struct {
	mu        sync.RWMutex
	listeners map[string]map[int]func(domainauth.ChangeEvent)
	nextID    int
}

// NewChangeBus constructs an empty bus.
func NewChangeBus() *ChangeBus {
	return &ChangeBus{listeners: make(map[string]map[int]func(domainauth.ChangeEvent))}
}

// Publish delivers ev synchronously to every listener of clientID.
func (b *ChangeBus) Publish(_ context.Context, clientID string, ev domainauth.ChangeEvent) error {
	if clientID == "" {
		return errors.New("client ID is required")
	}
	b.mu.RLock()
	fns := make([]func(domainauth.ChangeEvent), 0, len(b.listeners[clientID]))
	for _, fn := range b.listeners[clientID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// Listen registers deliver for clientID until ctx is cancelled.
func (b *ChangeBus) Listen(ctx context.Context, clientID string, deliver func(domainauth.ChangeEvent), ready func()) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.listeners[clientID] == nil {
		b.listeners[clientID] = make(map[int]func(domainauth.ChangeEvent))
	}
	b.listeners[clientID][id] = deliver
	b.mu.Unlock()

	if ready != nil {
		ready()
	}
	<-ctx.Done()

	b.mu.Lock()
	delete(b.listeners[clientID], id)
	if len(b.listeners[clientID]) == 0 {
		delete(b.listeners, clientID)
	}
	b.mu.Unlock()
	return ctx.Err()
}

// Listeners reports how many listeners are attached for clientID.
func (b *ChangeBus) Listeners(clientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[clientID])
}

var (
	_ ports.ChangePublisher = (*ChangeBus)(nil)
	_ domainauth.Listener   = (*ChangeBus)(nil)
)
