// Package memory is an in-process session registry standing in for the
// network gateway. It tracks who is connected and records why sessions were
// dropped.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"banguard/internal/ban/models"
	"banguard/pkg/platform/sentinel"
	"banguard/pkg/requestcontext"
)

type session struct {
	identity    models.Identity
	connectedAt time.Time
}

// Disconnection is a dropped session and the message shown to the player.
type Disconnection struct {
	Name    string
	Message string
	At      time.Time
}

type Gateway struct {
	mu           sync.RWMutex
	sessions     map[string]session
	disconnected []Disconnection
}

func New() *Gateway {
	return &Gateway{sessions: make(map[string]session)}
}

// Connect registers a session, replacing any session with the same name.
func (g *Gateway) Connect(ctx context.Context, id models.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[strings.ToLower(id.Name)] = session{identity: id, connectedAt: requestcontext.Now(ctx)}
}

func (g *Gateway) CurrentIdentity(_ context.Context, name string) (models.Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[strings.ToLower(name)]
	return s.identity, ok
}

func (g *Gateway) IsConnected(_ context.Context, name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sessions[strings.ToLower(name)]
	return ok
}

// Disconnect drops the named session. It returns sentinel.ErrNotFound when
// no such session exists.
func (g *Gateway) Disconnect(ctx context.Context, name, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := strings.ToLower(name)
	s, ok := g.sessions[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(g.sessions, key)
	g.disconnected = append(g.disconnected, Disconnection{
		Name:    s.identity.Name,
		Message: message,
		At:      requestcontext.Now(ctx),
	})
	return nil
}

// Sessions returns the connected identities sorted by name.
func (g *Gateway) Sessions() []models.Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Identity, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s.identity)
	}
	slices.SortFunc(out, func(a, b models.Identity) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Disconnections returns every dropped session in order.
func (g *Gateway) Disconnections() []Disconnection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.disconnected)
}
