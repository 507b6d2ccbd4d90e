package publish

import (
	"sync"

	"github.com/lamht/forwarder/internal/tunnelurl"
)

// PublishState is the dedup and single-flight state behind a Gate.
type PublishState struct {
	LastPublished tunnelurl.TunnelURL `json:"last_published,omitempty"`
	InFlight      bool                `json:"in_flight"`
}

// Gate decides whether a detected URL must be published. At most one
// publish is in flight at any time, and the last approved URL is never
// approved again while it stays the last one. Offers made while a publish
// is in flight are dropped, not queued.
type Gate struct {
	mu    sync.Mutex
	state PublishState
}

// NewGate returns an empty gate.
func NewGate() *Gate { return &Gate{} }

// Offer reports whether the caller should publish url. On true the gate
// records url as last published and marks a publish in flight; the caller
// must call Done once the attempt finishes, whatever its outcome.
func (g *Gate) Offer(url tunnelurl.TunnelURL) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.InFlight || url == g.state.LastPublished {
		return false
	}
	g.state.InFlight = true
	g.state.LastPublished = url
	return true
}

// Done clears the in-flight flag.
func (g *Gate) Done() {
	g.mu.Lock()
	g.state.InFlight = false
	g.mu.Unlock()
}

// State returns a copy of the current state.
func (g *Gate) State() PublishState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
