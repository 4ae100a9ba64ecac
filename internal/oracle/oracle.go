// Package oracle defines the price-resolution collaborator boundary.
// Price requests are fire-and-forget; resolution arrives later (in
// production via NATS, in tests via a direct push), so every consumer
// splits into a request phase and a finalize-once-ready phase.
package oracle

import (
	"errors"
	"fmt"
	"sync"

	"SynthLedger/internal/fixedpoint"
)

// ErrPriceNotResolved is returned by GetPrice before the request has
// been resolved.
var ErrPriceNotResolved = errors.New("oracle: price not resolved")

// Oracle is the external price-resolution capability.
type Oracle interface {
	// RequestPrice registers interest in a price for (identifier, time).
	// Requesting the same pair twice is a no-op.
	RequestPrice(identifier string, timestamp int64)

	// HasPrice reports whether the price has been resolved.
	HasPrice(identifier string, timestamp int64) bool

	// GetPrice returns the resolved price. It must not be called before
	// HasPrice is true; it errors otherwise.
	GetPrice(identifier string, timestamp int64) (fixedpoint.Unsigned, error)
}

type requestKey struct {
	identifier string
	timestamp  int64
}

// Resolver is the in-process Oracle implementation. Requests accumulate
// in a pending table until Push delivers a resolution; the NATS
// subscriber feeds Push in production, tests call it directly.
type Resolver struct {
	mu       sync.RWMutex
	pending  map[requestKey]struct{}
	resolved map[requestKey]fixedpoint.Unsigned
}

func NewResolver() *Resolver {
	return &Resolver{
		pending:  make(map[requestKey]struct{}),
		resolved: make(map[requestKey]fixedpoint.Unsigned),
	}
}

func (r *Resolver) RequestPrice(identifier string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := requestKey{identifier, timestamp}
	if _, ok := r.resolved[key]; ok {
		return
	}
	r.pending[key] = struct{}{}
}

func (r *Resolver) HasPrice(identifier string, timestamp int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolved[requestKey{identifier, timestamp}]
	return ok
}

func (r *Resolver) GetPrice(identifier string, timestamp int64) (fixedpoint.Unsigned, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	price, ok := r.resolved[requestKey{identifier, timestamp}]
	if !ok {
		return fixedpoint.Zero(), fmt.Errorf("%w: %s@%d", ErrPriceNotResolved, identifier, timestamp)
	}
	return price, nil
}

// Push records a resolution. Unrequested pushes are accepted: the
// resolution feed does not know which requests originated here.
func (r *Resolver) Push(identifier string, timestamp int64, price fixedpoint.Unsigned) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := requestKey{identifier, timestamp}
	delete(r.pending, key)
	r.resolved[key] = price
}

// ResolvedPrice is one resolved (identifier, timestamp) price point.
type ResolvedPrice struct {
	Identifier string
	Timestamp  int64
	Price      fixedpoint.Unsigned
}

// PendingRequest is a price request still awaiting resolution.
type PendingRequest struct {
	Identifier string
	Timestamp  int64
}

// Snapshot copies the resolver's pending and resolved sets for
// persistence.
func (r *Resolver) Snapshot() ([]PendingRequest, []ResolvedPrice) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make([]PendingRequest, 0, len(r.pending))
	for key := range r.pending {
		pending = append(pending, PendingRequest{Identifier: key.identifier, Timestamp: key.timestamp})
	}
	resolved := make([]ResolvedPrice, 0, len(r.resolved))
	for key, price := range r.resolved {
		resolved = append(resolved, ResolvedPrice{Identifier: key.identifier, Timestamp: key.timestamp, Price: price})
	}
	return pending, resolved
}

// Restore replaces the resolver's state with a snapshot's.
func (r *Resolver) Restore(pending []PendingRequest, resolved []ResolvedPrice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = make(map[requestKey]struct{}, len(pending))
	for _, p := range pending {
		r.pending[requestKey{p.Identifier, p.Timestamp}] = struct{}{}
	}
	r.resolved = make(map[requestKey]fixedpoint.Unsigned, len(resolved))
	for _, p := range resolved {
		r.resolved[requestKey{p.Identifier, p.Timestamp}] = p.Price
	}
}

// PendingRequests returns the number of unresolved requests.
func (r *Resolver) PendingRequests() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}
