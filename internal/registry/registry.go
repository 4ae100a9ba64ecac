// Package registry holds the whitelist and service-discovery
// collaborators consulted at contract construction.
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Service names resolvable through the Finder.
const (
	ServiceOracle = "Oracle"
	ServiceStore  = "Store"
	ServiceAdmin  = "FinancialContractsAdmin"
)

// IdentifierWhitelist tracks the price identifiers the oracle supports.
type IdentifierWhitelist struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewIdentifierWhitelist(identifiers ...string) *IdentifierWhitelist {
	w := &IdentifierWhitelist{ids: make(map[string]struct{})}
	for _, id := range identifiers {
		w.ids[id] = struct{}{}
	}
	return w
}

func (w *IdentifierWhitelist) AddSupportedIdentifier(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[id] = struct{}{}
}

func (w *IdentifierWhitelist) IsIdentifierSupported(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.ids[id]
	return ok
}

// AddressWhitelist tracks approved collateral assets by symbol.
type AddressWhitelist struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewAddressWhitelist(members ...string) *AddressWhitelist {
	w := &AddressWhitelist{members: make(map[string]struct{})}
	for _, m := range members {
		w.members[m] = struct{}{}
	}
	return w
}

func (w *AddressWhitelist) AddToWhitelist(member string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.members[member] = struct{}{}
}

func (w *AddressWhitelist) IsOnWhitelist(member string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.members[member]
	return ok
}

// Finder resolves collaborator services by name and knows the admin
// identity allowed to trigger emergency shutdown.
type Finder struct {
	mu       sync.RWMutex
	services map[string]any
	admin    uuid.UUID
}

func NewFinder(admin uuid.UUID) *Finder {
	return &Finder{services: make(map[string]any), admin: admin}
}

func (f *Finder) Register(name string, svc any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[name] = svc
}

func (f *Finder) Lookup(name string) (any, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	svc, ok := f.services[name]
	if !ok {
		return nil, fmt.Errorf("registry: service %q not registered", name)
	}
	return svc, nil
}

// AdminID returns the identity allowed to call emergency shutdown.
func (f *Finder) AdminID() uuid.UUID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.admin
}

// IsAdmin reports whether the identity is the financial-contracts
// admin.
func (f *Finder) IsAdmin(id uuid.UUID) bool {
	return id == f.AdminID()
}
