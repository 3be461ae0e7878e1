package registry

import (
	"sync"
)

// Kind identifies the variant of a subscription
type Kind int

const (
	// InboundFix streams the arrivals sequenced over one or more target fixes
	InboundFix Kind = iota
	// OutboundAirport streams the departures of one airport
	OutboundAirport
)

func (k Kind) String() string {
	switch k {
	case InboundFix:
		return "inbound-fix"
	case OutboundAirport:
		return "outbound-airport"
	default:
		return "unknown"
	}
}

// Subscription is one active client request
type Subscription struct {
	RequestID int64
	Kind      Kind

	// InboundFix
	ViaFixes            []string
	TargetFixes         []string
	DestinationAirports []string

	// OutboundAirport
	AirportIcao string
}

func (s Subscription) clone() Subscription {
	s.ViaFixes = cloneStrings(s.ViaFixes)
	s.TargetFixes = cloneStrings(s.TargetFixes)
	s.DestinationAirports = cloneStrings(s.DestinationAirports)
	return s
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Registry holds the active subscriptions of the connected client.
// All reads return copies, so callers may iterate while the receive loop mutates.
type Registry struct {
	mu sync.RWMutex

	subscriptions map[int64]Subscription
	order         []int64

	airports []string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		subscriptions: make(map[int64]Subscription),
	}
}

// Upsert stores a subscription under its request id. An existing entry keeps its
// position and has its filter fields replaced.
func (r *Registry) Upsert(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[sub.RequestID]; !exists {
		r.order = append(r.order, sub.RequestID)
	}
	r.subscriptions[sub.RequestID] = sub.clone()
}

// Remove deletes the subscription with the given request id and reports whether it existed
func (r *Registry) Remove(requestID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[requestID]; !exists {
		return false
	}
	delete(r.subscriptions, requestID)
	for i, id := range r.order {
		if id == requestID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every subscription and registered airport
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscriptions = make(map[int64]Subscription)
	r.order = nil
	r.airports = nil
}

// Get returns a copy of one subscription
func (r *Registry) Get(requestID int64) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscriptions[requestID]
	if !ok {
		return Subscription{}, false
	}
	return sub.clone(), true
}

// List returns copies of all subscriptions of one kind in insertion order
func (r *Registry) List(kind Kind) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscription, 0, len(r.order))
	for _, id := range r.order {
		sub := r.subscriptions[id]
		if sub.Kind == kind {
			out = append(out, sub.clone())
		}
	}
	return out
}

// Len returns the number of subscriptions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// RegisterAirport adds an airport to the airport-scoped stream; repeats are ignored
func (r *Registry) RegisterAirport(icao string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.airports {
		if a == icao {
			return false
		}
	}
	r.airports = append(r.airports, icao)
	return true
}

// UnregisterAirport removes an airport from the airport-scoped stream
func (r *Registry) UnregisterAirport(icao string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, a := range r.airports {
		if a == icao {
			r.airports = append(r.airports[:i], r.airports[i+1:]...)
			return true
		}
	}
	return false
}

// Airports returns the registered airports in registration order
func (r *Registry) Airports() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneStrings(r.airports)
}
