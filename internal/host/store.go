package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saviobatista/aman-bridge/internal/types"
)

// StoreConfig configures the in-memory host state
type StoreConfig struct {
	// MaxAircraft limits memory use. When exceeded, the least recently seen aircraft are evicted.
	MaxAircraft int
	// TTL controls how long an aircraft is kept without updates.
	TTL time.Duration
	// OnRemove, when set, receives the callsigns purged or evicted from the store.
	// It is called without the store lock held.
	OnRemove func(callsigns []string)
}

// Store keeps the latest feed state and the overrides applied by client commands.
// It implements both Provider and Commander.
type Store struct {
	mu sync.RWMutex

	cfg StoreConfig

	aircraft    map[string]entry
	environment types.Environment

	// callsign -> value
	runways        map[string]string
	departureTimes map[string]string
}

type entry struct {
	snapshot types.AircraftSnapshot
	seenAt   time.Time
}

// NewStore creates an empty store
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxAircraft <= 0 {
		cfg.MaxAircraft = 2000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Store{
		cfg:            cfg,
		aircraft:       make(map[string]entry),
		runways:        make(map[string]string),
		departureTimes: make(map[string]string),
	}
}

// UpsertAircraft stores the latest snapshot of an aircraft. An override the feed now
// agrees with is dropped.
func (s *Store) UpsertAircraft(now time.Time, snapshot types.AircraftSnapshot) {
	if snapshot.Callsign == "" {
		return
	}
	if now.IsZero() {
		now = time.Now()
	}
	if snapshot.ReceivedAt.IsZero() {
		snapshot.ReceivedAt = now
	}

	s.mu.Lock()

	if rwy, ok := s.runways[snapshot.Callsign]; ok && rwy == snapshot.FlightPlan.ArrivalRunway {
		delete(s.runways, snapshot.Callsign)
	}
	if edt, ok := s.departureTimes[snapshot.Callsign]; ok && edt == snapshot.FlightPlan.EstimatedDepartureTime {
		delete(s.departureTimes, snapshot.Callsign)
	}

	s.aircraft[snapshot.Callsign] = entry{snapshot: snapshot, seenAt: now}
	var evicted []string
	for len(s.aircraft) > s.cfg.MaxAircraft {
		var oldest string
		var oldestAt time.Time
		first := true
		for callsign, e := range s.aircraft {
			if first || e.seenAt.Before(oldestAt) {
				oldest = callsign
				oldestAt = e.seenAt
				first = false
			}
		}
		s.remove(oldest)
		evicted = append(evicted, oldest)
	}
	s.mu.Unlock()

	s.notifyRemoved(evicted)
}

// remove drops an aircraft together with its overrides. Caller holds the lock.
func (s *Store) remove(callsign string) {
	delete(s.aircraft, callsign)
	delete(s.runways, callsign)
	delete(s.departureTimes, callsign)
}

func (s *Store) notifyRemoved(callsigns []string) {
	if len(callsigns) > 0 && s.cfg.OnRemove != nil {
		s.cfg.OnRemove(callsigns)
	}
}

// SetEnvironment replaces the non-aircraft host state
func (s *Store) SetEnvironment(env types.Environment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.environment = env
}

// Snapshot purges stale aircraft and returns the current state sorted by callsign,
// with overrides applied
func (s *Store) Snapshot(now time.Time) State {
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.Lock()
	cutoff := now.Add(-s.cfg.TTL)
	var purged []string
	for callsign, e := range s.aircraft {
		if e.seenAt.Before(cutoff) {
			s.remove(callsign)
			purged = append(purged, callsign)
		}
	}

	out := make([]types.AircraftSnapshot, 0, len(s.aircraft))
	for callsign, e := range s.aircraft {
		snap := e.snapshot
		if rwy, ok := s.runways[callsign]; ok {
			snap.FlightPlan.ArrivalRunway = rwy
		}
		if edt, ok := s.departureTimes[callsign]; ok {
			snap.FlightPlan.EstimatedDepartureTime = edt
		}
		out = append(out, snap)
	}

	env := s.environment
	env.Runways = append([]types.RunwayStatus(nil), s.environment.Runways...)
	s.mu.Unlock()

	sort.Strings(purged)
	s.notifyRemoved(purged)

	sort.Slice(out, func(i, j int) bool { return out[i].Callsign < out[j].Callsign })
	return State{Aircraft: out, Environment: env}
}

// AssignRunway records a local arrival runway override
func (s *Store) AssignRunway(ctx context.Context, callsign, runway string) error {
	return s.ApplyOverride(OverrideRunway, callsign, runway)
}

// SetDepartureTime records a local estimated departure time override.
// Both HH:MM and HHMM are accepted.
func (s *Store) SetDepartureTime(ctx context.Context, callsign, hhmm string) error {
	return s.ApplyOverride(OverrideDepartureTime, callsign, hhmm)
}

// ApplyOverride records an override of the given kind. Departure times are stored
// in the HHMM form of the flight plan.
func (s *Store) ApplyOverride(kind, callsign, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case OverrideRunway:
		s.runways[callsign] = value
	case OverrideDepartureTime:
		s.departureTimes[callsign] = strings.ReplaceAll(value, ":", "")
	default:
		return fmt.Errorf("unknown override kind %q", kind)
	}
	return nil
}

// Len returns the number of stored aircraft, including stale ones not yet purged
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aircraft)
}
