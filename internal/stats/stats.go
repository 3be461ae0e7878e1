package stats

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Persister stores a statistics snapshot
type Persister interface {
	StoreBridgeStats(stats map[string]interface{}) error
}

// Stats tracks transport and production statistics
type Stats struct {
	// Connection counts
	ConnectionsAccepted uint64
	Disconnects         uint64

	// Outbound queue
	MessagesEnqueued uint64
	MessagesSent     uint64
	MessagesDropped  uint64 // enqueued while no client was connected
	MessagesCleared  uint64 // discarded from the queue on disconnect
	SendRetries      uint64
	SendFailures     uint64

	// Inbound
	LinesReceived   uint64
	ProtocolErrors  uint64
	CommandsApplied uint64

	// Production
	Ticks              uint64
	ArrivalsSequenced  uint64
	DeparturesListed   uint64
	FeedMessages       uint64
	ActiveAircraft     uint64
	ActiveSubscription uint64

	// Timing
	StartTime    time.Time
	LastTickTime time.Time
	TickDuration time.Duration

	db Persister

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{
		StartTime: time.Now(),
	}
}

// SetDB sets the persistence backend
func (s *Stats) SetDB(db Persister) {
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
}

// Persist stores the current statistics in the database
func (s *Stats) Persist() error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("database client not set")
	}

	return db.StoreBridgeStats(s.GetStats())
}

// IncrementConnectionsAccepted counts an accepted client connection
func (s *Stats) IncrementConnectionsAccepted() {
	atomic.AddUint64(&s.ConnectionsAccepted, 1)
}

// IncrementDisconnects counts a client disconnect
func (s *Stats) IncrementDisconnects() {
	atomic.AddUint64(&s.Disconnects, 1)
}

// IncrementMessagesEnqueued counts a message accepted onto the outbound queue
func (s *Stats) IncrementMessagesEnqueued() {
	atomic.AddUint64(&s.MessagesEnqueued, 1)
}

// IncrementMessagesSent counts a message fully written to the client
func (s *Stats) IncrementMessagesSent() {
	atomic.AddUint64(&s.MessagesSent, 1)
}

// IncrementMessagesDropped counts a message rejected because no client was connected
func (s *Stats) IncrementMessagesDropped() {
	atomic.AddUint64(&s.MessagesDropped, 1)
}

// AddMessagesCleared counts messages discarded from the queue on disconnect
func (s *Stats) AddMessagesCleared(n int) {
	atomic.AddUint64(&s.MessagesCleared, uint64(n))
}

// IncrementSendRetries counts a would-block write that was retried
func (s *Stats) IncrementSendRetries() {
	atomic.AddUint64(&s.SendRetries, 1)
}

// IncrementSendFailures counts a message lost after exhausting send retries
func (s *Stats) IncrementSendFailures() {
	atomic.AddUint64(&s.SendFailures, 1)
}

// IncrementLinesReceived counts an inbound line
func (s *Stats) IncrementLinesReceived() {
	atomic.AddUint64(&s.LinesReceived, 1)
}

// IncrementProtocolErrors counts an inbound line that could not be decoded
func (s *Stats) IncrementProtocolErrors() {
	atomic.AddUint64(&s.ProtocolErrors, 1)
}

// IncrementCommandsApplied counts a dispatched client command
func (s *Stats) IncrementCommandsApplied() {
	atomic.AddUint64(&s.CommandsApplied, 1)
}

// IncrementFeedMessages counts a host feed message
func (s *Stats) IncrementFeedMessages() {
	atomic.AddUint64(&s.FeedMessages, 1)
}

// AddArrivalsSequenced counts produced arrival entries
func (s *Stats) AddArrivalsSequenced(n int) {
	atomic.AddUint64(&s.ArrivalsSequenced, uint64(n))
}

// AddDeparturesListed counts produced departure entries
func (s *Stats) AddDeparturesListed(n int) {
	atomic.AddUint64(&s.DeparturesListed, uint64(n))
}

// SetActiveAircraft sets the number of aircraft in the last snapshot
func (s *Stats) SetActiveAircraft(count uint64) {
	atomic.StoreUint64(&s.ActiveAircraft, count)
}

// SetActiveSubscriptions sets the number of active subscriptions
func (s *Stats) SetActiveSubscriptions(count uint64) {
	atomic.StoreUint64(&s.ActiveSubscription, count)
}

// RecordTick counts a production tick and its duration
func (s *Stats) RecordTick(duration time.Duration) {
	atomic.AddUint64(&s.Ticks, 1)
	s.mu.Lock()
	s.LastTickTime = time.Now()
	s.TickDuration = duration
	s.mu.Unlock()
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"connections_accepted": atomic.LoadUint64(&s.ConnectionsAccepted),
		"disconnects":          atomic.LoadUint64(&s.Disconnects),
		"messages_enqueued":    atomic.LoadUint64(&s.MessagesEnqueued),
		"messages_sent":        atomic.LoadUint64(&s.MessagesSent),
		"messages_dropped":     atomic.LoadUint64(&s.MessagesDropped),
		"messages_cleared":     atomic.LoadUint64(&s.MessagesCleared),
		"send_retries":         atomic.LoadUint64(&s.SendRetries),
		"send_failures":        atomic.LoadUint64(&s.SendFailures),
		"lines_received":       atomic.LoadUint64(&s.LinesReceived),
		"protocol_errors":      atomic.LoadUint64(&s.ProtocolErrors),
		"commands_applied":     atomic.LoadUint64(&s.CommandsApplied),
		"ticks":                atomic.LoadUint64(&s.Ticks),
		"arrivals_sequenced":   atomic.LoadUint64(&s.ArrivalsSequenced),
		"departures_listed":    atomic.LoadUint64(&s.DeparturesListed),
		"feed_messages":        atomic.LoadUint64(&s.FeedMessages),
		"active_aircraft":      atomic.LoadUint64(&s.ActiveAircraft),
		"active_subscriptions": atomic.LoadUint64(&s.ActiveSubscription),
		"last_tick_time":       s.LastTickTime,
		"tick_duration":        s.TickDuration,
		"uptime":               time.Since(s.StartTime),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	stats := s.GetStats()
	return fmt.Sprintf(
		"Connections: %d accepted, %d disconnects\n"+
			"Messages: %d enqueued, %d sent, %d dropped, %d cleared\n"+
			"Send: %d retries, %d failures\n"+
			"Inbound: %d lines, %d protocol errors, %d commands\n"+
			"Ticks: %d (last %s)\n"+
			"Produced: %d arrivals, %d departures\n"+
			"Active: %d aircraft, %d subscriptions\n"+
			"Uptime: %s",
		stats["connections_accepted"], stats["disconnects"],
		stats["messages_enqueued"], stats["messages_sent"], stats["messages_dropped"], stats["messages_cleared"],
		stats["send_retries"], stats["send_failures"],
		stats["lines_received"], stats["protocol_errors"], stats["commands_applied"],
		stats["ticks"], stats["tick_duration"],
		stats["arrivals_sequenced"], stats["departures_listed"],
		stats["active_aircraft"], stats["active_subscriptions"],
		stats["uptime"],
	)
}

// StartPersistence periodically persists statistics until the context is cancelled
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			if err := s.Persist(); err != nil {
				log.Printf("Failed to persist final statistics: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				log.Printf("Failed to persist statistics: %v", err)
			}
		}
	}
}
