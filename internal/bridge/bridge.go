package bridge

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/aman-bridge/internal/host"
	"github.com/saviobatista/aman-bridge/internal/logging"
	"github.com/saviobatista/aman-bridge/internal/protocol"
	"github.com/saviobatista/aman-bridge/internal/registry"
	"github.com/saviobatista/aman-bridge/internal/sequencer"
	"github.com/saviobatista/aman-bridge/internal/stats"
	"github.com/saviobatista/aman-bridge/internal/storage"
	"github.com/saviobatista/aman-bridge/internal/types"
)

// Sender queues one outbound message for the connected client
type Sender interface {
	Enqueue(msg []byte) bool
}

// HistoryStore persists produced sequences
type HistoryStore interface {
	StoreArrivals(requestID int64, at time.Time, arrivals []types.SequencedArrival) error
}

// Auditor receives every applied client command
type Auditor interface {
	RecordCommand(rec *types.CommandRecord) error
}

// AuditorFunc adapts a function to Auditor
type AuditorFunc func(rec *types.CommandRecord) error

// RecordCommand implements Auditor
func (f AuditorFunc) RecordCommand(rec *types.CommandRecord) error {
	return f(rec)
}

// WireRecorder records raw protocol lines
type WireRecorder interface {
	Record(dir storage.Direction, line []byte) error
}

// Config holds the bridge settings
type Config struct {
	PluginVersion string
	// HistoryEvery persists sequences every N ticks, 0 disables history
	HistoryEvery int
	// CommandTimeout bounds a single host command
	CommandTimeout time.Duration
	// OnProtocolError is called for every inbound line that cannot be decoded
	OnProtocolError func(line []byte, err error)

	Stats *stats.Stats
}

// Bridge connects the client protocol to the host state. Connection callbacks
// arrive from the transport receive loop, Tick from the production loop.
type Bridge struct {
	cfg       Config
	provider  host.Provider
	commander host.Commander
	engine    *sequencer.Engine
	registry  *registry.Registry

	sender   Sender
	history  HistoryStore
	recorder WireRecorder
	auditors []Auditor

	mu     sync.Mutex
	connID string

	ticks  atomic.Uint64
	errLog *logging.Throttled
}

// New creates a bridge producing from provider and applying commands through commander
func New(cfg Config, provider host.Provider, commander host.Commander, engine *sequencer.Engine) *Bridge {
	if cfg.PluginVersion == "" {
		cfg.PluginVersion = "3.2.0"
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if engine == nil {
		engine = sequencer.New()
	}

	b := &Bridge{
		cfg:       cfg,
		provider:  provider,
		commander: commander,
		engine:    engine,
		registry:  registry.New(),
		errLog:    logging.NewThrottled("[bridge] ", 10*time.Second),
	}
	if b.cfg.OnProtocolError == nil {
		b.cfg.OnProtocolError = func(line []byte, err error) {
			b.errLog.Printf("Dropping inbound message: %v", err)
		}
	}
	return b
}

// SetSender sets the outbound queue. It must be called before the transport starts.
func (b *Bridge) SetSender(s Sender) {
	b.sender = s
}

// SetHistory enables sequence persistence
func (b *Bridge) SetHistory(h HistoryStore) {
	b.history = h
}

// SetRecorder enables wire recording
func (b *Bridge) SetRecorder(r WireRecorder) {
	b.recorder = r
}

// AddAuditor registers a receiver of applied commands
func (b *Bridge) AddAuditor(a Auditor) {
	b.auditors = append(b.auditors, a)
}

// OnConnect greets the new client with the plugin version and the controller info
func (b *Bridge) OnConnect(connID string) {
	b.mu.Lock()
	b.connID = connID
	b.mu.Unlock()

	log.Printf("Client connected (%s)", connID)

	b.send(protocol.EncodePluginVersion(b.cfg.PluginVersion))
	env := b.provider.Snapshot(time.Now()).Environment
	b.send(protocol.EncodeControllerInfo(env.Controller))
}

// OnLine decodes and applies one inbound line
func (b *Bridge) OnLine(line []byte) {
	b.record(storage.Inbound, line)

	cmd, err := protocol.Decode(line)
	if err == nil {
		err = Dispatch(b, cmd)
	}
	if err != nil {
		if b.cfg.Stats != nil {
			b.cfg.Stats.IncrementProtocolErrors()
		}
		b.cfg.OnProtocolError(line, err)
	}
}

// OnDisconnect drops every subscription of the departed client
func (b *Bridge) OnDisconnect(connID string, reason error) {
	b.registry.Clear()

	b.mu.Lock()
	if b.connID == connID {
		b.connID = ""
	}
	b.mu.Unlock()

	if reason != nil {
		log.Printf("Client disconnected (%s): %v", connID, reason)
	} else {
		log.Printf("Client disconnected (%s)", connID)
	}
}

// RegisterAirport implements CommandHandler
func (b *Bridge) RegisterAirport(icao string) {
	if b.registry.RegisterAirport(icao) {
		log.Printf("Registered airport %s", icao)
	}
}

// UnregisterAirport implements CommandHandler
func (b *Bridge) UnregisterAirport(icao string) {
	if b.registry.UnregisterAirport(icao) {
		log.Printf("Unregistered airport %s", icao)
	}
}

// SubscribeFix implements CommandHandler
func (b *Bridge) SubscribeFix(requestID int64, viaFixes, targetFixes, destinationAirports []string) {
	b.registry.Upsert(registry.Subscription{
		RequestID:           requestID,
		Kind:                registry.InboundFix,
		ViaFixes:            viaFixes,
		TargetFixes:         targetFixes,
		DestinationAirports: destinationAirports,
	})
}

// SubscribeOutbounds implements CommandHandler
func (b *Bridge) SubscribeOutbounds(requestID int64, airportIcao string) {
	b.registry.Upsert(registry.Subscription{
		RequestID:   requestID,
		Kind:        registry.OutboundAirport,
		AirportIcao: airportIcao,
	})
}

// Unsubscribe implements CommandHandler
func (b *Bridge) Unsubscribe(requestID int64) {
	b.registry.Remove(requestID)
}

// AssignRunway implements CommandHandler
func (b *Bridge) AssignRunway(callsign, runway string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CommandTimeout)
	defer cancel()

	if err := b.commander.AssignRunway(ctx, callsign, runway); err != nil {
		log.Printf("Warning: failed to assign runway %s to %s: %v", runway, callsign, err)
	}
	b.audit(protocol.CommandAssignRunway, callsign, runway)
}

// SetCtot implements CommandHandler
func (b *Bridge) SetCtot(callsign string, ctot int64) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CommandTimeout)
	defer cancel()

	hhmm := sequencer.FormatCtot(ctot)
	if err := b.commander.SetDepartureTime(ctx, callsign, hhmm); err != nil {
		log.Printf("Warning: failed to set CTOT %s for %s: %v", hhmm, callsign, err)
	}
	b.audit(protocol.CommandSetCtot, callsign, hhmm)
}

func (b *Bridge) audit(kind protocol.CommandKind, callsign, value string) {
	if b.cfg.Stats != nil {
		b.cfg.Stats.IncrementCommandsApplied()
	}

	b.mu.Lock()
	connID := b.connID
	b.mu.Unlock()

	rec := &types.CommandRecord{
		ID:           uuid.NewString(),
		ConnectionID: connID,
		Kind:         kind.String(),
		Callsign:     callsign,
		Value:        value,
		Timestamp:    time.Now().UTC(),
	}
	for _, a := range b.auditors {
		if err := a.RecordCommand(rec); err != nil {
			b.errLog.Printf("Warning: failed to audit %s command: %v", rec.Kind, err)
		}
	}
}

// Tick produces one round of messages for every subscription and registered airport
func (b *Bridge) Tick(now time.Time) {
	start := time.Now()
	tick := b.ticks.Add(1)
	persist := b.history != nil && b.cfg.HistoryEvery > 0 && tick%uint64(b.cfg.HistoryEvery) == 0

	state := b.provider.Snapshot(now)
	aircraft, env := state.Aircraft, state.Environment
	arrivalCount, departureCount := 0, 0

	for _, sub := range b.registry.List(registry.InboundFix) {
		arrivals := b.engine.Sequence(sequencer.Query{
			TargetFixes:         sub.TargetFixes,
			ViaFixes:            sub.ViaFixes,
			DestinationAirports: sub.DestinationAirports,
		}, aircraft, env)
		arrivalCount += len(arrivals)
		b.send(protocol.EncodeFixInbounds(sub.RequestID, arrivals))
		if persist {
			b.persist(sub.RequestID, now, arrivals)
		}
	}

	for _, sub := range b.registry.List(registry.OutboundAirport) {
		departures := b.engine.DeparturesFromAirport(sub.AirportIcao, aircraft)
		departureCount += len(departures)
		b.send(protocol.EncodeDepartureList(sub.RequestID, departures))
	}

	airports := b.registry.Airports()
	for _, icao := range airports {
		arrivals := b.engine.ArrivalsForAirport(icao, aircraft, env)
		arrivalCount += len(arrivals)
		b.send(protocol.EncodeArrivals(arrivals))
		if persist {
			b.persist(0, now, arrivals)
		}

		departures := b.engine.DeparturesFromAirport(icao, aircraft)
		departureCount += len(departures)
		b.send(protocol.EncodeDepartures(departures))
	}

	if len(airports) > 0 {
		b.send(protocol.EncodeRunwayStatuses(runwaysOf(env.Runways, airports)))
	}

	if b.cfg.Stats != nil {
		b.cfg.Stats.AddArrivalsSequenced(arrivalCount)
		b.cfg.Stats.AddDeparturesListed(departureCount)
		b.cfg.Stats.SetActiveAircraft(uint64(len(aircraft)))
		b.cfg.Stats.SetActiveSubscriptions(uint64(b.registry.Len()))
		b.cfg.Stats.RecordTick(time.Since(start))
	}
}

// Run ticks every interval until ctx is cancelled
func (b *Bridge) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			b.Tick(now)
		}
	}
}

func (b *Bridge) persist(requestID int64, at time.Time, arrivals []types.SequencedArrival) {
	if len(arrivals) == 0 {
		return
	}
	if err := b.history.StoreArrivals(requestID, at, arrivals); err != nil {
		b.errLog.Printf("Warning: failed to store sequence %d: %v", requestID, err)
	}
}

func (b *Bridge) send(msg []byte, err error) {
	if err != nil {
		b.errLog.Printf("Error encoding message: %v", err)
		return
	}
	if b.sender == nil || !b.sender.Enqueue(msg) {
		return
	}
	b.record(storage.Outbound, msg)
}

func (b *Bridge) record(dir storage.Direction, line []byte) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder.Record(dir, line); err != nil {
		b.errLog.Printf("Warning: failed to record wire line: %v", err)
	}
}

// runwaysOf keeps the runways of the given airports
func runwaysOf(runways []types.RunwayStatus, airports []string) []types.RunwayStatus {
	wanted := make(map[string]bool, len(airports))
	for _, icao := range airports {
		wanted[icao] = true
	}
	out := make([]types.RunwayStatus, 0, len(runways))
	for _, r := range runways {
		if wanted[r.AirportIcao] {
			out = append(out, r)
		}
	}
	return out
}
