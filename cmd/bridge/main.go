package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/aman-bridge/internal/bridge"
	"github.com/saviobatista/aman-bridge/internal/config"
	"github.com/saviobatista/aman-bridge/internal/db"
	"github.com/saviobatista/aman-bridge/internal/host"
	"github.com/saviobatista/aman-bridge/internal/logging"
	"github.com/saviobatista/aman-bridge/internal/nats"
	"github.com/saviobatista/aman-bridge/internal/redis"
	"github.com/saviobatista/aman-bridge/internal/sequencer"
	"github.com/saviobatista/aman-bridge/internal/stats"
	"github.com/saviobatista/aman-bridge/internal/storage"
	"github.com/saviobatista/aman-bridge/internal/transport"
	"github.com/saviobatista/aman-bridge/internal/types"
	"golang.org/x/sync/errgroup"
)

// AircraftCache interface for testability
type AircraftCache interface {
	StoreAircraft(ctx context.Context, snapshot *types.AircraftSnapshot) error
	DeleteAircraft(ctx context.Context, callsign string) error
}

// forgetAircraft returns a store removal hook that drops the aircraft from the cache
// in the background, keeping Redis latency out of the tick
func forgetAircraft(cache AircraftCache) func([]string) {
	return func(callsigns []string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, callsign := range callsigns {
				if err := cache.DeleteAircraft(ctx, callsign); err != nil {
					log.Printf("Warning: Failed to remove aircraft %s from Redis: %v", callsign, err)
				}
			}
		}()
	}
}

// feedSink applies feed messages to the host store and mirrors aircraft to the cache
type feedSink struct {
	store *host.Store
	cache AircraftCache
	stats *stats.Stats
}

// UpsertAircraft implements nats.FeedSink
func (f *feedSink) UpsertAircraft(now time.Time, snapshot types.AircraftSnapshot) {
	f.store.UpsertAircraft(now, snapshot)
	f.stats.IncrementFeedMessages()

	if f.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.cache.StoreAircraft(ctx, &snapshot); err != nil {
		log.Printf("Warning: Failed to cache aircraft %s in Redis: %v", snapshot.Callsign, err)
	}
}

// SetEnvironment implements nats.FeedSink
func (f *feedSink) SetEnvironment(env types.Environment) {
	f.store.SetEnvironment(env)
	f.stats.IncrementFeedMessages()
}

// backends holds the optional external clients
type backends struct {
	nats  *nats.Client
	redis *redis.Client
	db    *db.Client
}

// connectBackends connects every backend configured in cfg
func connectBackends(cfg *config.Config) (*backends, error) {
	b := &backends{}

	if cfg.NatsURL != "" {
		client, err := nats.New(cfg.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS client: %w", err)
		}
		b.nats = client
	}

	if cfg.RedisAddr != "" {
		client, err := redis.New(cfg.RedisAddr)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		b.redis = client
	}

	if cfg.DBConnStr != "" {
		client, err := db.New(cfg.DBConnStr)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to create database client: %w", err)
		}
		b.db = client
	}

	return b, nil
}

// Close closes every connected backend
func (b *backends) Close() {
	if b.nats != nil {
		b.nats.Close()
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing redisClient: %v\n", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", err)
		}
	}
}

// app is one assembled bridge process
type app struct {
	cfg      *config.Config
	store    *host.Store
	stats    *stats.Stats
	backends *backends
	recorder *storage.Storage
	bridge   *bridge.Bridge
	server   *transport.Server
}

// newApp wires the host store, backends, bridge and transport
func newApp(cfg *config.Config, be *backends) (*app, error) {
	storeCfg := host.StoreConfig{TTL: cfg.AircraftTTL}
	if be.redis != nil {
		storeCfg.OnRemove = forgetAircraft(be.redis)
	}
	a := &app{
		cfg:      cfg,
		store:    host.NewStore(storeCfg),
		stats:    stats.New(),
		backends: be,
	}

	if be.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		count, err := be.redis.WarmStore(ctx, a.store)
		cancel()
		if err != nil {
			log.Printf("Warning: Failed to restore state from Redis: %v", err)
		} else if count > 0 {
			log.Printf("Restored %d overrides and aircraft from Redis", count)
		}
	}

	commanders := host.Commanders{a.store}
	if be.redis != nil {
		commanders = append(commanders, be.redis)
	}

	a.bridge = bridge.New(bridge.Config{
		PluginVersion: cfg.PluginVersion,
		HistoryEvery:  cfg.HistoryEvery,
		Stats:         a.stats,
	}, a.store, commanders, sequencer.New())

	if be.nats != nil {
		a.bridge.AddAuditor(bridge.AuditorFunc(be.nats.PublishCommand))
	}
	if be.db != nil {
		a.bridge.AddAuditor(bridge.AuditorFunc(be.db.StoreCommand))
		a.bridge.SetHistory(be.db)
		a.stats.SetDB(be.db)
	}

	if cfg.WireLogDir != "" {
		a.recorder = storage.New(cfg.WireLogDir)
		if err := a.recorder.Start(); err != nil {
			return nil, fmt.Errorf("failed to start wire recorder: %w", err)
		}
		a.bridge.SetRecorder(a.recorder)
	}

	if be.nats != nil {
		var cache AircraftCache
		if be.redis != nil {
			cache = be.redis
		}
		if err := be.nats.SubscribeFeed(&feedSink{store: a.store, cache: cache, stats: a.stats}); err != nil {
			a.closeRecorder()
			return nil, fmt.Errorf("failed to subscribe to feed: %w", err)
		}
	}

	a.server = transport.New(transport.Config{
		Addr:        cfg.ListenAddr,
		SendRetries: cfg.SendRetries,
		Stats:       a.stats,
	}, a.bridge)
	a.bridge.SetSender(a.server)

	return a, nil
}

// Run serves clients and produces until ctx is cancelled or the transport fails
func (a *app) Run(ctx context.Context) error {
	if err := a.server.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			a.server.Stop()
			return nil
		case <-a.server.Done():
			if err := a.server.Err(); err != nil {
				return fmt.Errorf("transport stopped: %w", err)
			}
			return nil
		}
	})

	g.Go(func() error {
		return a.bridge.Run(gctx, a.cfg.TickInterval)
	})

	g.Go(func() error {
		a.logStats(gctx)
		return nil
	})

	if a.backends.db != nil {
		g.Go(func() error {
			a.stats.StartPersistence(gctx, 5*time.Minute)
			return nil
		})
	}

	err := g.Wait()
	a.server.Stop()
	return err
}

// logStats periodically logs statistics
func (a *app) logStats(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Statistics:\n%s", a.stats.String())
		}
	}
}

func (a *app) closeRecorder() {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing wire recorder: %v\n", err)
	}
}

// Close releases the recorder
func (a *app) Close() {
	a.closeRecorder()
}

func run(ctx context.Context, cfg *config.Config) error {
	be, err := connectBackends(cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	a, err := newApp(cfg, be)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logCloser := logging.Setup(cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Bridge failed: %v", err)
		logCloser.Close()
		os.Exit(1)
	}

	log.Println("Shutting down...")
	logCloser.Close()
}
