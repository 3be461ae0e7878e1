package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/aman-bridge/internal/nats"
	"github.com/saviobatista/aman-bridge/internal/sim"
	"github.com/saviobatista/aman-bridge/internal/types"
)

// FeedPublisher interface for testability
type FeedPublisher interface {
	PublishAircraft(snapshot *types.AircraftSnapshot) error
	PublishEnvironment(env *types.Environment) error
}

func defaultNatsURL() string {
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}
	return "nats://nats:4222" // Default to Docker service name
}

// publishOnce publishes the environment and every flying aircraft, returning the number
// of aircraft published
func publishOnce(pub FeedPublisher, scenario *sim.Scenario, elapsed time.Duration, now time.Time) (int, error) {
	env := scenario.Environment()
	if err := pub.PublishEnvironment(&env); err != nil {
		return 0, fmt.Errorf("failed to publish environment: %w", err)
	}

	published := 0
	for _, snap := range scenario.Snapshots(elapsed, now) {
		if err := pub.PublishAircraft(&snap); err != nil {
			log.Printf("Failed to publish aircraft %s: %v", snap.Callsign, err)
			continue
		}
		published++
	}
	return published, nil
}

// play publishes the scenario every interval until ctx is cancelled
func play(ctx context.Context, pub FeedPublisher, scenario *sim.Scenario) error {
	start := time.Now()
	ticker := time.NewTicker(scenario.Interval())
	defer ticker.Stop()

	last := -1
	for {
		now := time.Now()
		n, err := publishOnce(pub, scenario, now.Sub(start), now)
		if err != nil {
			return err
		}
		if n != last {
			log.Printf("Publishing %d aircraft", n)
			last = n
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func applyCommand(scenario *sim.Scenario) func(*types.CommandRecord) {
	return func(rec *types.CommandRecord) {
		if scenario.Apply(rec) {
			log.Printf("Applied %s %s=%s", rec.Kind, rec.Callsign, rec.Value)
		}
	}
}

func main() {
	scenarioPath := flag.String("scenario", "", "YAML scenario file")
	natsURL := flag.String("nats", defaultNatsURL(), "NATS server URL")
	flag.Parse()

	if *scenarioPath == "" {
		log.Printf("The -scenario flag is required")
		os.Exit(1)
	}

	script, err := sim.LoadScript(*scenarioPath)
	if err != nil {
		log.Printf("Failed to load scenario: %v", err)
		os.Exit(1)
	}
	scenario, err := sim.NewScenario(script)
	if err != nil {
		log.Printf("Invalid scenario: %v", err)
		os.Exit(1)
	}

	client, err := nats.New(*natsURL)
	if err != nil {
		log.Printf("Failed to create NATS client: %v", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.SubscribeCommands(applyCommand(scenario)); err != nil {
		log.Printf("Failed to subscribe to commands: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Playing %s every %v", *scenarioPath, scenario.Interval())
	if err := play(ctx, client, scenario); err != nil {
		log.Printf("Feed stopped: %v", err)
		return
	}
	log.Println("Shutting down...")
}
