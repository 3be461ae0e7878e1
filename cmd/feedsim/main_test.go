package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saviobatista/aman-bridge/internal/sim"
	"github.com/saviobatista/aman-bridge/internal/types"
)

type fakePublisher struct {
	mu          sync.Mutex
	aircraft    []string
	envs        int
	envErr      error
	aircraftErr error
}

func (p *fakePublisher) PublishAircraft(snapshot *types.AircraftSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.aircraftErr != nil {
		return p.aircraftErr
	}
	p.aircraft = append(p.aircraft, snapshot.Callsign)
	return nil
}

func (p *fakePublisher) PublishEnvironment(env *types.Environment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.envErr != nil {
		return p.envErr
	}
	p.envs++
	return nil
}

func (p *fakePublisher) environments() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.envs
}

func loadScenario(t *testing.T) *sim.Scenario {
	t.Helper()
	script, err := sim.LoadScript("testdata/engm.yaml")
	if err != nil {
		t.Fatalf("LoadScript() failed: %v", err)
	}
	scenario, err := sim.NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario() failed: %v", err)
	}
	return scenario
}

func TestDefaultNatsURL(t *testing.T) {
	t.Setenv("NATS_URL", "")
	if got := defaultNatsURL(); got != "nats://nats:4222" {
		t.Errorf("defaultNatsURL() = %q", got)
	}

	t.Setenv("NATS_URL", "nats://localhost:4222")
	if got := defaultNatsURL(); got != "nats://localhost:4222" {
		t.Errorf("defaultNatsURL() = %q", got)
	}
}

func TestPublishOnce(t *testing.T) {
	tests := []struct {
		name    string
		pub     *fakePublisher
		elapsed time.Duration
		want    int
		wantErr bool
	}{
		{name: "all aircraft", pub: &fakePublisher{}, want: 3},
		{name: "arrivals landed", pub: &fakePublisher{}, elapsed: 2 * time.Hour, want: 1},
		{name: "environment failure", pub: &fakePublisher{envErr: errors.New("no responders")}, wantErr: true},
		{name: "aircraft failures are skipped", pub: &fakePublisher{aircraftErr: errors.New("timeout")}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := publishOnce(tt.pub, loadScenario(t), tt.elapsed, time.Now())
			if (err != nil) != tt.wantErr {
				t.Fatalf("publishOnce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if n != tt.want {
				t.Errorf("publishOnce() = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestPlay_StopsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- play(ctx, pub, loadScenario(t)) }()

	// The scenario publishes every 500ms
	time.Sleep(700 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("play() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("play() did not stop")
	}
	if got := pub.environments(); got < 2 {
		t.Errorf("Expected at least 2 rounds, got %d", got)
	}
}

func TestPlay_EnvironmentFailure(t *testing.T) {
	pub := &fakePublisher{envErr: errors.New("connection closed")}
	if err := play(context.Background(), pub, loadScenario(t)); err == nil {
		t.Error("Expected play() to fail")
	}
}

func TestApplyCommand(t *testing.T) {
	scenario := loadScenario(t)
	apply := applyCommand(scenario)

	apply(&types.CommandRecord{Kind: sim.CommandAssignRunway, Callsign: "SAS4411", Value: "19L"})
	apply(&types.CommandRecord{Kind: sim.CommandSetCtot, Callsign: "WIF12", Value: "12:50"})

	for _, snap := range scenario.Snapshots(0, time.Now()) {
		switch snap.Callsign {
		case "SAS4411":
			if snap.FlightPlan.ArrivalRunway != "19L" {
				t.Errorf("ArrivalRunway = %q, want 19L", snap.FlightPlan.ArrivalRunway)
			}
		case "WIF12":
			if snap.FlightPlan.EstimatedDepartureTime != "1250" {
				t.Errorf("EstimatedDepartureTime = %q, want 1250", snap.FlightPlan.EstimatedDepartureTime)
			}
		}
	}
}
