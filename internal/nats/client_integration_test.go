package nats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/saviobatista/aman-bridge/internal/host"
	"github.com/saviobatista/aman-bridge/internal/testutils"
	"github.com/saviobatista/aman-bridge/internal/types"
	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testContainers holds the test containers for integration tests
type testContainers struct {
	nats *natscontainer.NATSContainer
}

// setupTestContainers sets up the test containers for integration tests
func setupTestContainers(t *testing.T) *testContainers {
	ctx := context.Background()

	// Start NATS container
	natsContainer, err := natscontainer.Run(ctx, "nats:2.9-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}

	return &testContainers{
		nats: natsContainer,
	}
}

func connect(t *testing.T) (*Client, func()) {
	containers := setupTestContainers(t)
	natsURL, err := containers.nats.ConnectionString(context.Background())
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}

	client, err := New(natsURL)
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}

	return client, func() {
		client.Close()
		if err := containers.nats.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	}
}

func TestNATSClient_Integration_FeedIntoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, cleanup := connect(t)
	defer cleanup()

	store := host.NewStore(host.StoreConfig{TTL: time.Minute})
	if err := client.SubscribeFeed(store); err != nil {
		t.Fatalf("SubscribeFeed() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ac := testutils.MockAircraft(fmt.Sprintf("SAS%d", i), "ENGM", "ADOPI")
		if err := client.PublishAircraft(&ac); err != nil {
			t.Fatalf("PublishAircraft() failed: %v", err)
		}
	}
	env := &types.Environment{TransitionAltitude: 7000, SelectedCallsign: "SAS1"}
	if err := client.PublishEnvironment(env); err != nil {
		t.Fatalf("PublishEnvironment() failed: %v", err)
	}

	err := testutils.WaitForCondition(func() bool {
		state := store.Snapshot(time.Now())
		return len(state.Aircraft) == 3 && state.Environment.TransitionAltitude == 7000
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Feed not applied, store has %d aircraft", store.Len())
	}
}

func TestNATSClient_Integration_Commands(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, cleanup := connect(t)
	defer cleanup()

	received := make(chan *types.CommandRecord, 1)
	if err := client.SubscribeCommands(func(rec *types.CommandRecord) {
		received <- rec
	}); err != nil {
		t.Fatalf("SubscribeCommands() failed: %v", err)
	}

	rec := &types.CommandRecord{
		ID:        "cmd-1",
		Kind:      "assign-runway",
		Callsign:  "SAS1",
		Value:     "19R",
		Timestamp: time.Now().UTC(),
	}
	if err := client.PublishCommand(rec); err != nil {
		t.Fatalf("PublishCommand() failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != rec.ID || got.Value != "19R" {
			t.Errorf("Unexpected command: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for command")
	}
}

func TestNATSClient_Integration_StreamsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	containers := setupTestContainers(t)
	defer func() {
		if err := containers.nats.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	}()

	natsURL, err := containers.nats.ConnectionString(context.Background())
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}

	// A second client must reuse the existing streams
	for i := 0; i < 2; i++ {
		client, err := New(natsURL)
		if err != nil {
			t.Fatalf("New() attempt %d failed: %v", i+1, err)
		}
		client.Close()
	}
}
