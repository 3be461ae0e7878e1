package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/aman-bridge/internal/db/migrations"
	"github.com/saviobatista/aman-bridge/internal/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*Client, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "timescale/timescaledb:latest-pg16",
		postgres.WithDatabase("aman"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start TimescaleDB container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	client, err := New(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := migrations.New(client.db).Migrate(migrations.All()); err != nil {
		_ = client.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return client, func() {
		if err := client.Close(); err != nil {
			t.Logf("Failed to close client: %v", err)
		}
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
}

func TestClient_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, cleanup := setupTestDatabase(t)
	defer cleanup()

	t.Run("arrival history", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Second)
		arrivals := []types.SequencedArrival{
			{
				Callsign:       "SAS4411",
				TargetFix:      "LUNIP",
				ViaFix:         "ADOPI",
				TargetFixEta:   at.Add(8 * time.Minute).Unix(),
				DestinationEta: at.Add(14 * time.Minute).Unix(),
				Aircraft: types.AircraftSnapshot{
					FlightPlan: types.FlightPlan{Destination: "ENGM", ArrivalRunway: "01R"},
				},
			},
			{
				Callsign:                "NAX731",
				TargetFix:               "LUNIP",
				SecondsBehindPreceeding: 95,
				IsAboveTransAlt:         true,
			},
		}
		if err := client.StoreArrivals(3, at, arrivals); err != nil {
			t.Fatalf("StoreArrivals() failed: %v", err)
		}

		records, err := client.GetArrivalHistory("SAS4411", at.Add(-time.Minute), at.Add(time.Minute))
		if err != nil {
			t.Fatalf("GetArrivalHistory() failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(records))
		}
		r := records[0]
		if r.RequestID != 3 || r.ViaFix != "ADOPI" || r.Destination != "ENGM" || r.ArrivalRunway != "01R" {
			t.Errorf("Unexpected record: %+v", r)
		}

		records, err = client.GetArrivalHistory("NAX731", at.Add(-time.Minute), at.Add(time.Minute))
		if err != nil || len(records) != 1 {
			t.Fatalf("Expected 1 NAX731 record, got %d, %v", len(records), err)
		}
		if records[0].SecondsBehindPreceeding != 95 || !records[0].IsAboveTransAlt {
			t.Errorf("Unexpected record: %+v", records[0])
		}
	})

	t.Run("commands are idempotent", func(t *testing.T) {
		rec := &types.CommandRecord{
			ID:           uuid.NewString(),
			ConnectionID: uuid.NewString(),
			Kind:         "assign-runway",
			Callsign:     "SAS4411",
			Value:        "19R",
			Timestamp:    time.Now().UTC(),
		}
		if err := client.StoreCommand(rec); err != nil {
			t.Fatalf("StoreCommand() failed: %v", err)
		}
		if err := client.StoreCommand(rec); err != nil {
			t.Fatalf("StoreCommand() replay failed: %v", err)
		}

		var count int
		if err := client.db.QueryRow("SELECT COUNT(*) FROM commands WHERE id = $1", rec.ID).Scan(&count); err != nil {
			t.Fatalf("Failed to count commands: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 command row, got %d", count)
		}
	})

	t.Run("bridge stats", func(t *testing.T) {
		stats := map[string]interface{}{
			"messages_sent": uint64(120),
			"ticks":         uint64(60),
			"tick_duration": 3 * time.Millisecond,
			"uptime":        time.Minute,
		}
		if err := client.StoreBridgeStats(stats); err != nil {
			t.Fatalf("StoreBridgeStats() failed: %v", err)
		}

		var sent, uptime int64
		err := client.db.QueryRow(
			"SELECT messages_sent, uptime_seconds FROM bridge_stats ORDER BY time DESC LIMIT 1",
		).Scan(&sent, &uptime)
		if err != nil {
			t.Fatalf("Failed to read stats: %v", err)
		}
		if sent != 120 || uptime != 60 {
			t.Errorf("Stored stats = %d/%d, want 120/60", sent, uptime)
		}
	})
}
