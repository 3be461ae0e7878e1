package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/saviobatista/aman-bridge/internal/types"
)

type Client struct {
	db *sql.DB
}

// ArrivalRecord is one persisted row of a sequence
type ArrivalRecord struct {
	Time                    time.Time
	RequestID               int64
	Callsign                string
	TargetFix               string
	ViaFix                  string
	Destination             string
	ArrivalRunway           string
	TargetFixEta            int64
	DestinationEta          int64
	RemainingDistance       float64
	SecondsBehindPreceeding int64
	IsAboveTransAlt         bool
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StoreArrivals stores one sequence in a single transaction
func (c *Client) StoreArrivals(requestID int64, at time.Time, arrivals []types.SequencedArrival) error {
	if len(arrivals) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback transaction: %v", err)
			}
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO arrival_sequences (
			time, request_id, callsign, target_fix, via_fix,
			destination, arrival_runway, target_fix_eta, destination_eta,
			remaining_distance, seconds_behind_preceeding, is_above_trans_alt
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range arrivals {
		if _, err := stmt.Exec(
			at, requestID, a.Callsign, a.TargetFix, a.ViaFix,
			a.Aircraft.FlightPlan.Destination, a.Aircraft.FlightPlan.ArrivalRunway,
			a.TargetFixEta, a.DestinationEta,
			a.RemainingDistance, a.SecondsBehindPreceeding, a.IsAboveTransAlt,
		); err != nil {
			return fmt.Errorf("failed to store arrival %s: %w", a.Callsign, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit arrivals: %w", err)
	}
	committed = true
	return nil
}

// GetArrivalHistory retrieves the persisted sequence rows of one aircraft for a time range
func (c *Client) GetArrivalHistory(callsign string, start, end time.Time) ([]ArrivalRecord, error) {
	query := `
		SELECT time, request_id, callsign, target_fix, COALESCE(via_fix, ''),
			COALESCE(destination, ''), COALESCE(arrival_runway, ''),
			target_fix_eta, destination_eta, remaining_distance,
			seconds_behind_preceeding, is_above_trans_alt
		FROM arrival_sequences
		WHERE callsign = $1 AND time BETWEEN $2 AND $3
		ORDER BY time DESC
	`
	rows, err := c.db.Query(query, callsign, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ArrivalRecord
	for rows.Next() {
		var r ArrivalRecord
		if err := rows.Scan(
			&r.Time, &r.RequestID, &r.Callsign, &r.TargetFix, &r.ViaFix,
			&r.Destination, &r.ArrivalRunway,
			&r.TargetFixEta, &r.DestinationEta, &r.RemainingDistance,
			&r.SecondsBehindPreceeding, &r.IsAboveTransAlt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// StoreCommand stores an applied client command
func (c *Client) StoreCommand(rec *types.CommandRecord) error {
	query := `
		INSERT INTO commands (id, connection_id, kind, callsign, value, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := c.db.Exec(query,
		rec.ID, rec.ConnectionID, rec.Kind, rec.Callsign, rec.Value, rec.Timestamp,
	)
	return err
}

// StoreBridgeStats stores a bridge statistics snapshot
func (c *Client) StoreBridgeStats(stats map[string]interface{}) error {
	query := `
		INSERT INTO bridge_stats (
			time, connections_accepted, disconnects, messages_sent,
			messages_dropped, messages_cleared, send_failures, protocol_errors,
			commands_applied, ticks, arrivals_sequenced, departures_listed,
			feed_messages, active_aircraft, active_subscriptions,
			tick_duration_ms, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	tickDuration, _ := stats["tick_duration"].(time.Duration)
	uptime, _ := stats["uptime"].(time.Duration)

	_, err := c.db.Exec(query,
		time.Now(),
		counter(stats, "connections_accepted"),
		counter(stats, "disconnects"),
		counter(stats, "messages_sent"),
		counter(stats, "messages_dropped"),
		counter(stats, "messages_cleared"),
		counter(stats, "send_failures"),
		counter(stats, "protocol_errors"),
		counter(stats, "commands_applied"),
		counter(stats, "ticks"),
		counter(stats, "arrivals_sequenced"),
		counter(stats, "departures_listed"),
		counter(stats, "feed_messages"),
		counter(stats, "active_aircraft"),
		counter(stats, "active_subscriptions"),
		tickDuration.Milliseconds(),
		int64(uptime.Seconds()),
	)
	return err
}

// counter reads a stats counter as int64, 0 when absent
func counter(stats map[string]interface{}, key string) int64 {
	switch v := stats[key].(type) {
	case uint64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
