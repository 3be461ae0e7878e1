package migrations

import "time"

// InitialSchema creates the sequencing history, command audit and bridge statistics tables
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		-- One row per aircraft per persisted sequence
		CREATE TABLE IF NOT EXISTS arrival_sequences (
			time TIMESTAMPTZ NOT NULL,
			request_id BIGINT NOT NULL,
			callsign TEXT NOT NULL,
			target_fix TEXT NOT NULL,
			via_fix TEXT,
			destination TEXT,
			arrival_runway TEXT,
			target_fix_eta BIGINT NOT NULL,
			destination_eta BIGINT NOT NULL,
			remaining_distance DOUBLE PRECISION NOT NULL,
			seconds_behind_preceeding BIGINT NOT NULL,
			is_above_trans_alt BOOLEAN NOT NULL DEFAULT FALSE
		);

		SELECT create_hypertable('arrival_sequences', 'time');

		CREATE INDEX IF NOT EXISTS idx_arrival_sequences_callsign ON arrival_sequences (callsign, time DESC);
		CREATE INDEX IF NOT EXISTS idx_arrival_sequences_request ON arrival_sequences (request_id, time DESC);

		-- Runway and CTOT commands applied on behalf of a client
		CREATE TABLE IF NOT EXISTS commands (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			callsign TEXT NOT NULL,
			value TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_commands_callsign ON commands (callsign);
		CREATE INDEX IF NOT EXISTS idx_commands_applied_at ON commands (applied_at);

		CREATE TABLE IF NOT EXISTS bridge_stats (
			time TIMESTAMPTZ NOT NULL,
			connections_accepted BIGINT NOT NULL,
			disconnects BIGINT NOT NULL,
			messages_sent BIGINT NOT NULL,
			messages_dropped BIGINT NOT NULL,
			messages_cleared BIGINT NOT NULL,
			send_failures BIGINT NOT NULL,
			protocol_errors BIGINT NOT NULL,
			commands_applied BIGINT NOT NULL,
			ticks BIGINT NOT NULL,
			arrivals_sequenced BIGINT NOT NULL,
			departures_listed BIGINT NOT NULL,
			feed_messages BIGINT NOT NULL,
			active_aircraft BIGINT NOT NULL,
			active_subscriptions BIGINT NOT NULL,
			tick_duration_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		SELECT create_hypertable('bridge_stats', 'time');

		CREATE INDEX IF NOT EXISTS idx_bridge_stats_time ON bridge_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS bridge_stats;
		DROP TABLE IF EXISTS commands;
		DROP TABLE IF EXISTS arrival_sequences;
	`,
	CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
}
