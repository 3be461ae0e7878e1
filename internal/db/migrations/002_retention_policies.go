package migrations

import "time"

var RetentionPolicies = &Migration{
	ID:   "002_retention_policies",
	Name: "002_retention_policies",
	UpSQL: `
	SELECT add_retention_policy('arrival_sequences', INTERVAL '14 days');
	SELECT add_retention_policy('bridge_stats', INTERVAL '90 days');

	-- Hourly tick and traffic totals
	CREATE MATERIALIZED VIEW IF NOT EXISTS bridge_stats_hourly
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 hour', time) AS hour,
		MAX(ticks) AS ticks,
		MAX(messages_sent) AS messages_sent,
		MAX(messages_dropped) AS messages_dropped,
		MAX(protocol_errors) AS protocol_errors,
		AVG(active_aircraft) AS avg_active_aircraft
	FROM bridge_stats
	GROUP BY hour
	WITH NO DATA;

	-- Sequenced aircraft per target fix and hour
	CREATE MATERIALIZED VIEW IF NOT EXISTS arrival_sequences_hourly
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 hour', time) AS hour,
		target_fix,
		COUNT(DISTINCT callsign) AS aircraft
	FROM arrival_sequences
	GROUP BY hour, target_fix
	WITH NO DATA;
	`,
	DownSQL: `
	DROP MATERIALIZED VIEW IF EXISTS arrival_sequences_hourly;
	DROP MATERIALIZED VIEW IF EXISTS bridge_stats_hourly;
	SELECT remove_retention_policy('arrival_sequences');
	SELECT remove_retention_policy('bridge_stats');
	`,
	CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
}
