package sequencer

import (
	"testing"
	"time"

	"github.com/saviobatista/aman-bridge/internal/types"
)

func TestParseDepartureTime(t *testing.T) {
	now := time.Date(2025, 3, 14, 22, 15, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{name: "afternoon", input: "1430", want: time.Date(2025, 3, 14, 14, 30, 0, 0, time.UTC).Unix()},
		{name: "midnight", input: "0000", want: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC).Unix()},
		{name: "last minute", input: "2359", want: time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC).Unix()},
		{name: "too short", input: "930", want: InvalidDepartureTime},
		{name: "too long", input: "09300", want: InvalidDepartureTime},
		{name: "empty", input: "", want: InvalidDepartureTime},
		{name: "hour out of range", input: "2400", want: InvalidDepartureTime},
		{name: "minute out of range", input: "1260", want: InvalidDepartureTime},
		{name: "not a number", input: "12a0", want: InvalidDepartureTime},
		{name: "signed", input: "-130", want: InvalidDepartureTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDepartureTime(now, tt.input); got != tt.want {
				t.Errorf("ParseDepartureTime(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDepartureTime_UsesUTCDate(t *testing.T) {
	// 01:30 in UTC+3 is still the previous day in UTC
	local := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2025, 3, 15, 1, 30, 0, 0, local)

	want := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC).Unix()
	if got := ParseDepartureTime(now, "1000"); got != want {
		t.Errorf("Expected %d, got %d", want, got)
	}
}

func TestDeparturesFromAirport(t *testing.T) {
	engine := newTestEngine()

	departing := testAircraft("SAS1", 0)
	departing.FlightPlan.Sid = "ADOPI2A"
	departing.FlightPlan.DepartureRunway = "19L"
	departing.FlightPlan.EstimatedDepartureTime = "1215"

	badTime := testAircraft("SAS2", 0)
	badTime.FlightPlan.EstimatedDepartureTime = "12:15"

	elsewhere := testAircraft("NAX3", 0)
	elsewhere.FlightPlan.Origin = "EKCH"

	got := engine.DeparturesFromAirport("ESSA", []types.AircraftSnapshot{departing, badTime, elsewhere})
	if len(got) != 2 {
		t.Fatalf("Expected 2 departures, got %d", len(got))
	}

	first := got[0]
	if first.Callsign != "SAS1" || first.Sid != "ADOPI2A" || first.Runway != "19L" {
		t.Errorf("Unexpected departure: %+v", first)
	}
	if first.AircraftType != "B738" || first.WakeCategory != "M" || first.AirportIcao != "ESSA" {
		t.Errorf("Unexpected departure details: %+v", first)
	}
	if want := time.Date(2025, 3, 14, 12, 15, 0, 0, time.UTC).Unix(); first.EstimatedDepartureTime != want {
		t.Errorf("Expected departure time %d, got %d", want, first.EstimatedDepartureTime)
	}
	if got[1].EstimatedDepartureTime != InvalidDepartureTime {
		t.Errorf("Expected sentinel for invalid time, got %d", got[1].EstimatedDepartureTime)
	}
}

func TestDeparturesFromAirport_Empty(t *testing.T) {
	got := newTestEngine().DeparturesFromAirport("ESSA", nil)
	if got == nil || len(got) != 0 {
		t.Errorf("Expected an empty non-nil list, got %#v", got)
	}
}

func TestFormatCtot(t *testing.T) {
	ctot := time.Date(2025, 3, 14, 13, 45, 30, 0, time.UTC).Unix()
	if got := FormatCtot(ctot); got != "13:45" {
		t.Errorf("Expected 13:45, got %s", got)
	}
}
