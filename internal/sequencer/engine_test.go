package sequencer

import (
	"math"
	"testing"
	"time"

	"github.com/saviobatista/aman-bridge/internal/geo"
	"github.com/saviobatista/aman-bridge/internal/types"
)

func inboundsForFix(engine *Engine, fix string, viaFixes, destinations []string, aircraft []types.AircraftSnapshot, env types.Environment) []types.SequencedArrival {
	return engine.Sequence(Query{TargetFixes: []string{fix}, ViaFixes: viaFixes, DestinationAirports: destinations}, aircraft, env)
}

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// nmPerDegree is the length of one degree of longitude along the equator
var nmPerDegree = geo.DistanceNM(types.Position{}, types.Position{Longitude: 1})

func eq(lon float64) types.Position {
	return types.Position{Latitude: 0, Longitude: lon}
}

func eqNM(nm float64) types.Position {
	return eq(nm / nmPerDegree)
}

// testAircraft flies east along the equator from lon 0 over ADOPI (0.5), LUNIP (1.0) to ENGM (2.0)
func testAircraft(callsign string, groundSpeed int) types.AircraftSnapshot {
	trajectory := make([]types.TrajectorySample, 0, 9)
	for i := 0; i < 9; i++ {
		trajectory = append(trajectory, types.TrajectorySample{
			Position: eq(float64(i) * 0.25),
			Altitude: 20000 - i*2000,
		})
	}

	return types.AircraftSnapshot{
		Callsign:         callsign,
		Position:         eq(0),
		GroundSpeed:      groundSpeed,
		PressureAltitude: 20000,
		FlightLevel:      200,
		ReceivedAt:       testNow,
		FlightPlan: types.FlightPlan{
			Origin:       "ESSA",
			Destination:  "ENGM",
			AircraftType: "B738",
			WakeCategory: "M",
		},
		Route: types.Route{
			Points: []types.RoutePoint{
				{Name: "ADOPI", Position: eq(0.5)},
				{Name: "LUNIP", Position: eq(1.0)},
				{Name: "ENGM", Position: eq(2.0)},
			},
			CalculatedIndex: 0,
			AssignedIndex:   -1,
		},
		Trajectory: trajectory,
	}
}

func newTestEngine() *Engine {
	return NewWithClock(func() time.Time { return testNow })
}

func TestTimeToFix_Interpolation(t *testing.T) {
	fix := eq(0)
	samples := []types.TrajectorySample{
		{Position: eqNM(-30)},
		{Position: eqNM(-20)},
		{Position: eqNM(-10)},
		{Position: eqNM(4)},
		{Position: eqNM(14)},
	}

	got, ok := TimeToFix(samples, fix)
	if !ok {
		t.Fatal("Expected a bracketing pair")
	}

	// Bracket is samples 2 and 3 with distances 10 and 4
	want := 2*60 + 10.0/14.0*60
	if math.Abs(got-want) > 0.01 {
		t.Errorf("Expected time to fix %.3f, got %.3f", want, got)
	}
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name          string
		index         int
		before, after float64
		want          float64
	}{
		{name: "ratio 10/14", index: 3, before: 10, after: 4, want: 3*60 + 42.857},
		{name: "on first sample", index: 0, before: 0, after: 5, want: 0},
		{name: "on second sample", index: 1, before: 5, after: 0, want: 120},
		{name: "both at the fix", index: 2, before: 0, after: 0, want: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := interpolate(tt.index, tt.before, tt.after); math.Abs(got-tt.want) > 0.01 {
				t.Errorf("interpolate() = %.3f, want %.3f", got, tt.want)
			}
		})
	}
}

func TestTimeToFix_TooFewSamples(t *testing.T) {
	if _, ok := TimeToFix(nil, eq(0)); ok {
		t.Error("Expected no result without samples")
	}
	if _, ok := TimeToFix([]types.TrajectorySample{{Position: eq(1)}}, eq(0)); ok {
		t.Error("Expected no result with a single sample")
	}
}

func TestTimeToDestination(t *testing.T) {
	samples := []types.TrajectorySample{{Position: eq(0)}, {Position: eq(0.5)}}
	got := TimeToDestination(samples, eq(1), 360)

	want := 60 + (0.5*nmPerDegree)/360*3600
	if math.Abs(got-want) > 0.01 {
		t.Errorf("Expected %.3f, got %.3f", want, got)
	}
	if got := TimeToDestination(nil, eq(1), 360); got != 0 {
		t.Errorf("Expected 0 without samples, got %f", got)
	}
}

func TestApplySpacing(t *testing.T) {
	arrivals := []types.SequencedArrival{
		{Callsign: "A", TargetFixEta: 100},
		{Callsign: "B", TargetFixEta: 160},
		{Callsign: "C", TargetFixEta: 260},
	}

	ApplySpacing(arrivals)

	want := []struct {
		callsign string
		eta      int64
		spacing  int64
	}{
		{"C", 260, 100},
		{"B", 160, 60},
		{"A", 100, 0},
	}
	for i, w := range want {
		got := arrivals[i]
		if got.Callsign != w.callsign || got.TargetFixEta != w.eta || got.SecondsBehindPreceeding != w.spacing {
			t.Errorf("Entry %d: expected %s eta=%d spacing=%d, got %s eta=%d spacing=%d",
				i, w.callsign, w.eta, w.spacing, got.Callsign, got.TargetFixEta, got.SecondsBehindPreceeding)
		}
	}
}

func TestApplySpacing_Empty(t *testing.T) {
	ApplySpacing(nil)

	single := []types.SequencedArrival{{Callsign: "A", TargetFixEta: 100, SecondsBehindPreceeding: 42}}
	ApplySpacing(single)
	if single[0].SecondsBehindPreceeding != 0 {
		t.Errorf("Expected spacing 0 for a lone arrival, got %d", single[0].SecondsBehindPreceeding)
	}
}

func TestGroundSpeedFilter(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		groundSpeed int
		included    bool
	}{
		{groundSpeed: 0, included: false},
		{groundSpeed: 59, included: false},
		{groundSpeed: 60, included: true},
		{groundSpeed: 250, included: true},
	}

	for _, tt := range tests {
		aircraft := []types.AircraftSnapshot{testAircraft("SAS1", tt.groundSpeed)}
		got := inboundsForFix(engine, "LUNIP", nil, nil, aircraft, types.Environment{})
		if (len(got) == 1) != tt.included {
			t.Errorf("Ground speed %d: expected included=%v, got %d results", tt.groundSpeed, tt.included, len(got))
		}
	}
}

func TestSequence_SingleFix_Filters(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name         string
		fix          string
		viaFixes     []string
		destinations []string
		mutate       func(*types.AircraftSnapshot)
		included     bool
		wantVia      string
	}{
		{name: "plain match", fix: "LUNIP", included: true},
		{name: "destination allowed", fix: "LUNIP", destinations: []string{"ESSA", "ENGM"}, included: true},
		{name: "destination not allowed", fix: "LUNIP", destinations: []string{"ESSA"}, included: false},
		{name: "fix not on route", fix: "XILAN", included: false},
		{
			name: "fix flagged passed", fix: "ADOPI", included: false,
			mutate: func(ac *types.AircraftSnapshot) { ac.Route.Points[0].IsPassed = true },
		},
		{
			name: "fix behind next point", fix: "ADOPI", included: false,
			mutate: func(ac *types.AircraftSnapshot) { ac.Route.CalculatedIndex = 1 },
		},
		{
			name: "fix behind assigned direct", fix: "ADOPI", included: false,
			mutate: func(ac *types.AircraftSnapshot) { ac.Route.AssignedIndex = 2 },
		},
		{name: "first via fix on route", fix: "ENGM", viaFixes: []string{"XILAN", "LUNIP", "ADOPI"}, included: true, wantVia: "LUNIP"},
		{name: "no via fix on route", fix: "ENGM", viaFixes: []string{"XILAN"}, included: false},
		{
			name: "single sample before fix", fix: "LUNIP", included: false,
			mutate: func(ac *types.AircraftSnapshot) { ac.Trajectory = ac.Trajectory[:1] },
		},
		{
			name: "single sample to destination", fix: "ENGM", included: true,
			mutate: func(ac *types.AircraftSnapshot) { ac.Trajectory = ac.Trajectory[:1] },
		},
		{
			name: "no trajectory", fix: "ENGM", included: false,
			mutate: func(ac *types.AircraftSnapshot) { ac.Trajectory = nil },
		},
		{
			name: "time to fix not positive", fix: "LUNIP", included: false,
			mutate: func(ac *types.AircraftSnapshot) {
				for i := range ac.Trajectory {
					ac.Trajectory[i].Position = eq(1.0 + float64(i)*0.25)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := testAircraft("SAS1", 250)
			if tt.mutate != nil {
				tt.mutate(&ac)
			}

			got := inboundsForFix(engine, tt.fix, tt.viaFixes, tt.destinations, []types.AircraftSnapshot{ac}, types.Environment{})
			if (len(got) == 1) != tt.included {
				t.Fatalf("Expected included=%v, got %d results", tt.included, len(got))
			}
			if tt.included && got[0].ViaFix != tt.wantVia {
				t.Errorf("Expected via fix %q, got %q", tt.wantVia, got[0].ViaFix)
			}
		})
	}
}

func TestSequence_SingleFix_EtaAndAge(t *testing.T) {
	engine := newTestEngine()
	ac := testAircraft("SAS1", 250)
	ac.ReceivedAt = testNow.Add(-5 * time.Second)

	got := inboundsForFix(engine, "LUNIP", nil, nil, []types.AircraftSnapshot{ac}, types.Environment{})
	if len(got) != 1 {
		t.Fatalf("Expected 1 arrival, got %d", len(got))
	}

	// LUNIP lies on sample 4; the first minimal pair is samples 3 and 4
	wantFix := testNow.Unix() + 240 - 5
	if got[0].TargetFixEta != wantFix {
		t.Errorf("Expected fix ETA %d, got %d", wantFix, got[0].TargetFixEta)
	}

	wantDestination := testNow.Unix() + int64(TimeToDestination(ac.Trajectory, eq(2.0), 250)) - 5
	if got[0].DestinationEta != wantDestination {
		t.Errorf("Expected destination ETA %d, got %d", wantDestination, got[0].DestinationEta)
	}
	if got[0].TargetFix != "LUNIP" || got[0].Callsign != "SAS1" {
		t.Errorf("Unexpected arrival identity: %s over %s", got[0].Callsign, got[0].TargetFix)
	}
	if len(got[0].Profile) == 0 {
		t.Error("Expected a vertical profile")
	}
}

func TestSequence_SingleFix_DestinationFix(t *testing.T) {
	engine := newTestEngine()
	ac := testAircraft("SAS1", 250)

	got := inboundsForFix(engine, "ENGM", nil, nil, []types.AircraftSnapshot{ac}, types.Environment{})
	if len(got) != 1 {
		t.Fatalf("Expected 1 arrival, got %d", len(got))
	}
	if got[0].TargetFixEta != got[0].DestinationEta {
		t.Errorf("Expected fix ETA to equal destination ETA, got %d and %d", got[0].TargetFixEta, got[0].DestinationEta)
	}
	// Trajectory ends on ENGM
	if want := testNow.Unix() + 480; got[0].TargetFixEta != want {
		t.Errorf("Expected ETA %d, got %d", want, got[0].TargetFixEta)
	}
}

func TestSequence_SingleFix_Flags(t *testing.T) {
	engine := newTestEngine()
	high := testAircraft("SAS1", 250)
	low := testAircraft("SAS2", 250)
	low.PressureAltitude = 4000

	env := types.Environment{TransitionAltitude: 5000, SelectedCallsign: "SAS2"}
	got := inboundsForFix(engine, "ENGM", nil, nil, []types.AircraftSnapshot{high, low}, env)
	if len(got) != 2 {
		t.Fatalf("Expected 2 arrivals, got %d", len(got))
	}

	for _, a := range got {
		switch a.Callsign {
		case "SAS1":
			if !a.IsAboveTransAlt || a.IsSelected {
				t.Errorf("SAS1: expected above transition altitude and not selected, got %+v", a)
			}
		case "SAS2":
			if a.IsAboveTransAlt || !a.IsSelected {
				t.Errorf("SAS2: expected below transition altitude and selected, got %+v", a)
			}
		}
	}
}

func TestRemainingDistance(t *testing.T) {
	route := testAircraft("SAS1", 250).Route
	position := types.Position{Latitude: 0.5, Longitude: 0.5}

	want := geo.DistanceNM(position, eq(0.5)) + geo.DistanceNM(eq(0.5), eq(1.0)) + geo.DistanceNM(eq(1.0), eq(2.0))
	if got := RemainingDistance(position, route, 2); math.Abs(got-want) > 1e-6 {
		t.Errorf("Expected %.3f via calculated point, got %.3f", want, got)
	}

	route.AssignedIndex = 1
	want = geo.DistanceNM(position, eq(1.0)) + geo.DistanceNM(eq(1.0), eq(2.0))
	if got := RemainingDistance(position, route, 2); math.Abs(got-want) > 1e-6 {
		t.Errorf("Expected %.3f via assigned direct, got %.3f", want, got)
	}

	want = geo.DistanceNM(position, eq(1.0))
	if got := RemainingDistance(position, route, 1); math.Abs(got-want) > 1e-6 {
		t.Errorf("Expected %.3f when the direct is the target, got %.3f", want, got)
	}
}

func TestSequence_SpacingAcrossTargetFixes(t *testing.T) {
	engine := newTestEngine()
	first := testAircraft("SAS1", 250)
	second := testAircraft("SAS2", 250)
	second.ReceivedAt = testNow.Add(-30 * time.Second)

	got := engine.Sequence(Query{TargetFixes: []string{"LUNIP", "ENGM"}}, []types.AircraftSnapshot{first, second}, types.Environment{})
	if len(got) != 4 {
		t.Fatalf("Expected 4 arrivals over two fixes, got %d", len(got))
	}
	for i := 0; i < len(got)-1; i++ {
		if got[i].TargetFixEta < got[i+1].TargetFixEta {
			t.Errorf("Expected descending ETAs, got %d before %d", got[i].TargetFixEta, got[i+1].TargetFixEta)
		}
		if got[i].SecondsBehindPreceeding != got[i].TargetFixEta-got[i+1].TargetFixEta {
			t.Errorf("Entry %d: unexpected spacing %d", i, got[i].SecondsBehindPreceeding)
		}
	}
	if got[len(got)-1].SecondsBehindPreceeding != 0 {
		t.Errorf("Expected zero spacing for the soonest arrival, got %d", got[len(got)-1].SecondsBehindPreceeding)
	}
}

func TestArrivalsForAirport(t *testing.T) {
	engine := newTestEngine()
	toOslo := testAircraft("SAS1", 250)
	taxiing := testAircraft("SAS2", 10)
	toArlanda := testAircraft("SAS3", 250)
	toArlanda.FlightPlan.Destination = "ESSA"

	got := engine.ArrivalsForAirport("ENGM", []types.AircraftSnapshot{toOslo, taxiing, toArlanda}, types.Environment{})
	if len(got) != 1 {
		t.Fatalf("Expected 1 arrival, got %d", len(got))
	}
	if got[0].Callsign != "SAS1" || got[0].TargetFix != "ENGM" {
		t.Errorf("Expected SAS1 over ENGM, got %s over %s", got[0].Callsign, got[0].TargetFix)
	}
}
