package sequencer

import (
	"sort"
	"time"

	"github.com/saviobatista/aman-bridge/internal/geo"
	"github.com/saviobatista/aman-bridge/internal/types"
)

const (
	// MinGroundSpeed is the speed in knots below which an aircraft is treated as taxiing
	MinGroundSpeed = 60

	// SampleInterval is the time between two trajectory samples
	SampleInterval = 60.0
)

// Query selects the arrivals of one inbound subscription
type Query struct {
	TargetFixes         []string
	ViaFixes            []string
	DestinationAirports []string
}

// Engine turns aircraft snapshots into sequenced arrivals
type Engine struct {
	now func() time.Time
}

// New creates an engine using the wall clock
func New() *Engine {
	return &Engine{now: time.Now}
}

// NewWithClock creates an engine with a custom clock (for testing)
func NewWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Sequence computes the arrivals of a subscription over all of its target fixes.
// Spacing is computed over the combined result.
func (e *Engine) Sequence(q Query, aircraft []types.AircraftSnapshot, env types.Environment) []types.SequencedArrival {
	now := e.now()
	var out []types.SequencedArrival
	for _, fix := range q.TargetFixes {
		for _, ac := range aircraft {
			if arrival, ok := sequenceOne(now, fix, q.ViaFixes, q.DestinationAirports, ac, env); ok {
				out = append(out, arrival)
			}
		}
	}
	ApplySpacing(out)
	return out
}

// ArrivalsForAirport sequences every aircraft bound for the airport over its own final route point
func (e *Engine) ArrivalsForAirport(icao string, aircraft []types.AircraftSnapshot, env types.Environment) []types.SequencedArrival {
	now := e.now()
	var out []types.SequencedArrival
	for _, ac := range aircraft {
		if ac.FlightPlan.Destination != icao || len(ac.Route.Points) == 0 {
			continue
		}
		final := ac.Route.Points[len(ac.Route.Points)-1].Name
		if arrival, ok := sequenceOne(now, final, nil, []string{icao}, ac, env); ok {
			out = append(out, arrival)
		}
	}
	ApplySpacing(out)
	return out
}

// ApplySpacing sorts arrivals latest first and sets the seconds each one trails the next.
// The soonest arrival gets zero.
func ApplySpacing(arrivals []types.SequencedArrival) {
	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].TargetFixEta > arrivals[j].TargetFixEta
	})
	for i := range arrivals {
		if i == len(arrivals)-1 {
			arrivals[i].SecondsBehindPreceeding = 0
			continue
		}
		arrivals[i].SecondsBehindPreceeding = arrivals[i].TargetFixEta - arrivals[i+1].TargetFixEta
	}
}

func sequenceOne(now time.Time, fix string, viaFixes, destinations []string, ac types.AircraftSnapshot, env types.Environment) (types.SequencedArrival, bool) {
	if ac.GroundSpeed < MinGroundSpeed {
		return types.SequencedArrival{}, false
	}
	if !hasDestination(ac.FlightPlan.Destination, destinations) {
		return types.SequencedArrival{}, false
	}

	route := ac.Route
	fixIndex := route.IndexOf(fix)
	if fixIndex < 0 || fixPassed(route, fixIndex) {
		return types.SequencedArrival{}, false
	}

	viaFix, ok := resolveViaFix(route, viaFixes)
	if !ok {
		return types.SequencedArrival{}, false
	}

	samples := ac.Trajectory
	if len(samples) == 0 {
		return types.SequencedArrival{}, false
	}

	final := route.Points[len(route.Points)-1].Position
	timeToDestination := TimeToDestination(samples, final, ac.GroundSpeed)

	var timeToFix float64
	if fixIndex == len(route.Points)-1 {
		timeToFix = timeToDestination
	} else {
		t, ok := TimeToFix(samples, route.Points[fixIndex].Position)
		if !ok {
			return types.SequencedArrival{}, false
		}
		timeToFix = t
	}

	if int64(timeToFix) <= 0 {
		return types.SequencedArrival{}, false
	}

	base := now.Unix() - snapshotAge(now, ac.ReceivedAt)
	return types.SequencedArrival{
		Callsign:          ac.Callsign,
		TargetFix:         fix,
		ViaFix:            viaFix,
		TargetFixEta:      base + int64(timeToFix),
		DestinationEta:    base + int64(timeToDestination),
		RemainingDistance: RemainingDistance(ac.Position, route, fixIndex),
		IsSelected:        env.SelectedCallsign != "" && env.SelectedCallsign == ac.Callsign,
		IsAboveTransAlt:   ac.PressureAltitude > env.TransitionAltitude,
		Aircraft:          ac,
		Profile:           VerticalProfile(samples),
	}, true
}

// TimeToFix interpolates the seconds until the trajectory reaches the fix.
// The bracketing pair is the adjacent pair with the smallest summed distance to the fix.
// The search does not require a monotonic approach, so a trajectory passing close to
// the fix twice may bracket the wrong pass.
func TimeToFix(samples []types.TrajectorySample, fix types.Position) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}

	bestIndex := -1
	var bestBefore, bestAfter float64
	for i := 0; i < len(samples)-1; i++ {
		before := geo.DistanceNM(samples[i].Position, fix)
		after := geo.DistanceNM(samples[i+1].Position, fix)
		if bestIndex < 0 || before+after < bestBefore+bestAfter {
			bestIndex = i
			bestBefore = before
			bestAfter = after
		}
	}

	return interpolate(bestIndex, bestBefore, bestAfter), true
}

func interpolate(index int, before, after float64) float64 {
	ratio := 0.0
	if before+after > 0 {
		ratio = before / (before + after)
	}
	return float64(index)*SampleInterval + ratio*SampleInterval
}

// TimeToDestination returns the seconds to the end of the trajectory plus the remaining
// straight leg to the destination flown at the current ground speed
func TimeToDestination(samples []types.TrajectorySample, destination types.Position, groundSpeed int) float64 {
	if len(samples) == 0 || groundSpeed <= 0 {
		return 0
	}
	rest := geo.DistanceNM(samples[len(samples)-1].Position, destination)
	return float64(len(samples)-1)*SampleInterval + rest/float64(groundSpeed)*3600
}

// RemainingDistance returns the distance in NM from the current position to the next route
// point, plus the route legs from there to the target fix
func RemainingDistance(position types.Position, route types.Route, fixIndex int) float64 {
	next := route.NextIndex()
	if next < 0 {
		next = 0
	}
	if next > fixIndex {
		next = fixIndex
	}

	total := geo.DistanceNM(position, route.Points[next].Position)
	for i := next; i < fixIndex; i++ {
		total += geo.DistanceNM(route.Points[i].Position, route.Points[i+1].Position)
	}
	return total
}

func fixPassed(route types.Route, fixIndex int) bool {
	if route.Points[fixIndex].IsPassed {
		return true
	}
	return fixIndex < route.NextIndex()
}

// resolveViaFix returns the first candidate found on the route. An empty candidate list
// matches every route.
func resolveViaFix(route types.Route, viaFixes []string) (string, bool) {
	if len(viaFixes) == 0 {
		return "", true
	}
	for _, via := range viaFixes {
		if route.IndexOf(via) > -1 {
			return via, true
		}
	}
	return "", false
}

func hasDestination(destination string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == destination {
			return true
		}
	}
	return false
}

func snapshotAge(now, receivedAt time.Time) int64 {
	if receivedAt.IsZero() || receivedAt.After(now) {
		return 0
	}
	return int64(now.Sub(receivedAt) / time.Second)
}
