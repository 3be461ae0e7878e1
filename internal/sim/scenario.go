package sim

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/saviobatista/aman-bridge/internal/geo"
	"github.com/saviobatista/aman-bridge/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	// Override kinds carried by command records
	CommandAssignRunway = "assign-runway"
	CommandSetCtot      = "set-ctot"

	defaultInterval = time.Second
)

// Script is a scripted host feed.
//
// Airborne aircraft start on the first route point and fly the route at a constant
// ground speed, descending linearly to the last point. Aircraft marked on_ground
// sit at their origin and only publish a flight plan.
//
//	version: 1
//	interval: 1s
//	environment:
//	  transition_altitude: 7000
//	  controller: {callsign: ENGM_APP, position_id: OA, facility_type: 5}
//	  runways:
//	    - {airport: ENGM, runway: 19R, arrivals: true, departures: false}
//	aircraft:
//	  - callsign: SAS123
//	    aircraft_type: B738
//	    wake_category: M
//	    origin: EKCH
//	    destination: ENGM
//	    star: ADOPI3M
//	    arrival_runway: 19R
//	    ground_kt: 420
//	    alt_feet: 24000
//	    route:
//	      - {name: ADOPI, lat_deg: 59.3, lon_deg: 11.4}
//	      - {name: ENGM, lat_deg: 60.19, lon_deg: 11.1}
type Script struct {
	Version     int               `yaml:"version"`
	Interval    time.Duration     `yaml:"interval"`
	Environment EnvironmentScript `yaml:"environment"`
	Aircraft    []AircraftScript  `yaml:"aircraft"`
}

// EnvironmentScript is the static part of the feed
type EnvironmentScript struct {
	TransitionAltitude int              `yaml:"transition_altitude"`
	SelectedCallsign   string           `yaml:"selected_callsign"`
	Controller         ControllerScript `yaml:"controller"`
	Runways            []RunwayScript   `yaml:"runways"`
}

// ControllerScript is the controller position the simulated host is logged in as
type ControllerScript struct {
	Callsign     string `yaml:"callsign"`
	PositionID   string `yaml:"position_id"`
	FacilityType int    `yaml:"facility_type"`
}

// RunwayScript is one runway of an airport
type RunwayScript struct {
	Airport    string `yaml:"airport"`
	Runway     string `yaml:"runway"`
	Arrivals   bool   `yaml:"arrivals"`
	Departures bool   `yaml:"departures"`
}

// AircraftScript is one simulated flight
type AircraftScript struct {
	Callsign               string     `yaml:"callsign"`
	AircraftType           string     `yaml:"aircraft_type"`
	WakeCategory           string     `yaml:"wake_category"`
	Origin                 string     `yaml:"origin"`
	Destination            string     `yaml:"destination"`
	Star                   string     `yaml:"star"`
	Sid                    string     `yaml:"sid"`
	ArrivalRunway          string     `yaml:"arrival_runway"`
	DepartureRunway        string     `yaml:"departure_runway"`
	EstimatedDepartureTime string     `yaml:"estimated_departure_time"`
	TrackedByMe            bool       `yaml:"tracked_by_me"`
	OnGround               bool       `yaml:"on_ground"`
	GroundKt               int        `yaml:"ground_kt"`
	AltFeet                int        `yaml:"alt_feet"`
	Route                  []Waypoint `yaml:"route"`
}

// Waypoint is a named route point
type Waypoint struct {
	Name   string  `yaml:"name"`
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
	OnStar bool    `yaml:"on_star"`
}

func (w Waypoint) position() types.Position {
	return types.Position{Latitude: w.LatDeg, Longitude: w.LonDeg}
}

// LoadScript reads and unmarshals a YAML scenario script from path
func LoadScript(path string) (Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScript(b)
}

// ParseScript parses a YAML scenario script
func ParseScript(b []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return s, nil
}

// Scenario is a validated script plus the overrides received from the bridge
type Scenario struct {
	script Script

	mu             sync.Mutex
	runways        map[string]string
	departureTimes map[string]string
}

// NewScenario validates script and returns a runtime Scenario
func NewScenario(script Script) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if script.Interval <= 0 {
		script.Interval = defaultInterval
	}

	seen := make(map[string]bool, len(script.Aircraft))
	for i, ac := range script.Aircraft {
		if ac.Callsign == "" {
			return nil, fmt.Errorf("aircraft[%d].callsign is required", i)
		}
		if seen[ac.Callsign] {
			return nil, fmt.Errorf("duplicate callsign %s", ac.Callsign)
		}
		seen[ac.Callsign] = true

		if ac.OnGround {
			if ac.Origin == "" {
				return nil, fmt.Errorf("aircraft %s: origin is required on ground", ac.Callsign)
			}
			continue
		}
		if len(ac.Route) < 2 {
			return nil, fmt.Errorf("aircraft %s: route needs at least two points", ac.Callsign)
		}
		if ac.GroundKt <= 0 {
			return nil, fmt.Errorf("aircraft %s: ground_kt must be positive", ac.Callsign)
		}
	}

	return &Scenario{
		script:         script,
		runways:        make(map[string]string),
		departureTimes: make(map[string]string),
	}, nil
}

// Interval returns the publishing interval
func (s *Scenario) Interval() time.Duration {
	return s.script.Interval
}

// Environment returns the environment feed message
func (s *Scenario) Environment() types.Environment {
	env := s.script.Environment
	out := types.Environment{
		TransitionAltitude: env.TransitionAltitude,
		SelectedCallsign:   env.SelectedCallsign,
		Controller: types.ControllerInfo{
			Callsign:     env.Controller.Callsign,
			PositionID:   env.Controller.PositionID,
			FacilityType: env.Controller.FacilityType,
		},
		Runways: make([]types.RunwayStatus, 0, len(env.Runways)),
	}
	for _, r := range env.Runways {
		out.Runways = append(out.Runways, types.RunwayStatus{
			AirportIcao:         r.Airport,
			Runway:              r.Runway,
			ActiveForArrivals:   r.Arrivals,
			ActiveForDepartures: r.Departures,
		})
	}
	return out
}

// Apply records a command published by the bridge. It reports whether the command
// changed the scenario.
func (s *Scenario) Apply(rec *types.CommandRecord) bool {
	if rec == nil || !s.known(rec.Callsign) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch rec.Kind {
	case CommandAssignRunway:
		s.runways[rec.Callsign] = rec.Value
	case CommandSetCtot:
		s.departureTimes[rec.Callsign] = strings.ReplaceAll(rec.Value, ":", "")
	default:
		return false
	}
	return true
}

func (s *Scenario) known(callsign string) bool {
	for _, ac := range s.script.Aircraft {
		if ac.Callsign == callsign {
			return true
		}
	}
	return false
}

// Snapshots returns every aircraft still flying after elapsed, stamped with now.
// Aircraft that reached the end of their route are left out.
func (s *Scenario) Snapshots(elapsed time.Duration, now time.Time) []types.AircraftSnapshot {
	s.mu.Lock()
	runways := make(map[string]string, len(s.runways))
	for k, v := range s.runways {
		runways[k] = v
	}
	departureTimes := make(map[string]string, len(s.departureTimes))
	for k, v := range s.departureTimes {
		departureTimes[k] = v
	}
	s.mu.Unlock()

	out := make([]types.AircraftSnapshot, 0, len(s.script.Aircraft))
	for _, ac := range s.script.Aircraft {
		snap, ok := snapshot(ac, elapsed, now)
		if !ok {
			continue
		}
		if rwy, ok := runways[ac.Callsign]; ok {
			snap.FlightPlan.ArrivalRunway = rwy
		}
		if edt, ok := departureTimes[ac.Callsign]; ok {
			snap.FlightPlan.EstimatedDepartureTime = edt
		}
		out = append(out, snap)
	}
	return out
}

func snapshot(ac AircraftScript, elapsed time.Duration, now time.Time) (types.AircraftSnapshot, bool) {
	snap := types.AircraftSnapshot{
		Callsign:   ac.Callsign,
		ReceivedAt: now,
		FlightPlan: types.FlightPlan{
			Origin:                 ac.Origin,
			Destination:            ac.Destination,
			ArrivalRunway:          ac.ArrivalRunway,
			DepartureRunway:        ac.DepartureRunway,
			Star:                   ac.Star,
			Sid:                    ac.Sid,
			TrackedByMe:            ac.TrackedByMe,
			WakeCategory:           ac.WakeCategory,
			AircraftType:           ac.AircraftType,
			EstimatedDepartureTime: ac.EstimatedDepartureTime,
			TrueAirspeed:           ac.GroundKt,
		},
		Route: types.Route{AssignedIndex: -1},
	}

	points := make([]types.Position, len(ac.Route))
	for i, w := range ac.Route {
		points[i] = w.position()
		snap.Route.Points = append(snap.Route.Points, types.RoutePoint{
			Name:     w.Name,
			Position: points[i],
			IsOnStar: w.OnStar,
		})
	}

	if ac.OnGround {
		if len(points) > 0 {
			snap.Position = points[0]
		}
		return snap, true
	}

	total := geo.PathDistanceNM(points)
	flown := float64(ac.GroundKt) * elapsed.Hours()
	if flown >= total {
		return types.AircraftSnapshot{}, false
	}

	pos, next := alongPath(points, flown)
	for i := 0; i < next; i++ {
		snap.Route.Points[i].IsPassed = true
	}
	snap.Route.CalculatedIndex = next

	altitude := altitudeAt(ac.AltFeet, flown, total)
	snap.Position = pos
	snap.GroundSpeed = ac.GroundKt
	snap.PressureAltitude = altitude
	snap.FlightLevel = altitude / 100
	snap.Track = int(math.Round(geo.Bearing(pos, points[next])))

	// One sample per minute from here to touchdown
	step := float64(ac.GroundKt) / 60
	for d := flown; d < total; d += step {
		p, _ := alongPath(points, d)
		snap.Trajectory = append(snap.Trajectory, types.TrajectorySample{
			Position: p,
			Altitude: altitudeAt(ac.AltFeet, d, total),
		})
	}
	snap.Trajectory = append(snap.Trajectory, types.TrajectorySample{Position: points[len(points)-1]})

	return snap, true
}

// alongPath returns the position dist nautical miles along the path and the index
// of the next point ahead of it
func alongPath(points []types.Position, dist float64) (types.Position, int) {
	for i := 1; i < len(points); i++ {
		leg := geo.DistanceNM(points[i-1], points[i])
		if dist < leg {
			f := 0.0
			if leg > 0 {
				f = dist / leg
			}
			a, b := points[i-1], points[i]
			return types.Position{
				Latitude:  a.Latitude + (b.Latitude-a.Latitude)*f,
				Longitude: a.Longitude + (b.Longitude-a.Longitude)*f,
			}, i
		}
		dist -= leg
	}
	return points[len(points)-1], len(points) - 1
}

func altitudeAt(start int, flown, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(float64(start) * (1 - flown/total))
}
