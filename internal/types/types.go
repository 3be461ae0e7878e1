package types

import (
	"encoding/json"
	"time"
)

// Position is a geographic coordinate in decimal degrees
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TrajectorySample is one predicted future point; samples are one minute apart
type TrajectorySample struct {
	Position Position `json:"position"`
	Altitude int      `json:"altitude"`
}

// RoutePoint is a named point of an extracted flight plan route
type RoutePoint struct {
	Name     string   `json:"name"`
	Position Position `json:"position"`
	IsPassed bool     `json:"is_passed"`
	IsOnStar bool     `json:"is_on_star"`
}

// Route is the extracted route of a flight plan
type Route struct {
	Points []RoutePoint `json:"points"`
	// CalculatedIndex is the index of the nearest unflown point
	CalculatedIndex int `json:"calculated_index"`
	// AssignedIndex is the index of the controller-assigned direct-to point, -1 when none
	AssignedIndex int `json:"assigned_index"`
}

// UnmarshalJSON defaults AssignedIndex to -1 when the feed omits it
func (r *Route) UnmarshalJSON(data []byte) error {
	type plain Route
	aux := plain{AssignedIndex: -1}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Route(aux)
	return nil
}

// IndexOf returns the index of the first point with the given name, or -1
func (r Route) IndexOf(name string) int {
	for i, p := range r.Points {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// NextIndex returns the index of the next point the aircraft is flying to
func (r Route) NextIndex() int {
	if r.AssignedIndex > -1 && r.AssignedIndex < len(r.Points) {
		return r.AssignedIndex
	}
	return r.CalculatedIndex
}

// FlightPlan holds the flight plan and controller-assigned fields of an aircraft
type FlightPlan struct {
	Origin                 string `json:"origin"`
	Destination            string `json:"destination"`
	ArrivalRunway          string `json:"arrival_runway"`
	DepartureRunway        string `json:"departure_runway"`
	Star                   string `json:"star"`
	Sid                    string `json:"sid"`
	DirectTo               string `json:"direct_to"`
	ScratchPad             string `json:"scratch_pad"`
	TrackingController     string `json:"tracking_controller"`
	TrackedByMe            bool   `json:"tracked_by_me"`
	WakeCategory           string `json:"wake_category"`
	AircraftType           string `json:"aircraft_type"`
	EstimatedDepartureTime string `json:"estimated_departure_time"` // HHMM
	TrueAirspeed           int    `json:"true_airspeed"`
}

// AircraftSnapshot is the state of one aircraft as supplied by the host on a tick
type AircraftSnapshot struct {
	Callsign         string             `json:"callsign"`
	Position         Position           `json:"position"`
	GroundSpeed      int                `json:"ground_speed"`
	PressureAltitude int                `json:"pressure_altitude"`
	FlightLevel      int                `json:"flight_level"`
	Track            int                `json:"track"`
	ReceivedAt       time.Time          `json:"received_at"`
	FlightPlan       FlightPlan         `json:"flight_plan"`
	Route            Route              `json:"route"`
	Trajectory       []TrajectorySample `json:"trajectory"`
}

// VerticalProfileSegment summarizes the part of a trajectory spent inside one 5000 ft band
type VerticalProfileSegment struct {
	MinAltitude    int     `json:"min_altitude"`
	MaxAltitude    int     `json:"max_altitude"`
	Seconds        float64 `json:"seconds"`
	AverageHeading float64 `json:"average_heading"`
	Distance       float64 `json:"distance"`
}

// SequencedArrival is the sequencing result for one aircraft within one subscription
type SequencedArrival struct {
	Callsign                string                   `json:"callsign"`
	TargetFix               string                   `json:"target_fix"`
	ViaFix                  string                   `json:"via_fix"`
	TargetFixEta            int64                    `json:"target_fix_eta"`
	DestinationEta          int64                    `json:"destination_eta"`
	RemainingDistance       float64                  `json:"remaining_distance"`
	SecondsBehindPreceeding int64                    `json:"seconds_behind_preceeding"`
	IsSelected              bool                     `json:"is_selected"`
	IsAboveTransAlt         bool                     `json:"is_above_trans_alt"`
	Aircraft                AircraftSnapshot         `json:"aircraft"`
	Profile                 []VerticalProfileSegment `json:"profile"`
}

// Departure is one outbound flight plan from an airport
type Departure struct {
	Callsign               string `json:"callsign"`
	Sid                    string `json:"sid"`
	Runway                 string `json:"runway"`
	EstimatedDepartureTime int64  `json:"estimated_departure_time"`
	AircraftType           string `json:"aircraft_type"`
	WakeCategory           string `json:"wake_category"`
	AirportIcao            string `json:"airport_icao"`
}

// RunwayStatus tells whether a runway is active for arrivals and departures
type RunwayStatus struct {
	AirportIcao         string `json:"airport_icao"`
	Runway              string `json:"runway"`
	ActiveForArrivals   bool   `json:"active_for_arrivals"`
	ActiveForDepartures bool   `json:"active_for_departures"`
}

// ControllerInfo identifies the controller position the host is logged in as
type ControllerInfo struct {
	Callsign     string `json:"callsign"`
	PositionID   string `json:"position_id"`
	FacilityType int    `json:"facility_type"`
}

// Environment is the non-aircraft part of the host state
type Environment struct {
	TransitionAltitude int            `json:"transition_altitude"`
	SelectedCallsign   string         `json:"selected_callsign"`
	Runways            []RunwayStatus `json:"runways"`
	Controller         ControllerInfo `json:"controller"`
}

// CommandRecord is an applied client command, kept for audit and published to the host
type CommandRecord struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Kind         string    `json:"kind"`
	Callsign     string    `json:"callsign"`
	Value        string    `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}
