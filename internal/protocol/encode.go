package protocol

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/saviobatista/aman-bridge/internal/types"
)

type pluginVersionMessage struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

type inboundsMessage struct {
	Type      string        `json:"type"`
	RequestID *int64        `json:"requestId,omitempty"`
	Inbounds  []inboundJSON `json:"inbounds"`
}

type inboundJSON struct {
	Callsign                string               `json:"callsign"`
	IcaoType                string               `json:"icaoType"`
	Wtc                     string               `json:"wtc"`
	Runway                  string               `json:"runway"`
	Star                    string               `json:"star"`
	FinalFixEta             int64                `json:"finalFixEta"`
	Eta                     int64                `json:"eta"`
	RemainingDist           float64              `json:"remainingDist"`
	ViaFix                  string               `json:"viaFix"`
	FinalFix                string               `json:"finalFix"`
	FlightLevel             int                  `json:"flightLevel"`
	PressureAltitude        int                  `json:"pressureAltitude"`
	GroundSpeed             int                  `json:"groundSpeed"`
	SecondsBehindPreceeding int64                `json:"secondsBehindPreceeding"`
	IsAboveTransAlt         bool                 `json:"isAboveTransAlt"`
	IsSelected              bool                 `json:"isSelected"`
	TrackedByMe             bool                 `json:"trackedByMe"`
	Direct                  string               `json:"direct"`
	ScratchPad              string               `json:"scratchPad"`
	Latitude                float64              `json:"latitude"`
	Longitude               float64              `json:"longitude"`
	Track                   int                  `json:"track"`
	ArrivalAirportIcao      string               `json:"arrivalAirportIcao"`
	TrackingController      string               `json:"trackingController,omitempty"`
	FlightPlanTas           int                  `json:"flightPlanTas,omitempty"`
	Route                   []routePointJSON     `json:"route"`
	DescentProfile          []descentProfileJSON `json:"descentProfile"`
}

type routePointJSON struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IsPassed  bool    `json:"isPassed"`
	IsOnStar  bool    `json:"isOnStar,omitempty"`
}

type descentProfileJSON struct {
	MinAltitude    int     `json:"minAltitude"`
	MaxAltitude    int     `json:"maxAltitude"`
	AverageHeading int     `json:"averageHeading"`
	SecDuration    int     `json:"secDuration"`
	Distance       float64 `json:"distance"`
}

type outboundsMessage struct {
	Type      string          `json:"type"`
	RequestID *int64          `json:"requestId,omitempty"`
	Outbounds []departureJSON `json:"outbounds"`
}

type departureJSON struct {
	DepartureAirportIcao   string `json:"departureAirportIcao,omitempty"`
	Callsign               string `json:"callsign"`
	Sid                    string `json:"sid"`
	Runway                 string `json:"runway"`
	EstimatedDepartureTime int64  `json:"estimatedDepartureTime"`
	IcaoType               string `json:"icaoType"`
	WakeCategory           string `json:"wakeCategory"`
}

type runwayFlags struct {
	Arrivals   bool `json:"arrivals"`
	Departures bool `json:"departures"`
}

type runwayStatusesMessage struct {
	Type     string                            `json:"type"`
	Airports map[string]map[string]runwayFlags `json:"airports"`
}

type controllerJSON struct {
	Callsign     *string `json:"callsign"`
	PositionID   *string `json:"positionId"`
	FacilityType *int    `json:"facilityType"`
}

type controllerInfoMessage struct {
	Type string         `json:"type"`
	Me   controllerJSON `json:"me"`
}

// EncodePluginVersion builds the greeting sent on every new connection
func EncodePluginVersion(version string) ([]byte, error) {
	return marshal(pluginVersionMessage{Type: TypePluginVersion, Version: version})
}

// EncodeFixInbounds builds the answer to an inbound-fix subscription
func EncodeFixInbounds(requestID int64, arrivals []types.SequencedArrival) ([]byte, error) {
	return marshal(inboundsMessage{
		Type:      TypeFixInboundList,
		RequestID: &requestID,
		Inbounds:  inbounds(arrivals),
	})
}

// EncodeArrivals builds the airport-scoped arrival stream
func EncodeArrivals(arrivals []types.SequencedArrival) ([]byte, error) {
	return marshal(inboundsMessage{
		Type:     TypeArrivals,
		Inbounds: inbounds(arrivals),
	})
}

// EncodeDepartureList builds the answer to an outbound-airport subscription
func EncodeDepartureList(requestID int64, departures []types.Departure) ([]byte, error) {
	out := make([]departureJSON, 0, len(departures))
	for _, d := range departures {
		j := departure(d)
		j.DepartureAirportIcao = ""
		out = append(out, j)
	}
	return marshal(outboundsMessage{Type: TypeDepartureList, RequestID: &requestID, Outbounds: out})
}

// EncodeDepartures builds the airport-scoped departure stream
func EncodeDepartures(departures []types.Departure) ([]byte, error) {
	out := make([]departureJSON, 0, len(departures))
	for _, d := range departures {
		out = append(out, departure(d))
	}
	return marshal(outboundsMessage{Type: TypeDepartures, Outbounds: out})
}

// EncodeRunwayStatuses groups runway states by airport and runway
func EncodeRunwayStatuses(runways []types.RunwayStatus) ([]byte, error) {
	airports := make(map[string]map[string]runwayFlags)
	for _, r := range runways {
		if airports[r.AirportIcao] == nil {
			airports[r.AirportIcao] = make(map[string]runwayFlags)
		}
		airports[r.AirportIcao][r.Runway] = runwayFlags{
			Arrivals:   r.ActiveForArrivals,
			Departures: r.ActiveForDepartures,
		}
	}
	return marshal(runwayStatusesMessage{Type: TypeRunwayStatuses, Airports: airports})
}

// EncodeControllerInfo describes the logged in position; unknown values are sent as null
func EncodeControllerInfo(info types.ControllerInfo) ([]byte, error) {
	var me controllerJSON
	if info.Callsign != "" {
		me.Callsign = &info.Callsign
	}
	if info.PositionID != "" {
		me.PositionID = &info.PositionID
	}
	if info.FacilityType > 0 {
		me.FacilityType = &info.FacilityType
	}
	return marshal(controllerInfoMessage{Type: TypeControllerInfo, Me: me})
}

func inbounds(arrivals []types.SequencedArrival) []inboundJSON {
	out := make([]inboundJSON, 0, len(arrivals))
	for _, a := range arrivals {
		ac := a.Aircraft
		fp := ac.FlightPlan

		route := make([]routePointJSON, 0, len(ac.Route.Points))
		for _, p := range ac.Route.Points {
			route = append(route, routePointJSON{
				Name:      p.Name,
				Latitude:  p.Position.Latitude,
				Longitude: p.Position.Longitude,
				IsPassed:  p.IsPassed,
				IsOnStar:  p.IsOnStar,
			})
		}

		profile := make([]descentProfileJSON, 0, len(a.Profile))
		for _, s := range a.Profile {
			profile = append(profile, descentProfileJSON{
				MinAltitude:    s.MinAltitude,
				MaxAltitude:    s.MaxAltitude,
				AverageHeading: int(math.Round(s.AverageHeading)),
				SecDuration:    int(math.Round(s.Seconds)),
				Distance:       s.Distance,
			})
		}

		out = append(out, inboundJSON{
			Callsign:                a.Callsign,
			IcaoType:                fp.AircraftType,
			Wtc:                     fp.WakeCategory,
			Runway:                  fp.ArrivalRunway,
			Star:                    fp.Star,
			FinalFixEta:             a.TargetFixEta,
			Eta:                     a.DestinationEta,
			RemainingDist:           a.RemainingDistance,
			ViaFix:                  a.ViaFix,
			FinalFix:                a.TargetFix,
			FlightLevel:             ac.FlightLevel,
			PressureAltitude:        ac.PressureAltitude,
			GroundSpeed:             ac.GroundSpeed,
			SecondsBehindPreceeding: a.SecondsBehindPreceeding,
			IsAboveTransAlt:         a.IsAboveTransAlt,
			IsSelected:              a.IsSelected,
			TrackedByMe:             fp.TrackedByMe,
			Direct:                  fp.DirectTo,
			ScratchPad:              fp.ScratchPad,
			Latitude:                ac.Position.Latitude,
			Longitude:               ac.Position.Longitude,
			Track:                   ac.Track,
			ArrivalAirportIcao:      fp.Destination,
			TrackingController:      fp.TrackingController,
			FlightPlanTas:           fp.TrueAirspeed,
			Route:                   route,
			DescentProfile:          profile,
		})
	}
	return out
}

func departure(d types.Departure) departureJSON {
	return departureJSON{
		DepartureAirportIcao:   d.AirportIcao,
		Callsign:               d.Callsign,
		Sid:                    d.Sid,
		Runway:                 d.Runway,
		EstimatedDepartureTime: d.EstimatedDepartureTime,
		IcaoType:               d.AircraftType,
		WakeCategory:           d.WakeCategory,
	}
}

func marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}
