package sequencer

import (
	"strconv"
	"time"

	"github.com/saviobatista/aman-bridge/internal/types"
)

// InvalidDepartureTime marks a departure time that could not be parsed
const InvalidDepartureTime int64 = -1

// DeparturesFromAirport lists every flight plan departing the airport
func (e *Engine) DeparturesFromAirport(icao string, aircraft []types.AircraftSnapshot) []types.Departure {
	now := e.now()
	departures := make([]types.Departure, 0)
	for _, ac := range aircraft {
		fp := ac.FlightPlan
		if fp.Origin != icao {
			continue
		}
		departures = append(departures, types.Departure{
			Callsign:               ac.Callsign,
			Sid:                    fp.Sid,
			Runway:                 fp.DepartureRunway,
			EstimatedDepartureTime: ParseDepartureTime(now, fp.EstimatedDepartureTime),
			AircraftType:           fp.AircraftType,
			WakeCategory:           fp.WakeCategory,
			AirportIcao:            icao,
		})
	}
	return departures
}

// ParseDepartureTime converts an HHMM time to a unix timestamp on the UTC date of now.
// Anything other than four digits within range yields InvalidDepartureTime.
func ParseDepartureTime(now time.Time, hhmm string) int64 {
	if len(hhmm) != 4 {
		return InvalidDepartureTime
	}
	for _, c := range hhmm {
		if c < '0' || c > '9' {
			return InvalidDepartureTime
		}
	}

	hour, _ := strconv.Atoi(hhmm[:2])
	minute, _ := strconv.Atoi(hhmm[2:])
	if hour > 23 || minute > 59 {
		return InvalidDepartureTime
	}

	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC).Unix()
}

// FormatCtot renders a unix timestamp as HH:MM in UTC
func FormatCtot(ctot int64) string {
	return time.Unix(ctot, 0).UTC().Format("15:04")
}
