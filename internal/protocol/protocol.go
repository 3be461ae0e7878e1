package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types
const (
	TypeRegisterAirport       = "registerAirport"
	TypeUnregisterAirport     = "unregisterAirport"
	TypeRequestInboundsForFix = "requestInboundsForFix"
	TypeRegisterTimeline      = "registerTimeline"
	TypeRequestOutbounds      = "requestOutbounds"
	TypeUnregisterTimeline    = "unregisterTimeline"
	TypeCancelRequest         = "cancelRequest"
	TypeAssignRunway          = "assignRunway"
	TypeSetCtot               = "setCtot"
)

// Outbound message types
const (
	TypePluginVersion  = "pluginVersion"
	TypeFixInboundList = "fixInboundList"
	TypeArrivals       = "arrivals"
	TypeDepartureList  = "departureList"
	TypeDepartures     = "departures"
	TypeRunwayStatuses = "runwayStatuses"
	TypeControllerInfo = "controllerInfo"
)

var (
	// ErrMalformed is returned for input that is not a JSON object of the expected shape
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for an unrecognized type discriminator
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingField is returned when a required field is absent
	ErrMissingField = errors.New("missing required field")
)

// CommandKind identifies a decoded client command
type CommandKind int

const (
	CommandRegisterAirport CommandKind = iota + 1
	CommandUnregisterAirport
	CommandSubscribeFix
	CommandSubscribeOutbounds
	CommandUnsubscribe
	CommandAssignRunway
	CommandSetCtot
)

func (k CommandKind) String() string {
	switch k {
	case CommandRegisterAirport:
		return "register-airport"
	case CommandUnregisterAirport:
		return "unregister-airport"
	case CommandSubscribeFix:
		return "subscribe-fix"
	case CommandSubscribeOutbounds:
		return "subscribe-outbounds"
	case CommandUnsubscribe:
		return "unsubscribe"
	case CommandAssignRunway:
		return "assign-runway"
	case CommandSetCtot:
		return "set-ctot"
	default:
		return "unknown"
	}
}

// Command is a decoded inbound message. Only the fields of its Kind are set.
type Command struct {
	Kind CommandKind

	RequestID    int64
	HasRequestID bool

	ICAO string

	ViaFixes            []string
	TargetFixes         []string
	DestinationAirports []string

	Callsign string
	Runway   string
	Ctot     int64
}

// inboundMessage is the union of all inbound fields; pointers tell absent from zero
type inboundMessage struct {
	Type                string    `json:"type"`
	RequestID           *int64    `json:"requestId"`
	TimelineID          *int64    `json:"timelineId"`
	Icao                *string   `json:"icao"`
	AirportIcao         *string   `json:"airportIcao"`
	ViaFixes            *[]string `json:"viaFixes"`
	TargetFixes         *[]string `json:"targetFixes"`
	DestinationAirports *[]string `json:"destinationAirports"`
	Callsign            *string   `json:"callsign"`
	Runway              *string   `json:"runway"`
	Ctot                *int64    `json:"ctot"`
}

// Decode parses one inbound line into a command
func Decode(line []byte) (Command, error) {
	var msg inboundMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return Command{}, missing("type")
	}

	switch msg.Type {
	case TypeRegisterAirport, TypeUnregisterAirport:
		if msg.Icao == nil {
			return Command{}, missing("icao")
		}
		kind := CommandRegisterAirport
		if msg.Type == TypeUnregisterAirport {
			kind = CommandUnregisterAirport
		}
		return Command{Kind: kind, ICAO: *msg.Icao}, nil

	case TypeRequestInboundsForFix, TypeRegisterTimeline:
		id, ok := msg.requestID()
		if !ok {
			return Command{}, missing("requestId")
		}
		if msg.ViaFixes == nil {
			return Command{}, missing("viaFixes")
		}
		if msg.TargetFixes == nil {
			return Command{}, missing("targetFixes")
		}
		if msg.DestinationAirports == nil {
			return Command{}, missing("destinationAirports")
		}
		return Command{
			Kind:                CommandSubscribeFix,
			RequestID:           id,
			HasRequestID:        true,
			ViaFixes:            *msg.ViaFixes,
			TargetFixes:         *msg.TargetFixes,
			DestinationAirports: *msg.DestinationAirports,
		}, nil

	case TypeRequestOutbounds:
		id, ok := msg.requestID()
		if !ok {
			return Command{}, missing("requestId")
		}
		if msg.AirportIcao == nil {
			return Command{}, missing("airportIcao")
		}
		return Command{Kind: CommandSubscribeOutbounds, RequestID: id, HasRequestID: true, ICAO: *msg.AirportIcao}, nil

	case TypeUnregisterTimeline, TypeCancelRequest:
		id, ok := msg.requestID()
		if !ok {
			return Command{}, missing("requestId")
		}
		return Command{Kind: CommandUnsubscribe, RequestID: id, HasRequestID: true}, nil

	case TypeAssignRunway:
		if msg.Callsign == nil {
			return Command{}, missing("callsign")
		}
		if msg.Runway == nil {
			return Command{}, missing("runway")
		}
		cmd := Command{Kind: CommandAssignRunway, Callsign: *msg.Callsign, Runway: *msg.Runway}
		cmd.RequestID, cmd.HasRequestID = msg.requestID()
		return cmd, nil

	case TypeSetCtot:
		if msg.Callsign == nil {
			return Command{}, missing("callsign")
		}
		if msg.Ctot == nil {
			return Command{}, missing("ctot")
		}
		return Command{Kind: CommandSetCtot, Callsign: *msg.Callsign, Ctot: *msg.Ctot}, nil

	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// requestID falls back to the timelineId used by older clients
func (m inboundMessage) requestID() (int64, bool) {
	if m.RequestID != nil {
		return *m.RequestID, true
	}
	if m.TimelineID != nil {
		return *m.TimelineID, true
	}
	return 0, false
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
