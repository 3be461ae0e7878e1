package bridge

import (
	"fmt"

	"github.com/saviobatista/aman-bridge/internal/protocol"
)

// CommandHandler applies decoded client commands, one method per command kind
type CommandHandler interface {
	RegisterAirport(icao string)
	UnregisterAirport(icao string)
	SubscribeFix(requestID int64, viaFixes, targetFixes, destinationAirports []string)
	SubscribeOutbounds(requestID int64, airportIcao string)
	Unsubscribe(requestID int64)
	AssignRunway(callsign, runway string)
	SetCtot(callsign string, ctot int64)
}

// Dispatch routes a command to the matching handler method
func Dispatch(h CommandHandler, cmd protocol.Command) error {
	switch cmd.Kind {
	case protocol.CommandRegisterAirport:
		h.RegisterAirport(cmd.ICAO)
	case protocol.CommandUnregisterAirport:
		h.UnregisterAirport(cmd.ICAO)
	case protocol.CommandSubscribeFix:
		h.SubscribeFix(cmd.RequestID, cmd.ViaFixes, cmd.TargetFixes, cmd.DestinationAirports)
	case protocol.CommandSubscribeOutbounds:
		h.SubscribeOutbounds(cmd.RequestID, cmd.ICAO)
	case protocol.CommandUnsubscribe:
		h.Unsubscribe(cmd.RequestID)
	case protocol.CommandAssignRunway:
		h.AssignRunway(cmd.Callsign, cmd.Runway)
	case protocol.CommandSetCtot:
		h.SetCtot(cmd.Callsign, cmd.Ctot)
	default:
		return fmt.Errorf("%w: command kind %d", protocol.ErrUnknownType, cmd.Kind)
	}
	return nil
}
