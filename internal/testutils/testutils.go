package testutils

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/saviobatista/aman-bridge/internal/types"
)

// MockAircraft creates an aircraft flying east along the equator over the given fixes,
// one fix every half degree, ending at the destination airport
func MockAircraft(callsign, destination string, fixes ...string) types.AircraftSnapshot {
	names := append(append([]string(nil), fixes...), destination)

	points := make([]types.RoutePoint, 0, len(names))
	for i, name := range names {
		points = append(points, types.RoutePoint{
			Name:     name,
			Position: types.Position{Longitude: float64(i+1) * 0.5},
		})
	}

	// Four samples per route leg, the last one on the destination
	samples := len(names)*2 + 1
	trajectory := make([]types.TrajectorySample, 0, samples)
	for i := 0; i < samples; i++ {
		trajectory = append(trajectory, types.TrajectorySample{
			Position: types.Position{Longitude: float64(i) * 0.25},
			Altitude: 12000 - i*12000/samples,
		})
	}

	return types.AircraftSnapshot{
		Callsign:         callsign,
		GroundSpeed:      250,
		PressureAltitude: 12000,
		FlightLevel:      120,
		Track:            90,
		ReceivedAt:       time.Now(),
		FlightPlan: types.FlightPlan{
			Origin:       "ESSA",
			Destination:  destination,
			AircraftType: "A320",
			WakeCategory: "M",
		},
		Route: types.Route{
			Points:          points,
			CalculatedIndex: 0,
			AssignedIndex:   -1,
		},
		Trajectory: trajectory,
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
		}
	}
}

// LineReader reads newline-delimited messages from a client connection
type LineReader struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// NewLineReader wraps a connection
func NewLineReader(conn net.Conn) *LineReader {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &LineReader{conn: conn, scanner: scanner}
}

// ReadLine returns the next line, or an error if none arrives within timeout
func (r *LineReader) ReadLine(timeout time.Duration) (string, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("connection closed")
	}
	return r.scanner.Text(), nil
}
