package sequencer

import (
	"math"
	"sort"

	"github.com/saviobatista/aman-bridge/internal/geo"
	"github.com/saviobatista/aman-bridge/internal/types"
)

// BandHeight is the altitude granularity of the vertical profile in feet
const BandHeight = 5000

// BandFloor returns the floor of the band containing the altitude
func BandFloor(altitude int) int {
	return int(math.Floor(float64(altitude)/BandHeight)) * BandHeight
}

// VerticalProfile reduces a trajectory into one segment per altitude band.
//
// Every one-minute interval between consecutive samples is split over the bands it
// crosses, in proportion to the altitude flown inside each band, so the segment
// durations always sum to the trajectory duration. The heading of a band is the plain
// running mean of the headings merged into it, not weighted by time.
// Segments are ordered by band floor, lowest first.
func VerticalProfile(samples []types.TrajectorySample) []types.VerticalProfileSegment {
	bands := make(map[int]*types.VerticalProfileSegment)

	credit := func(floor int, seconds, heading, distance float64) {
		seg, ok := bands[floor]
		if !ok {
			bands[floor] = &types.VerticalProfileSegment{
				MinAltitude:    floor,
				MaxAltitude:    floor + BandHeight,
				Seconds:        seconds,
				AverageHeading: heading,
				Distance:       distance,
			}
			return
		}
		seg.Seconds += seconds
		seg.AverageHeading = (seg.AverageHeading + heading) / 2
		seg.Distance += distance
	}

	for i := 0; i < len(samples)-1; i++ {
		from, to := samples[i], samples[i+1]
		heading := geo.Bearing(from.Position, to.Position)
		distance := geo.DistanceNM(from.Position, to.Position)

		if from.Altitude == to.Altitude || BandFloor(from.Altitude) == BandFloor(to.Altitude) {
			credit(BandFloor(from.Altitude), SampleInterval, heading, distance)
			continue
		}

		for _, part := range splitInterval(from.Altitude, to.Altitude) {
			credit(part.floor, part.fraction*SampleInterval, heading, part.fraction*distance)
		}
	}

	out := make([]types.VerticalProfileSegment, 0, len(bands))
	for _, seg := range bands {
		out = append(out, *seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinAltitude < out[j].MinAltitude })
	return out
}

type bandShare struct {
	floor    int
	fraction float64
}

// splitInterval divides a linear altitude change into the share flown inside each band,
// in the order the bands are crossed
func splitInterval(from, to int) []bandShare {
	low, high := from, to
	if low > high {
		low, high = high, low
	}
	span := float64(high - low)

	var shares []bandShare
	for floor := BandFloor(low); floor < high; floor += BandHeight {
		top := floor + BandHeight
		overlap := math.Min(float64(high), float64(top)) - math.Max(float64(low), float64(floor))
		if overlap <= 0 {
			continue
		}
		shares = append(shares, bandShare{floor: floor, fraction: overlap / span})
	}

	if from > to {
		for i, j := 0, len(shares)-1; i < j; i, j = i+1, j-1 {
			shares[i], shares[j] = shares[j], shares[i]
		}
	}
	return shares
}
