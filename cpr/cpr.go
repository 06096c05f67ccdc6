// Package cpr implements the Compact Position Reporting scheme used by ADS-B
// airborne and surface position messages. A single CPR frame only locates an
// aircraft within its latitude zone; recovering an unambiguous global position
// needs one even-parity and one odd-parity frame received close together in
// time. Resolve() does the globally-unambiguous two-frame decode; Encode()
// does the reverse, and exists for tests and for mockradio.
package cpr

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/skypies/geo"
)

const (
	// Raw CPR lat/lon values are 17-bit fields.
	MaxRaw = 1 << 17

	// How far apart in time an even/odd pair may be before we refuse to
	// assume the aircraft held a consistent zone between them.
	AirborneMaxInterval = 10 * time.Second
	SurfaceMaxInterval  = 25 * time.Second

	// Decodes further than this from the receiver are presumed to be zone
	// aliases, not aircraft we can actually hear.
	maxRangeNM = 300.0

	nz = 15.0 // number of geographic latitude zones, per the ICAO spec
)

var (
	// ErrAmbiguousDecode means the frame pair can't be trusted to produce a
	// single consistent position: the frames straddle a zone boundary, or are
	// too far apart in time. This is routine; the caller just waits for a
	// closer pair.
	ErrAmbiguousDecode = errors.New("cpr: ambiguous decode")

	// ErrInvalidFrame means a raw value was out of range for a 17-bit field,
	// or the pair wasn't one even frame plus one odd frame.
	ErrInvalidFrame = errors.New("cpr: invalid frame")
)

// Frame is one raw CPR position report, as demuxed out of a position message
// by the radio's decoder.
type Frame struct {
	RawLat  uint32 // 17-bit encoded latitude
	RawLon  uint32 // 17-bit encoded longitude
	Odd     bool
	Surface bool
	Time    time.Time // when the radio received it
}

// Valid reports whether the raw values fit in their 17-bit fields.
func (f Frame) Valid() bool {
	return f.RawLat < MaxRaw && f.RawLon < MaxRaw
}

// Resolve decodes an even/odd frame pair into a geodetic position. The
// returned time is that of the newer frame, which is the position's effective
// observation time. `receiver` is the nominal receiver location, used for
// surface-frame quadrant selection and for the range sanity check; a zero
// Latlong skips the range check.
func Resolve(even, odd Frame, receiver geo.Latlong) (geo.Latlong, time.Time, error) {
	if even.Odd || !odd.Odd {
		return geo.Latlong{}, time.Time{}, fmt.Errorf("%w: pair is not even+odd", ErrInvalidFrame)
	}
	if !even.Valid() || !odd.Valid() {
		return geo.Latlong{}, time.Time{}, fmt.Errorf("%w: raw value exceeds 17 bits", ErrInvalidFrame)
	}

	surface := even.Surface || odd.Surface
	window := AirborneMaxInterval
	if surface {
		window = SurfaceMaxInterval
	}

	delta := even.Time.Sub(odd.Time)
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return geo.Latlong{}, time.Time{}, fmt.Errorf("%w: frames %s apart", ErrAmbiguousDecode, delta)
	}

	// Surface frames encode position within a 90-degree span rather than 360.
	span := 360.0
	if surface {
		span = 90.0
	}

	latE := float64(even.RawLat) / MaxRaw
	latO := float64(odd.RawLat) / MaxRaw
	lonE := float64(even.RawLon) / MaxRaw
	lonO := float64(odd.RawLon) / MaxRaw

	dLatE := span / 60.0
	dLatO := span / 59.0

	// Latitude zone index.
	j := math.Floor(59.0*latE - 60.0*latO + 0.5)

	rlatE := dLatE * (fmod(j, 60) + latE)
	rlatO := dLatO * (fmod(j, 59) + latO)
	if rlatE >= 270 {
		rlatE -= 360
	}
	if rlatO >= 270 {
		rlatO -= 360
	}
	if surface {
		// The 90-degree encoding leaves a four-way latitude ambiguity; pick
		// the candidate hemisphere nearest the receiver.
		rlatE = nearestQuadrant(rlatE, receiver.Lat, 90)
		rlatO = nearestQuadrant(rlatO, receiver.Lat, 90)
	}

	if rlatE < -90 || rlatE > 90 || rlatO < -90 || rlatO > 90 {
		return geo.Latlong{}, time.Time{}, fmt.Errorf("%w: latitude out of range", ErrAmbiguousDecode)
	}

	// If the two candidate latitudes fall in different longitude zones, the
	// pair straddles a boundary and can't be combined.
	if nl(rlatE) != nl(rlatO) {
		return geo.Latlong{}, time.Time{}, fmt.Errorf("%w: NL mismatch", ErrAmbiguousDecode)
	}

	// The newer frame's parity is the reference for the longitude decode.
	newerIsOdd := odd.Time.After(even.Time)

	var lat, lon float64
	zones := nl(rlatE)
	if newerIsOdd {
		lat = rlatO
		n := max(zones-1, 1)
		dLon := span / float64(n)
		m := math.Floor(lonE*float64(zones-1) - lonO*float64(zones) + 0.5)
		lon = dLon * (fmod(m, float64(n)) + lonO)
	} else {
		lat = rlatE
		n := max(zones, 1)
		dLon := span / float64(n)
		m := math.Floor(lonE*float64(zones-1) - lonO*float64(zones) + 0.5)
		lon = dLon * (fmod(m, float64(n)) + lonE)
	}

	if surface {
		lon = nearestQuadrant(lon, receiver.Long, 90)
	}
	if lon >= 180 {
		lon -= 360
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return geo.Latlong{}, time.Time{}, fmt.Errorf("%w: position out of range", ErrAmbiguousDecode)
	}

	pos := geo.Latlong{Lat: lat, Long: lon}

	if receiver.Lat != 0 || receiver.Long != 0 {
		if pos.DistNM(receiver) > maxRangeNM {
			return geo.Latlong{}, time.Time{}, fmt.Errorf("%w: %0.f NM from receiver", ErrAmbiguousDecode,
				pos.DistNM(receiver))
		}
	}

	t := even.Time
	if newerIsOdd {
		t = odd.Time
	}
	return pos, t, nil
}

// Encode produces the raw 17-bit lat/lon pair for a position, at the given
// parity. Inverse of Resolve, up to 17-bit quantization.
func Encode(pos geo.Latlong, odd bool) (rawLat, rawLon uint32) {
	dLat := 360.0 / 60.0
	if odd {
		dLat = 360.0 / 59.0
	}

	yz := math.Floor(MaxRaw*fmod(pos.Lat, dLat)/dLat + 0.5)
	rlat := dLat * (yz/MaxRaw + math.Floor(pos.Lat/dLat))

	zones := nl(rlat)
	if odd {
		zones--
	}
	dLon := 360.0
	if zones > 0 {
		dLon = 360.0 / float64(zones)
	}
	xz := math.Floor(MaxRaw*fmod(pos.Long, dLon)/dLon + 0.5)

	return uint32(fmod(yz, MaxRaw)), uint32(fmod(xz, MaxRaw))
}

// nl is the ICAO NL() function: how many longitude zones exist at a latitude.
func nl(lat float64) int {
	if lat == 0 {
		return 59
	}
	if math.Abs(lat) == 87 {
		return 2
	}
	if math.Abs(lat) > 87 {
		return 1
	}

	a := 1 - math.Cos(math.Pi/(2*nz))
	b := math.Pow(math.Cos(lat*math.Pi/180), 2)
	x := 1 - a/b
	if x < -1 {
		x = -1
	} else if x > 1 {
		x = 1
	}

	return int(math.Floor(2 * math.Pi / math.Acos(x)))
}

// fmod is a floored modulo; math.Mod is truncated and goes negative.
func fmod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r < 0 {
		r += b
	}
	return r
}

// nearestQuadrant returns the candidate (c + k*span for integer k) closest to
// ref. Surface decodes need this to recover the bits the 90-degree encoding
// throws away.
func nearestQuadrant(c, ref, span float64) float64 {
	best := c
	bestDist := math.Abs(c - ref)
	for k := -4; k <= 4; k++ {
		cand := c + float64(k)*span
		if cand < -180 || cand > 180 {
			continue
		}
		if d := math.Abs(cand - ref); d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}
