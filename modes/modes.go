// Package modes defines the typed message records that come out of the radio
// process, and the line format they travel over.
//
// The radio does all the bit-level Mode S / ADS-B work (preamble detection,
// CRC, downlink-format demux) and writes one CSV line per decoded message.
// Every line starts with a subtype tag, the ICAO address, and the receive
// timestamp; the remaining fields depend on the subtype:
//
//	ID,<icao24>,<rfc3339>,<callsign>,<wake>     identification (DF17 TC 1-4)
//	SQ,<icao24>,<rfc3339>,<squawk>              surveillance identity (DF5/21)
//	AL,<icao24>,<rfc3339>,<altitude>            surveillance altitude (DF4/20)
//	PO,<icao24>,<rfc3339>,<altitude>,<E|O>,<rawlat>,<rawlon>,<A|S>
//	                                            position frame (DF17 TC 9-22)
//	VE,<icao24>,<rfc3339>,<gspeed>,<track>,<vrate>
//	                                            airborne velocity (DF17 TC 19)
//
// Position lines carry the raw 17-bit CPR fields; pairing them up across time
// is the aggregator's job, not the radio's.
package modes

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skypies/adsb"

	"github.com/electronfraud/airplane-thing/cpr"
)

// Message is one decoded radio message. The concrete type tags the subtype;
// consumers switch on it exhaustively.
type Message interface {
	IcaoId() adsb.IcaoId
	When() time.Time
}

// Header is the part every subtype has.
type Header struct {
	Icao24 adsb.IcaoId
	Time   time.Time
}

func (h Header) IcaoId() adsb.IcaoId { return h.Icao24 }
func (h Header) When() time.Time     { return h.Time }

// Identification carries the callsign and wake category (DF17, TC 1-4).
type Identification struct {
	Header
	Callsign     string
	WakeCategory string
}

// SquawkReply carries the assigned Mode A code (DF5, DF21).
type SquawkReply struct {
	Header
	Squawk string
}

// AltitudeReply carries a barometric altitude alone (DF4, DF20).
type AltitudeReply struct {
	Header
	Altitude int64 // feet
}

// PositionFrame carries one raw CPR frame plus the altitude encoded alongside
// it (DF17, TC 9-18 airborne / 5-8 surface).
type PositionFrame struct {
	Header
	Altitude int64 // feet
	Frame    cpr.Frame
}

// Velocity carries ground speed, track and vertical rate (DF17, TC 19).
type Velocity struct {
	Header
	GroundSpeed  int64 // knots
	Track        int64 // degrees, direction of travel
	VerticalRate int64 // feet/minute
}

// ParseLine turns one radio line into a Message.
func ParseLine(text string) (Message, error) {
	f := strings.Split(strings.TrimSpace(text), ",")
	if len(f) < 3 {
		return nil, fmt.Errorf("modes: short line %q", text)
	}

	icao := adsb.IcaoId(strings.ToUpper(f[1]))
	if len(icao) != 6 {
		return nil, fmt.Errorf("modes: bad icao24 %q", f[1])
	}
	when, err := time.Parse(time.RFC3339Nano, f[2])
	if err != nil {
		return nil, fmt.Errorf("modes: bad timestamp %q: %v", f[2], err)
	}
	h := Header{Icao24: icao, Time: when.UTC()}

	switch f[0] {
	case "ID":
		if len(f) != 5 {
			return nil, fmt.Errorf("modes: ID needs 5 fields, got %q", text)
		}
		cs := strings.TrimSpace(f[3])
		if cs == "" {
			return nil, fmt.Errorf("modes: empty callsign in %q", text)
		}
		return Identification{Header: h, Callsign: cs, WakeCategory: f[4]}, nil

	case "SQ":
		if len(f) != 4 {
			return nil, fmt.Errorf("modes: SQ needs 4 fields, got %q", text)
		}
		if !validSquawk(f[3]) {
			return nil, fmt.Errorf("modes: bad squawk %q", f[3])
		}
		return SquawkReply{Header: h, Squawk: f[3]}, nil

	case "AL":
		if len(f) != 4 {
			return nil, fmt.Errorf("modes: AL needs 4 fields, got %q", text)
		}
		alt, err := strconv.ParseInt(f[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("modes: bad altitude %q", f[3])
		}
		return AltitudeReply{Header: h, Altitude: alt}, nil

	case "PO":
		if len(f) != 8 {
			return nil, fmt.Errorf("modes: PO needs 8 fields, got %q", text)
		}
		alt, err := strconv.ParseInt(f[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("modes: bad altitude %q", f[3])
		}
		odd, err := parity(f[4])
		if err != nil {
			return nil, err
		}
		rawLat, err := strconv.ParseUint(f[5], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("modes: bad raw latitude %q", f[5])
		}
		rawLon, err := strconv.ParseUint(f[6], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("modes: bad raw longitude %q", f[6])
		}
		var surface bool
		switch f[7] {
		case "A":
		case "S":
			surface = true
		default:
			return nil, fmt.Errorf("modes: bad air/surface flag %q", f[7])
		}
		return PositionFrame{
			Header:   h,
			Altitude: alt,
			Frame: cpr.Frame{
				RawLat:  uint32(rawLat),
				RawLon:  uint32(rawLon),
				Odd:     odd,
				Surface: surface,
				Time:    h.Time,
			},
		}, nil

	case "VE":
		if len(f) != 6 {
			return nil, fmt.Errorf("modes: VE needs 6 fields, got %q", text)
		}
		gs, err1 := strconv.ParseInt(f[3], 10, 64)
		trk, err2 := strconv.ParseInt(f[4], 10, 64)
		vr, err3 := strconv.ParseInt(f[5], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("modes: bad velocity fields in %q", text)
		}
		return Velocity{Header: h, GroundSpeed: gs, Track: trk, VerticalRate: vr}, nil
	}

	return nil, fmt.Errorf("modes: unknown subtype %q", f[0])
}

func parity(s string) (odd bool, err error) {
	switch s {
	case "E":
		return false, nil
	case "O":
		return true, nil
	}
	return false, fmt.Errorf("modes: bad parity %q", s)
}

func validSquawk(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '7' {
			return false
		}
	}
	return true
}

// Line renders a message back into the wire format. The radio never reads
// these; mockradio and the tests do.
func Line(m Message) string {
	ts := m.When().UTC().Format(time.RFC3339Nano)
	switch m := m.(type) {
	case Identification:
		return fmt.Sprintf("ID,%s,%s,%s,%s", m.Icao24, ts, m.Callsign, m.WakeCategory)
	case SquawkReply:
		return fmt.Sprintf("SQ,%s,%s,%s", m.Icao24, ts, m.Squawk)
	case AltitudeReply:
		return fmt.Sprintf("AL,%s,%s,%d", m.Icao24, ts, m.Altitude)
	case PositionFrame:
		p, as := "E", "A"
		if m.Frame.Odd {
			p = "O"
		}
		if m.Frame.Surface {
			as = "S"
		}
		return fmt.Sprintf("PO,%s,%s,%d,%s,%d,%d,%s", m.Icao24, ts, m.Altitude, p,
			m.Frame.RawLat, m.Frame.RawLon, as)
	case Velocity:
		return fmt.Sprintf("VE,%s,%s,%d,%d,%d", m.Icao24, ts, m.GroundSpeed, m.Track, m.VerticalRate)
	}
	return ""
}
