// Package airspace turns track table snapshots into what viewers see: the
// target classification, the emergency flag, and the textual data block that
// gets rendered next to each target. Pure presentation; nothing here writes
// back to the table.
package airspace

import (
	"fmt"
	"strings"

	"github.com/electronfraud/airplane-thing/tracktable"
)

// TargetType drives how the viewer draws the target symbol.
type TargetType string

const (
	// Neither a squawk nor an altitude; a bare primary-ish target.
	TargetNoAltNoSquawk TargetType = "no-alt-no-squawk"
	// Altitude but no squawk yet.
	TargetAltNoSquawk TargetType = "alt-no-squawk"
	// Squawking one of the VFR codes.
	TargetVFR TargetType = "vfr"
	// Squawking a discrete code.
	TargetSquawk TargetType = "squawk"
)

var vfrSquawks = map[string]bool{
	"1200": true, "1201": true, "1202": true,
}

var emergencySquawks = map[string]bool{
	"1276": true, "7400": true, "7500": true,
	"7600": true, "7700": true, "7777": true,
}

// Classify buckets a track by what its transponder has told us.
func Classify(tr tracktable.Track) TargetType {
	switch {
	case !tr.Squawk.Valid() && !tr.Altitude.Valid():
		return TargetNoAltNoSquawk
	case !tr.Squawk.Valid():
		return TargetAltNoSquawk
	case vfrSquawks[tr.Squawk.Value()]:
		return TargetVFR
	}
	return TargetSquawk
}

// IsEmergency reports whether a squawk is one of the special emergency codes.
func IsEmergency(squawk string) bool {
	return emergencySquawks[squawk]
}

// {{{ trendGlyph

const levelBandFPM = 128 // reported vertical rates are multiples of 64

// trendGlyph picks the climb/descend arrow. The vertical rate decides when we
// have one; otherwise we compare reported altitude against the flight plan's
// assigned altitude. Level (or unknown) is blank.
func trendGlyph(tr tracktable.Track) string {
	if tr.VerticalRate.Valid() {
		switch vr := tr.VerticalRate.Value(); {
		case vr > levelBandFPM:
			return "↑"
		case vr < -levelBandFPM:
			return "↓"
		}
		return ""
	}

	if tr.Altitude.Valid() && tr.FlightPlan != nil && tr.FlightPlan.AssignedAltitude > 0 {
		switch delta := tr.FlightPlan.AssignedAltitude - tr.Altitude.Value(); {
		case delta > 300:
			return "↑"
		case delta < -300:
			return "↓"
		}
	}
	return ""
}

// }}}
// {{{ DataBlock

// DataBlock renders the multi-line summary for one target. First line is the
// callsign (falling back to the address), second is altitude in hundreds of
// feet plus trend and ground speed, third is the flight plan when we have one.
func DataBlock(tr tracktable.Track) string {
	lines := []string{}

	if tr.Callsign.Valid() {
		lines = append(lines, tr.Callsign.Value())
	} else if tr.FlightPlan != nil && tr.FlightPlan.Callsign != "" {
		lines = append(lines, strings.ToUpper(tr.FlightPlan.Callsign))
	} else {
		lines = append(lines, string(tr.Icao24))
	}

	line2 := ""
	if tr.Altitude.Valid() {
		line2 = fmt.Sprintf("%03d%s", tr.Altitude.Value()/100, trendGlyph(tr))
	}
	if tr.GroundSpeed.Valid() {
		if line2 != "" {
			line2 += " "
		}
		line2 += fmt.Sprintf("%d", tr.GroundSpeed.Value())
	}
	if line2 != "" {
		lines = append(lines, line2)
	}

	if fp := tr.FlightPlan; fp != nil {
		line3 := strings.TrimSpace(fmt.Sprintf("%s %s", fp.AircraftType, fp.Arrival))
		if line3 != "" {
			lines = append(lines, line3)
		}
	}

	return strings.Join(lines, "\n")
}

// }}}
