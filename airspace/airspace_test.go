// go test -v github.com/electronfraud/airplane-thing/airspace
package airspace

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/skypies/adsb"
	"github.com/skypies/geo"

	"github.com/electronfraud/airplane-thing/cpr"
	"github.com/electronfraud/airplane-thing/modes"
	"github.com/electronfraud/airplane-thing/swim"
	"github.com/electronfraud/airplane-thing/tracktable"
)

var t0 = time.Date(2016, 1, 9, 18, 52, 0, 0, time.UTC)

// trackWith builds a Track via the table, since datum internals aren't
// constructible directly.
func trackWith(t *testing.T, msgs ...modes.Message) tracktable.Track {
	t.Helper()
	tab := tracktable.New(geo.Latlong{})
	for _, m := range msgs {
		tab.AddMessage(m)
	}
	tr, exists := tab.Get(msgs[0].IcaoId())
	if !exists {
		t.Fatal("track not created")
	}
	return tr
}

func header(at time.Time) modes.Header {
	return modes.Header{Icao24: adsb.IcaoId("A1B2C3"), Time: at}
}

func TestClassify(t *testing.T) {
	bare := trackWith(t, modes.Velocity{Header: header(t0), GroundSpeed: 100, Track: 90})
	if got := Classify(bare); got != TargetNoAltNoSquawk {
		t.Errorf("no squawk, no altitude: %q", got)
	}

	altOnly := trackWith(t, modes.AltitudeReply{Header: header(t0), Altitude: 11000})
	if got := Classify(altOnly); got != TargetAltNoSquawk {
		t.Errorf("altitude only: %q", got)
	}

	for _, sq := range []string{"1200", "1201", "1202"} {
		vfr := trackWith(t, modes.SquawkReply{Header: header(t0), Squawk: sq})
		if got := Classify(vfr); got != TargetVFR {
			t.Errorf("squawk %s: %q, want vfr", sq, got)
		}
	}

	discrete := trackWith(t, modes.SquawkReply{Header: header(t0), Squawk: "3517"})
	if got := Classify(discrete); got != TargetSquawk {
		t.Errorf("discrete squawk: %q", got)
	}
}

func TestIsEmergency(t *testing.T) {
	for _, sq := range []string{"1276", "7400", "7500", "7600", "7700", "7777"} {
		if !IsEmergency(sq) {
			t.Errorf("squawk %s should be an emergency", sq)
		}
	}
	// Close neighbors are not.
	for _, sq := range []string{"1200", "3517", "7501", "7701", "1277", "0000"} {
		if IsEmergency(sq) {
			t.Errorf("squawk %s should not be an emergency", sq)
		}
	}
}

func TestDataBlock(t *testing.T) {
	tr := trackWith(t,
		modes.Identification{Header: header(t0), Callsign: "UAL1593", WakeCategory: "M"},
		modes.AltitudeReply{Header: header(t0.Add(time.Second)), Altitude: 11025},
		modes.Velocity{Header: header(t0.Add(2 * time.Second)),
			GroundSpeed: 320, Track: 215, VerticalRate: -1088})
	tr.FlightPlan = &swim.FlightPlan{AircraftType: "B738", Arrival: "KLAX"}

	lines := strings.Split(DataBlock(tr), "\n")
	if len(lines) != 3 {
		t.Fatalf("data block has %d lines: %q", len(lines), lines)
	}
	if lines[0] != "UAL1593" {
		t.Errorf("line 1: %q", lines[0])
	}
	if lines[1] != "110↓ 320" {
		t.Errorf("line 2: %q, want altitude-hundreds, descent arrow, speed", lines[1])
	}
	if lines[2] != "B738 KLAX" {
		t.Errorf("line 3: %q", lines[2])
	}
}

func TestDataBlockSparse(t *testing.T) {
	// Nothing but a squawk; block is just the address.
	tr := trackWith(t, modes.SquawkReply{Header: header(t0), Squawk: "3517"})
	if got := DataBlock(tr); got != "A1B2C3" {
		t.Errorf("sparse block: %q", got)
	}
}

func TestTrendFromPlanDelta(t *testing.T) {
	// No vertical rate; well below the assigned altitude means climbing.
	tr := trackWith(t, modes.AltitudeReply{Header: header(t0), Altitude: 8000})
	tr.FlightPlan = &swim.FlightPlan{AssignedAltitude: 11000}
	if got := trendGlyph(tr); got != "↑" {
		t.Errorf("below assigned: %q, want climb arrow", got)
	}

	tr.FlightPlan = &swim.FlightPlan{AssignedAltitude: 8100}
	if got := trendGlyph(tr); got != "" {
		t.Errorf("near assigned: %q, want blank", got)
	}
}

func TestBuildSnapshot(t *testing.T) {
	tab := tracktable.New(geo.Latlong{})

	// One positioned aircraft.
	pos := geo.Latlong{Lat: 36.69804, Long: -121.86007}
	evLat, evLon := cpr.Encode(pos, false)
	odLat, odLon := cpr.Encode(pos, true)
	tab.AddMessage(modes.PositionFrame{Header: header(t0), Altitude: 11025,
		Frame: cpr.Frame{RawLat: evLat, RawLon: evLon, Time: t0}})
	tab.AddMessage(modes.PositionFrame{Header: header(t0.Add(3 * time.Second)), Altitude: 11025,
		Frame: cpr.Frame{RawLat: odLat, RawLon: odLon, Odd: true, Time: t0.Add(3 * time.Second)}})

	// One with no position yet; must not appear.
	tab.AddMessage(modes.SquawkReply{
		Header: modes.Header{Icao24: adsb.IcaoId("DDEE01"), Time: t0}, Squawk: "1200"})

	snap := BuildSnapshot(tab.Snapshot())
	if len(snap.Aircraft) != 1 {
		t.Fatalf("snapshot has %d aircraft, want 1", len(snap.Aircraft))
	}

	ac := snap.Aircraft[0]
	if ac.IcaoAddress != "A1B2C3" {
		t.Errorf("address %q", ac.IcaoAddress)
	}
	if ac.Altitude == nil || *ac.Altitude != 11025 {
		t.Errorf("altitude: %v", ac.Altitude)
	}
	if ac.GroundSpeed != nil {
		t.Errorf("ground speed should be absent, got %v", *ac.GroundSpeed)
	}
	if len(snap.Breadcrumbs) != 1 || len(snap.Breadcrumbs[0].Positions) != 1 {
		t.Errorf("breadcrumbs: %+v", snap.Breadcrumbs)
	}

	// The payload must round-trip as JSON with the documented keys.
	b, err := snap.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("payload isn't JSON: %v", err)
	}
	for _, key := range []string{"aircraft", "breadcrumbs"} {
		if _, exists := decoded[key]; !exists {
			t.Errorf("payload missing %q key", key)
		}
	}
}
