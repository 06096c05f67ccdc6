package tracktable

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skypies/adsb"
	"github.com/skypies/geo"

	"github.com/electronfraud/airplane-thing/cpr"
	"github.com/electronfraud/airplane-thing/modes"
)

var t0 = time.Date(2016, 1, 9, 18, 52, 0, 0, time.UTC)

var monterey = geo.Latlong{Lat: 36.69804, Long: -121.86007}

func header(icao string, at time.Time) modes.Header {
	return modes.Header{Icao24: adsb.IcaoId(icao), Time: at}
}

func positionFrame(icao string, pos geo.Latlong, odd bool, at time.Time) modes.PositionFrame {
	rawLat, rawLon := cpr.Encode(pos, odd)
	return modes.PositionFrame{
		Header:   header(icao, at),
		Altitude: 11025,
		Frame:    cpr.Frame{RawLat: rawLat, RawLon: rawLon, Odd: odd, Time: at},
	}
}

func TestSingleFrameNoPosition(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.AddMessage(positionFrame("A1B2C3", monterey, false, t0))

	tr, exists := tab.Get("A1B2C3")
	if !exists {
		t.Fatal("position frame didn't create a track")
	}
	if tr.Position.Valid() {
		t.Errorf("position resolved from a single frame: %v", tr.Position.Value())
	}
	if tr.Altitude.Value() != 11025 {
		t.Errorf("altitude not applied from position frame: %d", tr.Altitude.Value())
	}
}

// The canonical sequence: an even frame, then an odd frame 3s later, resolves;
// an odd frame 40s later instead does not.
func TestFramePairing(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.AddMessage(positionFrame("A1B2C3", monterey, false, t0))
	tab.AddMessage(positionFrame("A1B2C3", monterey, true, t0.Add(3*time.Second)))

	tr, _ := tab.Get("A1B2C3")
	if !tr.Position.Valid() {
		t.Fatal("even+odd 3s apart didn't resolve")
	}
	pos := tr.Position.Value()
	if pos.DistNM(monterey) > 0.1 {
		t.Errorf("resolved %v, want near %v", pos, monterey)
	}
	if !tr.Position.At().Equal(t0.Add(3 * time.Second)) {
		t.Errorf("position timestamped %s, want the newer frame's time", tr.Position.At())
	}
	if !tr.PositionOdd {
		t.Errorf("newer frame was odd, PositionOdd=false")
	}
	if len(tr.Trail) != 1 {
		t.Errorf("trail has %d points, want 1", len(tr.Trail))
	}

	// Stale pair: the position must not move.
	tab2 := New(geo.Latlong{})
	tab2.AddMessage(positionFrame("A1B2C3", monterey, false, t0))
	tab2.AddMessage(positionFrame("A1B2C3", monterey, true, t0.Add(40*time.Second)))

	tr2, _ := tab2.Get("A1B2C3")
	if tr2.Position.Valid() {
		t.Errorf("even+odd 40s apart resolved to %v", tr2.Position.Value())
	}
	if tab2.Stats().DecodeErrors != 0 {
		t.Errorf("ambiguous pair counted as decode error")
	}
}

func TestInvalidFrameCounted(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.AddMessage(modes.PositionFrame{
		Header: header("A1B2C3", t0),
		Frame:  cpr.Frame{RawLat: cpr.MaxRaw, Odd: false, Time: t0},
	})

	if _, exists := tab.Get("A1B2C3"); exists {
		t.Errorf("invalid frame created a track")
	}
	if tab.Stats().DecodeErrors != 1 {
		t.Errorf("decode errors = %d, want 1", tab.Stats().DecodeErrors)
	}
}

func TestLastWriteWins(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.AddMessage(modes.AltitudeReply{Header: header("A1B2C3", t0.Add(5*time.Second)), Altitude: 12000})
	// Arrives later, but generated earlier; must not win.
	tab.AddMessage(modes.AltitudeReply{Header: header("A1B2C3", t0), Altitude: 11000})

	tr, _ := tab.Get("A1B2C3")
	if tr.Altitude.Value() != 12000 {
		t.Errorf("altitude %d, want 12000 (late message rolled it back)", tr.Altitude.Value())
	}
	if !tr.LastSeen.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("LastSeen %s, want max of message times", tr.LastSeen)
	}
}

func TestFieldFusion(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.AddMessage(modes.Identification{Header: header("A1B2C3", t0), Callsign: "ual1593", WakeCategory: "M"})
	tab.AddMessage(modes.SquawkReply{Header: header("A1B2C3", t0.Add(time.Second)), Squawk: "3517"})
	tab.AddMessage(modes.Velocity{Header: header("A1B2C3", t0.Add(2*time.Second)),
		GroundSpeed: 320, Track: 215, VerticalRate: -1088})

	tr, _ := tab.Get("A1B2C3")
	if tr.Callsign.Value() != "UAL1593" {
		t.Errorf("callsign %q, want UAL1593 (uppercased)", tr.Callsign.Value())
	}
	if tr.Squawk.Value() != "3517" || tr.GroundSpeed.Value() != 320 ||
		tr.Heading.Value() != 215 || tr.VerticalRate.Value() != -1088 {
		t.Errorf("fused fields: %s", tr)
	}
}

// An entry created by a lone squawk reply must still get evicted.
func TestSquawkOnlyEviction(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.StaleAfter = 60 * time.Second

	tab.AddMessage(modes.SquawkReply{Header: header("A1B2C3", time.Now().Add(-2 * time.Minute)), Squawk: "1200"})
	tab.AddMessage(modes.SquawkReply{Header: header("DDEE01", time.Now()), Squawk: "1200"})

	if n := tab.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if _, exists := tab.Get("A1B2C3"); exists {
		t.Errorf("stale squawk-only track survived the sweep")
	}
	if _, exists := tab.Get("DDEE01"); !exists {
		t.Errorf("fresh track evicted")
	}
}

func TestTrailBounded(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.TrailLen = 3

	for i := 0; i < 10; i++ {
		at := t0.Add(time.Duration(i) * 20 * time.Second)
		pos := geo.Latlong{Lat: monterey.Lat + float64(i)*0.01, Long: monterey.Long}
		tab.AddMessage(positionFrame("A1B2C3", pos, false, at))
		tab.AddMessage(positionFrame("A1B2C3", pos, true, at.Add(time.Second)))
	}

	tr, _ := tab.Get("A1B2C3")
	if len(tr.Trail) != 3 {
		t.Fatalf("trail has %d points, want 3", len(tr.Trail))
	}
	for i := 1; i < len(tr.Trail); i++ {
		if !tr.Trail[i].TimestampUTC.After(tr.Trail[i-1].TimestampUTC) {
			t.Errorf("trail out of order at %d", i)
		}
	}
}

func TestFindByCallsign(t *testing.T) {
	tab := New(geo.Latlong{})
	tab.AddMessage(modes.Identification{Header: header("A1B2C3", t0), Callsign: "UAL1593", WakeCategory: "M"})

	if icao, ok := tab.FindByCallsign("UAL1593"); !ok || icao != "A1B2C3" {
		t.Errorf("FindByCallsign: %q, %v", icao, ok)
	}
	if _, ok := tab.FindByCallsign("SWA202"); ok {
		t.Errorf("found a callsign nobody has")
	}
}

func TestConcurrentUpserts(t *testing.T) {
	tab := New(geo.Latlong{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				icao := adsb.IcaoId(fmt.Sprintf("AA00%02X", i%32))
				tab.AddMessage(modes.AltitudeReply{
					Header:   header(string(icao), time.Now()),
					Altitude: int64(g*1000 + i),
				})
				tab.Snapshot()
			}
		}(g)
	}
	wg.Wait()

	if n := tab.Len(); n != 32 {
		t.Errorf("table has %d tracks, want 32", n)
	}
	for _, tr := range tab.Snapshot() {
		if !tr.Altitude.Valid() {
			t.Errorf("%s: altitude never set", tr.Icao24)
		}
	}
}
