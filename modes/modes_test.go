package modes

import (
	"strings"
	"testing"
	"time"
)

var lines = []string{
	"ID,A1B2C3,2016-01-09T18:52:10.1234Z,UAL1593,M",
	"SQ,A1B2C3,2016-01-09T18:52:11Z,3517",
	"AL,A1B2C3,2016-01-09T18:52:12Z,11025",
	"PO,A1B2C3,2016-01-09T18:52:13Z,11025,E,93000,51372,A",
	"PO,A1B2C3,2016-01-09T18:52:14Z,11050,O,74158,50194,A",
	"VE,A1B2C3,2016-01-09T18:52:15Z,320,215,-1088",
}

func TestParseLine(t *testing.T) {
	for _, line := range lines {
		m, err := ParseLine(line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		if string(m.IcaoId()) != "A1B2C3" {
			t.Errorf("ParseLine(%q): icao %q", line, m.IcaoId())
		}
		if m.When().IsZero() {
			t.Errorf("ParseLine(%q): zero timestamp", line)
		}
	}

	m, _ := ParseLine(lines[3])
	pf, ok := m.(PositionFrame)
	if !ok {
		t.Fatalf("PO line parsed as %T", m)
	}
	if pf.Frame.Odd || pf.Frame.Surface {
		t.Errorf("even airborne frame parsed as odd=%v surface=%v", pf.Frame.Odd, pf.Frame.Surface)
	}
	if pf.Frame.RawLat != 93000 || pf.Frame.RawLon != 51372 || pf.Altitude != 11025 {
		t.Errorf("PO fields: %+v", pf)
	}
	if !pf.Frame.Time.Equal(pf.Time) {
		t.Errorf("frame time %s != header time %s", pf.Frame.Time, pf.Time)
	}

	m, _ = ParseLine(lines[5])
	ve := m.(Velocity)
	if ve.GroundSpeed != 320 || ve.Track != 215 || ve.VerticalRate != -1088 {
		t.Errorf("VE fields: %+v", ve)
	}
}

func TestParseLineNormalizes(t *testing.T) {
	m, err := ParseLine("SQ,a1b2c3,2016-01-09T18:52:11-08:00,1200")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if string(m.IcaoId()) != "A1B2C3" {
		t.Errorf("icao not uppercased: %q", m.IcaoId())
	}
	if m.When().Location() != time.UTC {
		t.Errorf("timestamp not normalized to UTC: %s", m.When())
	}
}

func TestParseLineRejects(t *testing.T) {
	bad := []string{
		"",
		"ID,A1B2C3",                                       // short
		"XX,A1B2C3,2016-01-09T18:52:10Z,huh",              // unknown subtype
		"SQ,A1B2,2016-01-09T18:52:11Z,3517",               // short icao
		"SQ,A1B2C3,yesterday,3517",                        // bad timestamp
		"SQ,A1B2C3,2016-01-09T18:52:11Z,3598",             // 8,9 not octal
		"SQ,A1B2C3,2016-01-09T18:52:11Z,517",              // 3-digit squawk
		"AL,A1B2C3,2016-01-09T18:52:12Z,eleven",           // bad altitude
		"PO,A1B2C3,2016-01-09T18:52:13Z,11025,X,93,51,A",  // bad parity
		"PO,A1B2C3,2016-01-09T18:52:13Z,11025,E,93,51,G",  // bad air/surface
		"PO,A1B2C3,2016-01-09T18:52:13Z,11025,E,93,51",    // missing field
		"ID,A1B2C3,2016-01-09T18:52:10Z,,M",               // empty callsign
		"VE,A1B2C3,2016-01-09T18:52:15Z,320,215",          // missing vrate
	}
	for _, line := range bad {
		if _, err := ParseLine(line); err == nil {
			t.Errorf("ParseLine(%q): expected an error", line)
		}
	}
}

func TestLineRoundTrip(t *testing.T) {
	for _, want := range lines {
		m, err := ParseLine(want)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", want, err)
		}
		if got := Line(m); got != want {
			t.Errorf("Line: got %q, want %q", got, want)
		}
	}
}

func TestParseLineTrimsNewline(t *testing.T) {
	m, err := ParseLine(lines[1] + "\r\n")
	if err != nil {
		t.Fatalf("ParseLine with CRLF: %v", err)
	}
	if !strings.HasPrefix(Line(m), "SQ,") {
		t.Errorf("got %q", Line(m))
	}
}
