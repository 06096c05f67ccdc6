// The mockradio program impersonates the radio process for local development:
// it listens on the radio port and writes decoded-message lines, either
// synthesized or replayed from a captured log.
//
// go run ./cmd/mockradio -p 30003                    (synthesized traffic)
// go run ./cmd/mockradio -replay=radio.log           (replay, rewriting timestamps)

package main

import (
	"flag"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/skypies/adsb"
	"github.com/skypies/geo"

	"github.com/electronfraud/airplane-thing/cpr"
	"github.com/electronfraud/airplane-thing/modes"
)

var port int
var replayFiles []string
var icaoWhitelist = map[string]int{}

func init() {
	flag.IntVar(&port, "p", 30003, "which port to listen on")

	replay := ""
	flag.StringVar(&replay, "replay", "", "comma-sep list of files to replay")

	wlist := ""
	flag.StringVar(&wlist, "ids", "", "Icao IDs to replay (comma-sep), blank for all")

	flag.Parse()

	if replay != "" {
		replayFiles = strings.Split(replay, ",")
	}
	for _, id := range strings.Split(wlist, ",") {
		if id != "" {
			icaoWhitelist[id] = 1
		}
	}
}

func main() {
	if len(replayFiles) > 0 {
		replayData(replayFiles, icaoWhitelist)
	} else {
		generateData()
	}
}

// {{{ plane

type plane struct {
	icao     adsb.IcaoId
	callsign string
	squawk   string
	pos      geo.Latlong
	alt      int64
	gs       int64
	track    int64
	vr       int64
	odd      bool // parity of the next position frame
}

// step moves the plane a tick's worth along its track. Close enough for mock
// traffic; nobody is navigating by this.
func (p *plane) step() {
	p.pos.Lat += 0.002
	p.pos.Long += 0.001
	p.alt += p.vr / 60
}

// positionLine emits the next CPR frame, alternating parity.
func (p *plane) positionLine(now time.Time) string {
	rawLat, rawLon := cpr.Encode(p.pos, p.odd)
	m := modes.PositionFrame{
		Header:   modes.Header{Icao24: p.icao, Time: now},
		Altitude: p.alt,
		Frame:    cpr.Frame{RawLat: rawLat, RawLon: rawLon, Odd: p.odd, Time: now},
	}
	p.odd = !p.odd
	return modes.Line(m)
}

// }}}
// {{{ generateData

func generateData() {
	fmt.Printf("(launching mock radio on localhost:%d)\n", port)

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		panic(err)
	}

outerLoop:
	for {
		conn, _ := ln.Accept()
		fmt.Printf("(connection started)\n")

		planes := []*plane{
			{icao: "A81BD0", callsign: "ABW123", squawk: "3517",
				pos: geo.Latlong{Lat: 36.60, Long: -122.00}, alt: 12000, gs: 300, track: 30, vr: 1280},
			{icao: "A1B2C3", callsign: "UAL1593", squawk: "3512",
				pos: geo.Latlong{Lat: 36.90, Long: -121.80}, alt: 36000, gs: 450, track: 150, vr: 0},
			{icao: "AB1234", callsign: "N8501V", squawk: "1200",
				pos: geo.Latlong{Lat: 36.70, Long: -121.90}, alt: 4500, gs: 110, track: 270, vr: -640},
		}

		// Prime the pump: identity and squawk for everyone.
		now := time.Now().UTC()
		for _, p := range planes {
			lines := modes.Line(modes.Identification{
				Header: modes.Header{Icao24: p.icao, Time: now}, Callsign: p.callsign, WakeCategory: "M"}) +
				"\n" + modes.Line(modes.SquawkReply{
				Header: modes.Header{Icao24: p.icao, Time: now}, Squawk: p.squawk}) + "\n"
			if _, err := conn.Write([]byte(lines)); err != nil {
				continue outerLoop
			}
		}

		for {
			now := time.Now().UTC()
			for _, p := range planes {
				p.step()
				lines := modes.Line(modes.Velocity{
					Header: modes.Header{Icao24: p.icao, Time: now},
					GroundSpeed: p.gs, Track: p.track, VerticalRate: p.vr}) + "\n" +
					p.positionLine(now) + "\n"
				if _, err := conn.Write([]byte(lines)); err != nil {
					fmt.Printf("(connection ended)\n")
					continue outerLoop
				}
			}
			time.Sleep(time.Millisecond * 1000)
		}
	}
}

// }}}
