// The analyse program does offline decode of a captured radio log.
//
// go run ./cmd/analyse -f radio.log              (message stats)
// go run ./cmd/analyse -pos -f radio.log         (dump resolved positions)

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/skypies/geo"
	"github.com/skypies/util/histogram"

	"github.com/electronfraud/airplane-thing/modes"
	"github.com/electronfraud/airplane-thing/tracktable"
)

var Log *log.Logger

var fFilename string
var fDumpPos bool
var fLat, fLong float64

func init() {
	flag.StringVar(&fFilename, "f", "", "radio wire-format log to read")
	flag.BoolVar(&fDumpPos, "pos", false, "just dump out resolved positions")
	flag.Float64Var(&fLat, "lat", 0, "receiver latitude (for range checking)")
	flag.Float64Var(&fLong, "long", 0, "receiver longitude")
	flag.Parse()

	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
}

func main() {
	Log.Printf("reading file '%s' (dumpPos=%v)", fFilename, fDumpPos)

	osFile, err := os.Open(fFilename)
	if err != nil {
		Log.Fatal(err)
	}
	defer osFile.Close()

	table := tracktable.New(geo.Latlong{Lat: fLat, Long: fLong})
	table.TrailLen = 1 << 20 // keep everything; we're offline

	// Altitude at the moment each position resolved.
	altHist := histogram.Histogram{NumBuckets: 40, ValMin: 0, ValMax: 40000}

	subtypes := map[string]int{}
	nLines, nBad := 0, 0
	nPositions := int64(0)

	scanner := bufio.NewScanner(osFile)
	for scanner.Scan() {
		nLines++
		m, err := modes.ParseLine(scanner.Text())
		if err != nil {
			nBad++
			continue
		}

		switch m.(type) {
		case modes.Identification:
			subtypes["ID"]++
		case modes.SquawkReply:
			subtypes["SQ"]++
		case modes.AltitudeReply:
			subtypes["AL"]++
		case modes.PositionFrame:
			subtypes["PO"]++
		case modes.Velocity:
			subtypes["VE"]++
		}

		_, isPos := m.(modes.PositionFrame)
		var before tracktable.Track
		if isPos {
			before, _ = table.Get(m.IcaoId())
		}

		table.AddMessage(m)

		if !isPos {
			continue
		}
		after, _ := table.Get(m.IcaoId())
		if !after.Position.Valid() || after.Position.At().Equal(before.Position.At()) {
			continue
		}

		// A fresh resolve.
		nPositions++
		if after.Altitude.Valid() {
			altHist.Add(histogram.ScalarVal(after.Altitude.Value()))
		}

		if fDumpPos {
			pos := after.Position.Value()
			fmt.Printf("\"%.5f,%.5f\"\n", pos.Lat, pos.Long)
		}
	}
	if err := scanner.Err(); err != nil {
		Log.Fatal(err)
	}

	if !fDumpPos {
		Log.Printf("%d lines (%d unparseable)\n", nLines, nBad)
		for _, k := range []string{"ID", "SQ", "AL", "PO", "VE"} {
			Log.Printf("  %s: %6d\n", k, subtypes[k])
		}
		Log.Printf("%d aircraft seen, %d positions resolved\n", table.Len(), nPositions)
		Log.Printf("altitudes at resolve: %s\n", altHist)

		for _, tr := range table.Snapshot() {
			ident := string(tr.Icao24)
			if tr.Callsign.Valid() {
				ident = tr.Callsign.Value()
			}
			Log.Printf("  %-8.8s %4d trail points\n", ident, len(tr.Trail))
		}
	}
}
