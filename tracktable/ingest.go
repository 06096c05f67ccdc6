package tracktable

import (
	"errors"
	"strings"
	"sync/atomic"

	fdb "github.com/skypies/flightdb"

	"github.com/electronfraud/airplane-thing/cpr"
	"github.com/electronfraud/airplane-thing/modes"
)

// AddMessage applies one radio message to the table, creating the track if
// this address hasn't been heard before.
//
// Scalar fields are last-write-wins on the message timestamp. Position frames
// are parked by parity until the opposite parity shows up; a successful
// resolve consumes both frames, an ambiguous one leaves them parked (the next
// frame will displace one), an invalid frame is dropped and counted.
func (t *Table) AddMessage(m modes.Message) {
	atomic.AddInt64(&t.nMessages, 1)

	if pf, ok := m.(modes.PositionFrame); ok && !pf.Frame.Valid() {
		atomic.AddInt64(&t.nDecodeErrors, 1)
		return
	}

	t.Upsert(m.IcaoId(), func(tr *Track) {
		switch m := m.(type) {
		case modes.Identification:
			tr.Callsign.maybeSet(strings.ToUpper(m.Callsign), m.Time)
			if m.WakeCategory != "" {
				tr.WakeCategory = m.WakeCategory
			}

		case modes.SquawkReply:
			tr.Squawk.maybeSet(m.Squawk, m.Time)

		case modes.AltitudeReply:
			tr.Altitude.maybeSet(m.Altitude, m.Time)

		case modes.Velocity:
			tr.GroundSpeed.maybeSet(m.GroundSpeed, m.Time)
			tr.Heading.maybeSet(m.Track, m.Time)
			tr.VerticalRate.maybeSet(m.VerticalRate, m.Time)

		case modes.PositionFrame:
			tr.Altitude.maybeSet(m.Altitude, m.Time)
			t.addFrame(tr, m.Frame)
		}

		tr.touch(m.When())
	})
}

// addFrame parks the frame and tries to resolve against the other parity.
// Runs under the shard lock.
func (t *Table) addFrame(tr *Track, f cpr.Frame) {
	if f.Odd {
		tr.PendingOdd = &f
	} else {
		tr.PendingEven = &f
	}
	if tr.PendingEven == nil || tr.PendingOdd == nil {
		return
	}

	pos, at, err := cpr.Resolve(*tr.PendingEven, *tr.PendingOdd, t.Receiver)
	if err != nil {
		if !errors.Is(err, cpr.ErrAmbiguousDecode) {
			// Shouldn't happen: parities and ranges were checked on the way
			// in. Drop the new frame so we don't retry it forever.
			atomic.AddInt64(&t.nDecodeErrors, 1)
			if f.Odd {
				tr.PendingOdd = nil
			} else {
				tr.PendingEven = nil
			}
		}
		// Ambiguous pairs just wait for a better frame.
		return
	}

	if !tr.Position.maybeSet(pos, at) {
		return
	}
	tr.PositionOdd = tr.PendingOdd.Time.After(tr.PendingEven.Time)
	tr.PendingEven, tr.PendingOdd = nil, nil
	atomic.AddInt64(&t.nPositions, 1)

	tp := fdb.Trackpoint{
		DataSource:   "ADSB",
		TimestampUTC: at,
		Latlong:      pos,
		Altitude:     float64(tr.Altitude.Value()),
		GroundSpeed:  float64(tr.GroundSpeed.Value()),
		Heading:      float64(tr.Heading.Value()),
		VerticalRate: float64(tr.VerticalRate.Value()),
		Squawk:       tr.Squawk.Value(),
	}
	tr.Trail = append(tr.Trail, tp)
	if len(tr.Trail) > t.TrailLen {
		tr.Trail = tr.Trail[len(tr.Trail)-t.TrailLen:]
	}
}
