// Package tracktable maintains the live picture of the sky: one Track per
// ICAO address, fused from radio messages and flight plan data, decaying away
// when an aircraft goes quiet.
//
// The table is sharded on the address so that the radio reader, the
// correlator, the staleness sweeper and the snapshotter can all hammer it
// concurrently without queueing up behind one lock.
package tracktable

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypies/adsb"
	fdb "github.com/skypies/flightdb"
	"github.com/skypies/geo"

	"github.com/electronfraud/airplane-thing/cpr"
	"github.com/electronfraud/airplane-thing/swim"
)

var Log *log.Logger

func init() {
	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
}

const (
	numShards = 16

	DefaultStaleAfter = 60 * time.Second
	DefaultTrailLen   = 10
)

// Datum is a field value plus the timestamp of the message that set it.
// Updates are last-write-wins on that timestamp, so late-arriving radio lines
// can't roll a field backwards.
type Datum[T any] struct {
	value T
	at    time.Time
}

func (d Datum[T]) Value() T      { return d.value }
func (d Datum[T]) At() time.Time { return d.at }
func (d Datum[T]) Valid() bool   { return !d.at.IsZero() }

func (d *Datum[T]) maybeSet(v T, at time.Time) bool {
	if at.Before(d.at) {
		return false
	}
	d.value, d.at = v, at
	return true
}

// Track is everything we currently believe about one airframe.
type Track struct {
	Icao24 adsb.IcaoId

	Callsign     Datum[string]
	WakeCategory string
	Squawk       Datum[string]
	Altitude     Datum[int64] // feet
	GroundSpeed  Datum[int64] // knots
	Heading      Datum[int64] // direction of travel, not direction pointed in
	VerticalRate Datum[int64] // feet/minute

	Position    Datum[geo.Latlong]
	PositionOdd bool // parity of the newer frame behind Position

	// Unconsumed position frames, one slot per parity; each new frame of a
	// parity displaces the old one.
	PendingEven *cpr.Frame
	PendingOdd  *cpr.Frame

	// Replaced wholesale by the correlator, never merged.
	FlightPlan *swim.FlightPlan
	PlanTime   time.Time

	// Recent resolved positions, oldest first.
	Trail fdb.Track

	// Max over every update this track has received; drives eviction.
	LastSeen time.Time
}

func (tr Track)String() string {
	return fmt.Sprintf("%7.7s/%s (lastSeen:%5.1fs) : %6dft, %4dknots",
		tr.Callsign.Value(), tr.Icao24,
		time.Since(tr.LastSeen).Seconds(),
		tr.Altitude.Value(), tr.GroundSpeed.Value())
}

func (tr *Track) touch(t time.Time) {
	if t.After(tr.LastSeen) {
		tr.LastSeen = t
	}
}

// copyOut makes a copy safe to hand outside the shard lock. The trail slice
// is duplicated; the flight plan pointer is shared, which is fine because
// plans are only ever replaced, never written through.
func (tr *Track) copyOut() Track {
	out := *tr
	out.PendingEven, out.PendingOdd = nil, nil
	if len(tr.Trail) > 0 {
		out.Trail = make(fdb.Track, len(tr.Trail))
		copy(out.Trail, tr.Trail)
	}
	return out
}

type shard struct {
	sync.Mutex
	tracks map[adsb.IcaoId]*Track
}

// Table is the concurrency-safe store. Zero value isn't usable; call New.
type Table struct {
	shards [numShards]*shard

	// Nominal receiver location, for the CPR range sanity check.
	Receiver   geo.Latlong
	StaleAfter time.Duration
	TrailLen   int

	nMessages     int64
	nPositions    int64
	nDecodeErrors int64
	nEvicted      int64
}

func New(receiver geo.Latlong) *Table {
	t := Table{
		Receiver:   receiver,
		StaleAfter: DefaultStaleAfter,
		TrailLen:   DefaultTrailLen,
	}
	for i := range t.shards {
		t.shards[i] = &shard{tracks: map[adsb.IcaoId]*Track{}}
	}
	return &t
}

func (t *Table) shardFor(icao adsb.IcaoId) *shard {
	h := fnv.New32a()
	h.Write([]byte(icao))
	return t.shards[h.Sum32()%numShards]
}

// Upsert runs fn on the track for icao, creating it first if needed. fn runs
// under the shard lock and must not call back into the table.
func (t *Table) Upsert(icao adsb.IcaoId, fn func(*Track)) {
	s := t.shardFor(icao)
	s.Lock()
	defer s.Unlock()

	tr, exists := s.tracks[icao]
	if !exists {
		tr = &Track{Icao24: icao}
		s.tracks[icao] = tr
	}
	fn(tr)
}

// Get returns a copy of the track for icao, if present.
func (t *Table) Get(icao adsb.IcaoId) (Track, bool) {
	s := t.shardFor(icao)
	s.Lock()
	defer s.Unlock()

	if tr, exists := s.tracks[icao]; exists {
		return tr.copyOut(), true
	}
	return Track{}, false
}

// FindByCallsign scans for a track with this callsign. Callsigns are stored
// upper-cased, so pass an upper-cased argument. Linear; the table holds
// hundreds of entries at the very most.
func (t *Table) FindByCallsign(callsign string) (adsb.IcaoId, bool) {
	for _, s := range t.shards {
		s.Lock()
		for icao, tr := range s.tracks {
			if tr.Callsign.Valid() && tr.Callsign.Value() == callsign {
				s.Unlock()
				return icao, true
			}
		}
		s.Unlock()
	}
	return "", false
}

func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.Lock()
		n += len(s.tracks)
		s.Unlock()
	}
	return n
}

// Snapshot copies out every track, sorted by address. Each shard is locked
// only long enough to copy its entries, so a snapshot observes each track
// atomically but not the table as a whole; that's fine for display.
func (t *Table) Snapshot() []Track {
	out := []Track{}
	for _, s := range t.shards {
		s.Lock()
		for _, tr := range s.tracks {
			out = append(out, tr.copyOut())
		}
		s.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Icao24 < out[j].Icao24 })
	return out
}

// Sweep evicts every track not heard from within StaleAfter. Eviction is the
// only way entries leave the table.
func (t *Table) Sweep() int {
	cutoff := time.Now().Add(-t.StaleAfter)

	n := 0
	for _, s := range t.shards {
		s.Lock()
		for icao, tr := range s.tracks {
			if tr.LastSeen.Before(cutoff) {
				delete(s.tracks, icao)
				n++
			}
		}
		s.Unlock()
	}

	atomic.AddInt64(&t.nEvicted, int64(n))
	return n
}

// StartSweeper runs Sweep on a ticker until ctx is cancelled.
func (t *Table) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				Log.Printf(" -- tracktable sweeper clean exit\n")
				return
			case <-ticker.C:
				if n := t.Sweep(); n > 0 {
					Log.Printf("swept %d stale tracks (%d remain)\n", n, t.Len())
				}
			}
		}
	}()
}

type Stats struct {
	Messages, Positions, DecodeErrors, Evicted int64
}

func (t *Table) Stats() Stats {
	return Stats{
		Messages:     atomic.LoadInt64(&t.nMessages),
		Positions:    atomic.LoadInt64(&t.nPositions),
		DecodeErrors: atomic.LoadInt64(&t.nDecodeErrors),
		Evicted:      atomic.LoadInt64(&t.nEvicted),
	}
}
