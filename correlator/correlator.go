// Package correlator marries SWIM flight plans to radio tracks. A plan that
// names an ICAO address goes straight onto that track; otherwise we try the
// callsign. Plans that match nothing yet are parked for a few minutes, since
// the plan often arrives before the first radio message.
package correlator

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypies/adsb"

	"github.com/electronfraud/airplane-thing/swim"
	"github.com/electronfraud/airplane-thing/tracktable"
)

var Log *log.Logger

func init() {
	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
}

const (
	DefaultGraceWindow = 5 * time.Minute
	DefaultRetryEvery  = 10 * time.Second

	// Hard cap on parked plans; beyond this the oldest are shed.
	maxPending = 2000
)

type pendingPlan struct {
	plan   swim.FlightPlan
	parked time.Time
}

// Correlator applies flight plans to the track table.
type Correlator struct {
	Table       *tracktable.Table
	GraceWindow time.Duration
	RetryEvery  time.Duration

	mu      sync.Mutex
	pending []pendingPlan

	nApplied int64
	nParked  int64
	nExpired int64
}

func New(table *tracktable.Table) *Correlator {
	return &Correlator{
		Table:       table,
		GraceWindow: DefaultGraceWindow,
		RetryEvery:  DefaultRetryEvery,
	}
}

func (c *Correlator) Counts() (applied, parked, expired int64) {
	return atomic.LoadInt64(&c.nApplied), atomic.LoadInt64(&c.nParked),
		atomic.LoadInt64(&c.nExpired)
}

// Apply correlates one plan. Returns whether it landed on a track; a miss
// parks the plan for the retry tick.
func (c *Correlator) Apply(fp swim.FlightPlan) bool {
	if c.tryApply(fp) {
		atomic.AddInt64(&c.nApplied, 1)
		return true
	}
	c.park(fp)
	return false
}

// tryApply is the address-first, callsign-second match. The address match
// wins even when the callsigns disagree; the radio and the plan can lag each
// other on callsign changes, but an address is an airframe.
func (c *Correlator) tryApply(fp swim.FlightPlan) bool {
	icao := fp.Icao24
	if icao == "" {
		var found bool
		if icao, found = c.findByCallsign(fp.Callsign); !found {
			return false
		}
	} else if _, exists := c.Table.Get(icao); !exists {
		return false
	}

	c.Table.Upsert(icao, func(tr *tracktable.Track) {
		// Wholesale replacement; a newer plan for this flight supersedes
		// whatever we had.
		plan := fp
		tr.FlightPlan = &plan
		tr.PlanTime = fp.Received

		// The plan's arrival counts as activity, same as any other field
		// update; it does not make the track immortal.
		if fp.Received.After(tr.LastSeen) {
			tr.LastSeen = fp.Received
		}
	})
	return true
}

func (c *Correlator) findByCallsign(callsign string) (adsb.IcaoId, bool) {
	cs := strings.ToUpper(strings.TrimSpace(callsign))
	if cs == "" {
		return "", false
	}
	return c.Table.FindByCallsign(cs)
}

func (c *Correlator) park(fp swim.FlightPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, pendingPlan{plan: fp, parked: time.Now()})
	atomic.AddInt64(&c.nParked, 1)
	if len(c.pending) > maxPending {
		c.pending = c.pending[len(c.pending)-maxPending:]
	}
}

// retryPending re-attempts every parked plan, dropping those past the grace
// window.
func (c *Correlator) retryPending() {
	c.mu.Lock()
	parked := c.pending
	c.pending = nil
	c.mu.Unlock()

	cutoff := time.Now().Add(-c.GraceWindow)
	still := []pendingPlan{}
	for _, p := range parked {
		if p.parked.Before(cutoff) {
			atomic.AddInt64(&c.nExpired, 1)
			continue
		}
		if c.tryApply(p.plan) {
			atomic.AddInt64(&c.nApplied, 1)
			continue
		}
		still = append(still, p)
	}

	if len(still) > 0 {
		c.mu.Lock()
		// Anything parked while we were unlocked goes behind the survivors.
		c.pending = append(still, c.pending...)
		c.mu.Unlock()
	}
}

// Run consumes plans from the channel and retries parked ones on a tick,
// until ctx is cancelled.
func (c *Correlator) Run(ctx context.Context, plans <-chan swim.FlightPlan) {
	Log.Printf("(correlator starting)\n")

	ticker := time.NewTicker(c.RetryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			Log.Printf(" -- correlator clean exit\n")
			return
		case fp := <-plans:
			c.Apply(fp)
		case <-ticker.C:
			c.retryPending()
		}
	}
}
