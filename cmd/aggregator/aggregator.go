// The aggregator program is the whole engine: it reads decoded Mode S
// messages from the radio process, resolves CPR position pairs, fuses
// everything into a live track table, correlates FAA SWIM flight plans onto
// the tracks, and pushes airspace snapshots to websocket viewers.
//
// All configuration is environment variables, read once at startup:
//
//	RADIO_ADDR          host:port of the radio's line output
//	RADIO_HOST          host alone; port defaults to 30003
//	SWIM_PROJECT        Google Cloud project with the SWIM pubsub feed
//	SWIM_SUBSCRIPTION   subscription carrying FIXM documents
//	LISTEN_ADDR         viewer-facing HTTP listener (default :8080)
//	RECEIVER_LAT/LONG   nominal antenna position, for CPR sanity checks
//	STALE_AFTER         evict tracks quiet this long (default 60s)
//	SWEEP_INTERVAL      how often to look for stale tracks (default 5s)
//	BROADCAST_INTERVAL  snapshot push interval (default 1s)
//	TRAIL_LEN           breadcrumb positions kept per track (default 10)
//
// Run it locally against mockradio:
//	$ go run ./cmd/mockradio &
//	$ RADIO_ADDR=localhost:30003 go run ./cmd/aggregator

package main

// {{{ import()

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"time"

	"github.com/skypies/geo"
	"github.com/skypies/util/histogram"
	"github.com/skypies/util/metrics"

	"github.com/electronfraud/airplane-thing/broadcast"
	"github.com/electronfraud/airplane-thing/correlator"
	"github.com/electronfraud/airplane-thing/radio"
	"github.com/electronfraud/airplane-thing/swim"
	"github.com/electronfraud/airplane-thing/tracktable"
)

// }}}
// {{{ var()

var (
	Log *log.Logger

	tGlobalStart time.Time

	done = make(chan struct{}) // Gets closed when everything is done
)

// }}}

// {{{ config

type Config struct {
	RadioAddr         string
	SwimProject       string
	SwimSubscription  string
	ListenAddr        string
	Receiver          geo.Latlong
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	BroadcastInterval time.Duration
	TrailLen          int
}

func envStr(name, dflt string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return dflt
}

func envDur(name string, dflt time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return dflt
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		Log.Fatalf("%s=%q: %v", name, v, err)
	}
	return d
}

func envInt(name string, dflt int) int {
	v := os.Getenv(name)
	if v == "" {
		return dflt
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		Log.Fatalf("%s=%q: %v", name, v, err)
	}
	return n
}

func envFloat(name string, dflt float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return dflt
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		Log.Fatalf("%s=%q: %v", name, v, err)
	}
	return f
}

func configFromEnv() Config {
	c := Config{
		RadioAddr:         envStr("RADIO_ADDR", ""),
		SwimProject:       envStr("SWIM_PROJECT", ""),
		SwimSubscription:  envStr("SWIM_SUBSCRIPTION", "swim-fixm"),
		ListenAddr:        envStr("LISTEN_ADDR", ":8080"),
		StaleAfter:        envDur("STALE_AFTER", tracktable.DefaultStaleAfter),
		SweepInterval:     envDur("SWEEP_INTERVAL", 5*time.Second),
		BroadcastInterval: envDur("BROADCAST_INTERVAL", broadcast.DefaultInterval),
		TrailLen:          envInt("TRAIL_LEN", tracktable.DefaultTrailLen),
		Receiver: geo.Latlong{
			Lat:  envFloat("RECEIVER_LAT", 0),
			Long: envFloat("RECEIVER_LONG", 0),
		},
	}
	if c.RadioAddr == "" {
		if host := os.Getenv("RADIO_HOST"); host != "" {
			c.RadioAddr = host + ":30003"
		}
	}
	if c.RadioAddr == "" {
		Log.Fatal("need RADIO_ADDR (or RADIO_HOST) in the environment")
	}
	return c
}

// }}}
// {{{ weAreDone

func weAreDone() bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func addSIGINTHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func(sig <-chan os.Signal) {
		<-sig
		Log.Printf("(SIGINT received)\n")
		close(done)
	}(c)
}

// }}}
// {{{ trackVitals

// These two channels are accessible from all goroutines
var vitalsRequestChan = make(chan VitalsRequest, 40)
var vitalsResponseChan = make(chan VitalsResponse, 5) // Only used for stats output

type VitalsRequest struct {
	Name string // _blah
	I    int64
}

type VitalsResponse struct {
	Str string
}

func memStats() string {
	ms := runtime.MemStats{}
	runtime.ReadMemStats(&ms)
	return fmt.Sprintf("go:% 5d; heap:% 13d, % 13d; stack:% 13d",
		runtime.NumGoroutine(), ms.HeapObjects, ms.HeapAlloc, ms.StackInuse)
}

// trackVitals owns the stats. It samples the pipeline's counters every few
// seconds and answers the status page via the request/response channels.
func trackVitals(table *tracktable.Table, rdr *radio.Reader, sub *swim.Subscriber,
	corr *correlator.Correlator) {

	startupTime := time.Now().Round(time.Second)
	m := metrics.NewMetrics()
	lastLines := int64(0)

	vitals2str := func() string {
		stats := table.Stats()
		lines, badLines := rdr.Counts()
		docs, malformed := sub.Counts()
		applied, parked, expired := corr.Counts()

		// Where is everybody? Altitude spread of the current picture.
		altHist := histogram.Histogram{NumBuckets: 40, ValMin: 0, ValMax: 40000}
		for _, tr := range table.Snapshot() {
			if tr.Altitude.Valid() {
				altHist.Add(histogram.ScalarVal(tr.Altitude.Value()))
			}
		}

		return fmt.Sprintf(
			"* Uptime: %s (started %s)\n"+
				"* Radio: %d lines (%d unparseable)\n"+
				"* Table: %d tracks; %d messages, %d decode errors, %d positions, %d evicted\n"+
				"* SWIM: %d documents (%d malformed); plans: %d applied, %d parked, %d expired\n"+
				"* Altitudes: %s\n"+
				"\n"+
				"* Metrics:-\n%s\n",
			time.Second*time.Duration(int(time.Since(startupTime).Seconds())), startupTime,
			lines, badLines,
			table.Len(), stats.Messages, stats.DecodeErrors, stats.Positions, stats.Evicted,
			docs, malformed, applied, parked, expired,
			altHist,
			m.String())
	}

	tLastDump := time.Now()
	tLastCounts := time.Now()

	for {
		if weAreDone() {
			break
		}

		if time.Since(tLastDump) > time.Minute {
			Log.Printf("vital dump:-\n%s", vitals2str())
			tLastDump = time.Now()
		}
		if time.Since(tLastCounts) > 5*time.Second {
			lines, _ := rdr.Counts()
			m.RecordValue("RadioLinesPer5s", lines-lastLines)
			lastLines = lines
			m.RecordValue("TableSize", int64(table.Len()))
			Log.Printf("* memstats  %s\n", memStats())
			tLastCounts = time.Now()
		}

		select {
		case <-time.After(time.Second):
			// break

		case req := <-vitalsRequestChan:
			if req.Name == "_output" {
				vitalsResponseChan <- VitalsResponse{Str: vitals2str()}
			} else if req.Name != "" {
				m.RecordValue(req.Name, req.I)
			}
		}
	}

	Log.Printf(" -- trackVitals clean exit\n")
}

// }}}

// {{{ init

func init() {
	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)

	tGlobalStart = time.Now()

	addSIGINTHandler()
}

// }}}
// {{{ main

func main() {
	cfg := configFromEnv()

	table := tracktable.New(cfg.Receiver)
	table.StaleAfter = cfg.StaleAfter
	table.TrailLen = cfg.TrailLen

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()

	table.StartSweeper(ctx, cfg.SweepInterval)

	rdr := radio.NewReader(cfg.RadioAddr, table)
	go rdr.Run(ctx)

	plans := make(chan swim.FlightPlan, 100)
	sub := &swim.Subscriber{
		Project:      cfg.SwimProject,
		Subscription: cfg.SwimSubscription,
		Plans:        plans,
	}
	if cfg.SwimProject != "" {
		go sub.Run(ctx)
	} else {
		Log.Printf("(no SWIM_PROJECT defined; running without flight plans)\n")
	}

	corr := correlator.New(table)
	go corr.Run(ctx, plans)

	go trackVitals(table, rdr, sub, corr)

	srv := broadcast.NewServer(table)
	srv.Interval = cfg.BroadcastInterval
	srv.VitalsText = func() string {
		vitalsRequestChan <- VitalsRequest{Name: "_output"}
		vr := <-vitalsResponseChan
		return vr.Str
	}
	go srv.Run(ctx)

	// Blocks until shutdown; errors out only if the listener can't bind.
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		Log.Fatal(err)
	}

	Log.Printf("Final clean shutdown (after %s)\n", time.Since(tGlobalStart))
}

// }}}
