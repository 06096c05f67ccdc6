// Package broadcast is the viewer-facing side: a websocket endpoint pushing
// airspace snapshots on a fixed tick, a one-shot JSON endpoint, and a plain
// text status page. Every viewer gets the same bytes; a viewer that can't
// keep up gets dropped, not waited for.
package broadcast

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/electronfraud/airplane-thing/airspace"
	"github.com/electronfraud/airplane-thing/tracktable"
)

var Log *log.Logger

func init() {
	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
}

const DefaultInterval = time.Second

// Server owns the viewer connections. Construct with NewServer.
type Server struct {
	Table    *tracktable.Table
	Interval time.Duration

	// Extra lines for the status page; nil is fine.
	VitalsText func() string

	viewers    map[*viewer]bool
	register   chan *viewer
	unregister chan *viewer

	nDropped int64
}

func NewServer(table *tracktable.Table) *Server {
	return &Server{
		Table:      table,
		Interval:   DefaultInterval,
		viewers:    map[*viewer]bool{},
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
	}
}

func (s *Server) snapshotBytes() ([]byte, error) {
	return airspace.BuildSnapshot(s.Table.Snapshot()).Marshal()
}

// Run owns the viewer set: registrations, departures, and the broadcast tick
// all land here, so no lock is needed around the map. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for v := range s.viewers {
				v.close()
			}
			Log.Printf(" -- broadcast hub clean exit\n")
			return

		case v := <-s.register:
			// The newcomer gets the current picture straight away.
			if b, err := s.snapshotBytes(); err == nil {
				v.trySend(b)
			}
			s.viewers[v] = true
			Log.Printf("viewer %s connected (%d total)\n", v.remoteAddr, len(s.viewers))

		case v := <-s.unregister:
			if _, exists := s.viewers[v]; exists {
				delete(s.viewers, v)
				v.close()
				Log.Printf("viewer %s disconnected (%d total)\n", v.remoteAddr, len(s.viewers))
			}

		case <-ticker.C:
			if len(s.viewers) == 0 {
				continue
			}
			b, err := s.snapshotBytes()
			if err != nil {
				Log.Printf("snapshot marshal: %v", err)
				continue
			}
			for v := range s.viewers {
				if !v.trySend(b) {
					// Buffer full; this viewer is too slow to live.
					delete(s.viewers, v)
					v.close()
					atomic.AddInt64(&s.nDropped, 1)
					Log.Printf("viewer %s dropped as too slow\n", v.remoteAddr)
				}
			}
		}
	}
}

// ListenAndServe binds the HTTP listener and serves until ctx dies. A bind
// failure is returned; it's the only error the process should treat as fatal.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/airspace.json", s.handleJSON)
	mux.HandleFunc("/", s.handleStatus)

	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		Log.Printf("(broadcast listening on %s)\n", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("broadcast: listen on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		Log.Printf(" -- broadcast listener clean exit\n")
		return nil
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	b, err := s.snapshotBytes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats := s.Table.Stats()
	str := fmt.Sprintf("OK\n\n"+
		"* Tracks: %d\n"+
		"* Messages: %d (decode errors: %d)\n"+
		"* Positions resolved: %d\n"+
		"* Tracks evicted: %d\n"+
		"* Viewers dropped: %d\n",
		s.Table.Len(), stats.Messages, stats.DecodeErrors,
		stats.Positions, stats.Evicted, atomic.LoadInt64(&s.nDropped))
	if s.VitalsText != nil {
		str += "\n" + s.VitalsText()
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(str))
}
