// Package radio reads the decoded message stream off the radio process's TCP
// socket and feeds it into the track table. The connection is expected to
// drop now and then; we just redial and let the table go stale in between.
package radio

import (
	"bufio"
	"context"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/electronfraud/airplane-thing/modes"
	"github.com/electronfraud/airplane-thing/tracktable"
)

var Log *log.Logger

func init() {
	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
}

const redialPause = time.Second

// Reader owns the radio connection.
type Reader struct {
	Addr  string // host:port of the radio's line output
	Table *tracktable.Table

	// A bad line tends to repeat thousands of times (one broken field in a
	// high-rate subtype), so each distinct parse error is logged once and
	// then suppressed.
	errMu     sync.Mutex
	errsSeen  map[string]bool

	nLines    int64
	nBadLines int64
}

func NewReader(addr string, table *tracktable.Table) *Reader {
	return &Reader{
		Addr:     addr,
		Table:    table,
		errsSeen: map[string]bool{},
	}
}

func (r *Reader) Counts() (lines, bad int64) {
	return atomic.LoadInt64(&r.nLines), atomic.LoadInt64(&r.nBadLines)
}

// Run dials, reads lines until the connection dies, and redials, forever,
// until ctx is cancelled.
func (r *Reader) Run(ctx context.Context) {
	for {
		conn, err := r.dial(ctx)
		if conn == nil {
			Log.Printf(" -- radio reader clean exit\n")
			return
		}
		if err == nil {
			r.readLines(ctx, conn)
			conn.Close()
		}

		select {
		case <-ctx.Done():
			Log.Printf(" -- radio reader clean exit\n")
			return
		case <-time.After(redialPause):
		}
	}
}

func (r *Reader) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	for {
		Log.Printf("connecting to %s\n", r.Addr)
		conn, err := d.DialContext(ctx, "tcp", r.Addr)
		if err == nil {
			Log.Printf("connected\n")
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		Log.Printf("dial %s: %v\n", r.Addr, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redialPause):
		}
	}
}

func (r *Reader) readLines(ctx context.Context, conn net.Conn) {
	// Unblock the scanner when we're told to shut down.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		atomic.AddInt64(&r.nLines, 1)

		m, err := modes.ParseLine(scanner.Text())
		if err != nil {
			atomic.AddInt64(&r.nBadLines, 1)
			r.logOnce(err.Error())
			continue
		}
		r.Table.AddMessage(m)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		Log.Printf("read %s: %v\n", r.Addr, err)
	} else if ctx.Err() == nil {
		Log.Printf("connection closed unexpectedly\n")
	}
}

func (r *Reader) logOnce(errText string) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.errsSeen[errText] {
		return
	}
	r.errsSeen[errText] = true
	Log.Printf("parse error: %s (future errors of this kind will be suppressed)\n", errText)
}
