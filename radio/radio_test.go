package radio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/skypies/geo"

	"github.com/electronfraud/airplane-thing/tracktable"
)

func TestReaderIngestsLines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte(
			"ID,A1B2C3,2016-01-09T18:52:10Z,UAL1593,M\n" +
				"SQ,A1B2C3,2016-01-09T18:52:11Z,3517\n" +
				"garbage line\n" +
				"AL,A1B2C3,2016-01-09T18:52:12Z,11025\n"))
		conn.Close()
	}()

	tab := tracktable.New(geo.Latlong{})
	r := NewReader(ln.Addr().String(), tab)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if lines, _ := r.Counts(); lines >= 4 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	lines, bad := r.Counts()
	if lines != 4 || bad != 1 {
		t.Errorf("lines=%d bad=%d, want 4 and 1", lines, bad)
	}

	tr, exists := tab.Get("A1B2C3")
	if !exists {
		t.Fatal("track not created from the stream")
	}
	if tr.Callsign.Value() != "UAL1593" || tr.Squawk.Value() != "3517" || tr.Altitude.Value() != 11025 {
		t.Errorf("track fields: %s", tr)
	}
}

func TestErrorSuppression(t *testing.T) {
	r := NewReader("", nil)
	r.logOnce("some error")
	r.logOnce("some error")
	r.logOnce("another error")

	if len(r.errsSeen) != 2 {
		t.Errorf("errsSeen has %d entries, want 2", len(r.errsSeen))
	}
}
