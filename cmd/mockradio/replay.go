package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"time"

	"github.com/electronfraud/airplane-thing/modes"
)

// {{{ file2msgs

// Load all the messages, and sort into a single time-ordered stream.
func file2msgs(filename string) []modes.Message {
	file, err := os.Open(filename)
	if err != nil {
		log.Fatal(err)
	}
	defer file.Close()

	msgs := []modes.Message{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		msg, err := modes.ParseLine(scanner.Text())
		if err != nil {
			log.Fatalf("Bad parse %q\n%v\n", scanner.Text(), err)
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		log.Fatal(err)
	}
	return msgs
}

// }}}
// {{{ handlePort

// Basically, turn an Accept event into something we can put into a select{}.
func handlePort(port int, socketChan chan<- *net.TCPConn) {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		log.Fatal(err)
	}
	for {
		conn, _ := ln.Accept()
		fmt.Printf("(connection made to :%d)\n", port)
		socketChan <- conn.(*net.TCPConn)
	}
}

// }}}

func replayData(files []string, whitelist map[string]int) {
	fmt.Printf("(loading %v)\n", files)

	msgs := []modes.Message{}
	for _, filename := range files {
		msgs = append(msgs, file2msgs(filename)...)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].When().Before(msgs[j].When()) })
	fmt.Printf("(loaded %d lines from %d files)\n", len(msgs), len(files))
	if len(msgs) == 0 {
		return
	}

	socketChan := make(chan *net.TCPConn)
	go handlePort(port, socketChan)

	sockets := []*net.TCPConn{}

	// Preserve the captured inter-message gaps (capped, so dead air in the
	// log doesn't stall the replay), but stamp each line with the current
	// time so that pairing windows behave as they did live.
	i := 0
	for {
		delta := time.Millisecond * 100
		if i > 0 {
			if d := msgs[i].When().Sub(msgs[i-1].When()); d > 0 && d < 5*time.Second {
				delta = d
			}
		}

		select {
		case socket := <-socketChan:
			sockets = append(sockets, socket)

		case <-time.After(delta):
			msg := retime(msgs[i], time.Now().UTC())

			_, exists := whitelist[string(msg.IcaoId())]
			if len(whitelist) == 0 || exists {
				line := modes.Line(msg) + "\n"
				for j := 0; j < len(sockets); j++ {
					if _, err := sockets[j].Write([]byte(line)); err != nil {
						fmt.Printf("write err: %v\n", err)
						sockets = append(sockets[:j], sockets[j+1:]...)
						j--
					}
				}
				fmt.Printf(">>> %s", line)
			}

			i++
			if i >= len(msgs) {
				fmt.Printf("(ran out of data !)\n")
				return
			}
		}
	}
}

// retime rewrites a message's timestamp, frame time included.
func retime(m modes.Message, now time.Time) modes.Message {
	switch m := m.(type) {
	case modes.Identification:
		m.Time = now
		return m
	case modes.SquawkReply:
		m.Time = now
		return m
	case modes.AltitudeReply:
		m.Time = now
		return m
	case modes.PositionFrame:
		m.Time = now
		m.Frame.Time = now
		return m
	case modes.Velocity:
		m.Time = now
		return m
	}
	return m
}
