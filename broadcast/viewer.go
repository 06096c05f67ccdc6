package broadcast

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Outbound snapshots a viewer may have queued before we give up on it.
	sendBuffer = 8

	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers are anonymous; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// viewer is one websocket connection. The hub talks to it only through send;
// the two pump goroutines own the conn.
type viewer struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	closeOnce sync.Once
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	v := &viewer{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		remoteAddr: r.RemoteAddr,
	}

	go v.writePump()
	go v.readPump(s)

	s.register <- v
}

// trySend queues a payload without blocking. False means the buffer is full.
func (v *viewer) trySend(b []byte) bool {
	select {
	case v.send <- b:
		return true
	default:
		return false
	}
}

func (v *viewer) close() {
	v.closeOnce.Do(func() { close(v.send) })
}

// writePump drains send onto the wire. A closed channel or a failed write
// ends the connection.
func (v *viewer) writePump() {
	defer v.conn.Close()

	for b := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := v.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	v.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards anything the viewer sends; its real job is noticing the
// connection die and telling the hub.
func (v *viewer) readPump(s *Server) {
	defer func() { s.unregister <- v }()

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}
