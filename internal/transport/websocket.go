// SPDX-License-Identifier: MIT
/*
Package transport streams spectra to remote clients.

WebSocket is a listener.Listener: register it (directly or in a
listener.Fanout) and every frame it accepts is broadcast as JSON to the
clients connected on /spectrum. OnSpectrum never blocks the capture loop;
frames arriving faster than the minimum interval, or while the broadcast
queue is full, are dropped.
*/
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/listener"
	applog "spectrum/internal/log"

	"github.com/gorilla/websocket"
)

// Path is where clients connect.
const Path = "/spectrum"

const (
	broadcastQueue = 8
	writeTimeout   = time.Second
)

// Message is the JSON document sent for each frame.
type Message struct {
	Loop       string                `json:"loop"`
	Sequence   uint64                `json:"seq"`
	Timestamp  int64                 `json:"ts"` // Unix milliseconds.
	SampleRate float64               `json:"sample_rate"`
	PeakHz     float64               `json:"peak_hz"`
	Max        float64               `json:"max"`
	Level      float64               `json:"level"`
	Beat       bool                  `json:"beat"`
	Bands      []analysis.BandEnergy `json:"bands"`
	Magnitudes []float64             `json:"magnitudes"`
}

// NewMessage converts a frame into its wire form.
func NewMessage(f listener.Frame) Message {
	return Message{
		Loop:       f.LoopID.String(),
		Sequence:   f.Sequence,
		Timestamp:  f.Time.UnixMilli(),
		SampleRate: f.SampleRate,
		PeakHz:     f.PeakHz,
		Max:        f.MaxMagnitude,
		Level:      f.Level,
		Beat:       f.Beat,
		Bands:      f.Bands(),
		Magnitudes: f.Magnitudes,
	}
}

// WebSocket broadcasts frames to every connected client.
type WebSocket struct {
	addr        string
	minInterval time.Duration
	upgrader    websocket.Upgrader
	log         applog.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	broadcast chan listener.Frame
	lastSend  atomic.Int64 // Frame time of the last accepted frame, Unix ns.
	dropped   atomic.Uint64

	server   *http.Server
	listener net.Listener
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWebSocket prepares a broadcaster for addr (e.g. ":8080"). Frames closer
// together than minInterval are dropped; zero forwards every frame.
// Nothing listens until Start.
func NewWebSocket(addr string, minInterval time.Duration) *WebSocket {
	ws := &WebSocket{
		addr:        addr,
		minInterval: minInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local visualizers are served from anywhere.
			},
		},
		log:       applog.Named("websocket"),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan listener.Frame, broadcastQueue),
		done:      make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, ws.handleWebSocket)
	ws.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return ws
}

// Handler serves the upgrade endpoint, for mounting on another server.
func (ws *WebSocket) Handler() http.Handler {
	return ws.server.Handler
}

// Start binds the address, then serves and broadcasts in the background.
func (ws *WebSocket) Start() error {
	ln, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return fmt.Errorf("websocket: listening on %s: %w", ws.addr, err)
	}
	ws.listener = ln

	ws.wg.Add(2)
	go func() {
		defer ws.wg.Done()
		ws.log.Infof("listening on ws://%s%s", ln.Addr(), Path)
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.log.Errorf("server error: %v", err)
		}
	}()
	go func() {
		defer ws.wg.Done()
		ws.handleBroadcasts()
	}()
	return nil
}

// Addr is the bound address once started.
func (ws *WebSocket) Addr() string {
	if ws.listener == nil {
		return ws.addr
	}
	return ws.listener.Addr().String()
}

func (ws *WebSocket) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warnf("upgrade error: %v", err)
		return
	}

	ws.clientsMu.Lock()
	ws.clients[conn] = true
	total := len(ws.clients)
	ws.clientsMu.Unlock()
	ws.log.Infof("client %s connected, total: %d", conn.RemoteAddr(), total)

	// Clients only talk to us to close; the read fails when they go away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ws.removeClient(conn)
				return
			}
		}
	}()
}

func (ws *WebSocket) removeClient(conn *websocket.Conn) {
	ws.clientsMu.Lock()
	_, ok := ws.clients[conn]
	delete(ws.clients, conn)
	total := len(ws.clients)
	ws.clientsMu.Unlock()

	if ok {
		conn.Close()
		ws.log.Infof("client %s disconnected, total: %d", conn.RemoteAddr(), total)
	}
}

// OnSpectrum queues the frame for broadcast without blocking.
func (ws *WebSocket) OnSpectrum(frame listener.Frame) {
	now := frame.Time.UnixNano()
	last := ws.lastSend.Load()
	if last != 0 && now-last < int64(ws.minInterval) {
		return
	}
	if !ws.lastSend.CompareAndSwap(last, now) {
		return
	}

	select {
	case ws.broadcast <- frame:
	default:
		ws.dropped.Add(1)
	}
}

func (ws *WebSocket) handleBroadcasts() {
	for {
		select {
		case frame := <-ws.broadcast:
			ws.send(frame)
		case <-ws.done:
			return
		}
	}
}

func (ws *WebSocket) send(frame listener.Frame) {
	ws.clientsMu.Lock()
	defer ws.clientsMu.Unlock()
	if len(ws.clients) == 0 {
		return
	}

	data, err := json.Marshal(NewMessage(frame))
	if err != nil {
		ws.log.Errorf("encoding frame %d: %v", frame.Sequence, err)
		return
	}

	for client := range ws.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			ws.log.Warnf("error sending to %s: %v", client.RemoteAddr(), err)
			client.Close()
			delete(ws.clients, client)
		}
	}
}

// Clients is the number of connected clients.
func (ws *WebSocket) Clients() int {
	ws.clientsMu.Lock()
	defer ws.clientsMu.Unlock()
	return len(ws.clients)
}

// Dropped counts frames discarded because the broadcast queue was full.
func (ws *WebSocket) Dropped() uint64 { return ws.dropped.Load() }

// Close disconnects every client and shuts the server down. Safe to call
// more than once.
func (ws *WebSocket) Close() error {
	var err error
	ws.stopOnce.Do(func() {
		close(ws.done)

		ws.clientsMu.Lock()
		for client := range ws.clients {
			client.Close()
			delete(ws.clients, client)
		}
		ws.clientsMu.Unlock()

		err = ws.server.Close()
		ws.wg.Wait()
	})
	return err
}

var _ listener.Listener = (*WebSocket)(nil)
