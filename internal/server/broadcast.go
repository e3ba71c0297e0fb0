package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kripika/tli-tracker/internal/session"
	"github.com/kripika/tli-tracker/internal/stats"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

// writePump drains the send queue onto the socket. On a write error it
// closes the connection, which errors the read loop, which removes the
// client; the pump itself never touches the broadcaster.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster pushes state to connected overlays: a throttled stats
// delta after every mutation, a full snapshot on a slow tick so clients
// recover from missed frames, and an immediate notice when a session
// ends. It satisfies the engine's Notifier.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	sessions *session.Tracker
	stats    *stats.Projector
	throttle time.Duration

	snapshotTicker *time.Ticker
	done           chan struct{}

	flushMu    sync.Mutex
	dirty      bool
	flushTimer *time.Timer
}

func NewBroadcaster(sessions *session.Tracker, projector *stats.Projector, throttle, snapshotInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		sessions: sessions,
		stats:    projector,
		throttle: throttle,
		done:     make(chan struct{}),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.snapshotTicker.Stop()
	close(b.done)

	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	data, _ := json.Marshal(b.snapshotMessage())
	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// StateChanged queues a throttled stats delta. Bursts of mutations,
// like a pack of drops landing at once, coalesce into one frame.
func (b *Broadcaster) StateChanged() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.dirty = true
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// SessionEnded pushes the final numbers immediately, ahead of any
// pending delta.
func (b *Broadcaster) SessionEnded(final stats.Stats) {
	b.broadcast(Message{
		Type:    MsgSessionEnded,
		Payload: SessionEndedPayload{Stats: final},
	})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	dirty := b.dirty
	b.dirty = false
	b.flushTimer = nil
	b.flushMu.Unlock()

	if !dirty {
		return
	}

	b.broadcast(Message{
		Type: MsgStats,
		Payload: StatsPayload{
			Stats: b.stats.Stats(),
			Drops: b.stats.Drops(),
		},
	})
}

func (b *Broadcaster) snapshotMessage() Message {
	return Message{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Session: b.sessions.Snapshot(),
			Stats:   b.stats.Stats(),
			Drops:   b.stats.Drops(),
		},
	}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshotMessage())
		}
	}
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
