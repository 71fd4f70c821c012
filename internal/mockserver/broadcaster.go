package mockserver

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/client"
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	s := &subscriber{
		conn: conn,
		send: make(chan []byte, 16),
	}
	go s.writePump()
	return s
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for msg := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster fans change hints out to every connected /events client.
// Hints carry only the feed name; clients re-poll to get data.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscriber]bool
	seq    uint64
	logger *zap.Logger
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   make(map[*subscriber]bool),
		logger: logger.Named("broadcast"),
	}
}

func (b *Broadcaster) add(conn *websocket.Conn) *subscriber {
	s := newSubscriber(conn)
	b.mu.Lock()
	b.subs[s] = true
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.send)
	}
}

// Hint tells every subscriber that feed changed.
func (b *Broadcaster) Hint(feed client.Feed) {
	b.mu.Lock()
	b.seq++
	msg := client.HintMessage{
		Type:    client.HintChanged,
		Seq:     b.seq,
		Payload: client.HintPayload{Feed: feed},
	}
	b.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal hint", zap.Error(err))
		return
	}

	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.send <- data:
		default:
			b.logger.Warn("events client too slow, disconnecting")
			b.remove(s)
		}
	}
}

// CloseAll disconnects every subscriber.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		delete(b.subs, s)
		close(s.send)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
