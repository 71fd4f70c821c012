package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// Notifier listens on the backend's /events websocket for change hints.
// Hints carry no data; the receiver is expected to poll.
type Notifier struct {
	url    string
	jar    http.CookieJar
	logger *zap.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serialises pings
	conn    *websocket.Conn
	seq     uint64
}

// NewNotifier creates a notifier for the backend at baseURL. The jar must
// be the one used by the REST client so the session cookie is presented.
func NewNotifier(baseURL string, jar http.CookieJar, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		url:    EventsURL(baseURL),
		jar:    jar,
		logger: logger.Named("hints"),
	}
}

// EventsURL converts http://host:port → ws://host:port/events.
func EventsURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "ws://127.0.0.1:8000/events"
	}
	scheme := "ws"
	if strings.HasPrefix(u.Scheme, "https") {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s/events", scheme, u.Host, strings.TrimRight(u.Path, "/"))
}

// Run connects and delivers every hint to onHint until ctx is cancelled.
// It reconnects with exponential backoff; a refused handshake (for example
// 401 before login) is retried the same way.
func (n *Notifier) Run(ctx context.Context, onHint func(HintMessage)) {
	delay := reconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := n.dial(ctx)
		if err != nil {
			n.logger.Debug("dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}
		delay = reconnectBaseDelay

		n.logger.Info("hint stream connected", zap.String("url", n.url))
		err = n.readLoop(ctx, conn, onHint)
		if ctx.Err() != nil {
			return
		}
		n.logger.Info("hint stream disconnected", zap.Error(err))
	}
}

// Seq returns the last seen hint sequence number.
func (n *Notifier) Seq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

func (n *Notifier) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: writeTimeout,
		Jar:              n.jar,
	}
	conn, resp, err := dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &APIError{Op: "events", StatusCode: resp.StatusCode, Kind: ErrAuthExpired}
		}
		return nil, err
	}
	return conn, nil
}

func (n *Notifier) readLoop(ctx context.Context, conn *websocket.Conn, onHint func(HintMessage)) error {
	n.mu.Lock()
	n.conn = conn
	n.seq = 0
	n.mu.Unlock()

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go n.pingLoop(pingCtx, conn)

	// Unblock ReadMessage when the caller goes away.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	defer func() {
		n.mu.Lock()
		if n.conn == conn {
			n.conn = nil
		}
		n.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg HintMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			n.logger.Debug("dropping malformed hint", zap.Error(err))
			continue
		}
		if msg.Type != HintChanged {
			continue
		}

		n.mu.Lock()
		n.seq = msg.Seq
		n.mu.Unlock()

		onHint(msg)
	}
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or a write fails.
func (n *Notifier) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			n.writeMu.Unlock()
			if err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					n.logger.Debug("ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}
