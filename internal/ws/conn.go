package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong before the connection is declared
	// dead.
	pongWait = 60 * time.Second

	// Ping interval; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Inbound frames are keep-alive
	// only, so this stays small.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Hardware and browser clients connect from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// gorillaConn adapts *websocket.Conn to the registry's Conn interface.
// gorilla allows only one concurrent writer, hence the write mutex.
type gorillaConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *gorillaConn) WriteText(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(message))
}

func (c *gorillaConn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *gorillaConn) Close() error {
	return c.conn.Close()
}

// pingLoop keeps the connection alive through idle proxies. It exits when
// the ping write fails or the serving goroutine stops.
func pingLoop(c *gorillaConn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

// Serve upgrades the request and runs the connection until the peer goes
// away. The deferred unregister covers every exit path, including server
// shutdown, so a dying connection always leaves the registry.
func Serve(registry *Registry, w http.ResponseWriter, r *http.Request, deviceID string, role Role) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Msg("websocket upgrade failed")
		return
	}

	conn := &gorillaConn{conn: raw}
	registry.Register(deviceID, role, conn)
	defer func() {
		registry.Unregister(deviceID, role, conn)
		_ = conn.Close()
	}()

	raw.SetReadLimit(maxMessageSize)
	raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPings := make(chan struct{})
	defer close(stopPings)
	go pingLoop(conn, stopPings)

	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("deviceId", deviceID).Msg("websocket read error")
			}
			return
		}
		// Inbound frames are keep-alive/status chatter; log and move on.
		log.Debug().
			Str("deviceId", deviceID).
			Str("role", string(role)).
			Str("message", string(message)).
			Msg("inbound websocket frame")
	}
}
