package conn

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

// Socket abstracts the transport connection for testability.
type Socket interface {
	// ReadMessage blocks until the next text frame or a close/error.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one text frame.
	WriteMessage(payload []byte) error
	// Close sends a close frame with the given status code and tears
	// down the connection.
	Close(code int) error
}

// Dialer opens a Socket against an endpoint.
type Dialer interface {
	Dial(endpoint string) (Socket, error)
}

// WebsocketDialer is the production Dialer backed by fasthttp/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a websocket connection to the endpoint.
func (d WebsocketDialer) Dial(endpoint string) (Socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	c, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &wsSocket{conn: c}, nil
}

type wsSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSocket) WriteMessage(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSocket) Close(code int) error {
	msg := websocket.FormatCloseMessage(code, "")
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

// isNormalClose reports whether the read error carries the normal
// closure status code, meaning the peer ended the session cleanly.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}
