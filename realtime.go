// Package realtime assembles the messaging session layer: one shared
// websocket connection multiplexing chat, appointment and room event
// streams, with reconnection, authentication handshake and message
// de-duplication.
package realtime

import (
	"github.com/rs/zerolog"

	"github.com/carebridge/realtime/config"
	"github.com/carebridge/realtime/src/ai"
	"github.com/carebridge/realtime/src/conn"
	"github.com/carebridge/realtime/src/session"
	"github.com/carebridge/realtime/src/store"
)

// Session bundles the connection manager and the feature reducers
// built on top of it. Construct one per user session; tests may run
// several independent instances.
type Session struct {
	Conn         *conn.Manager
	Chat         *session.Chat
	Appointments *session.Appointments
	Rooms        *session.Rooms
	AI           *ai.Client
}

// NewSession wires the session layer from configuration. A nil st
// falls back to an in-memory AI-group store; a nil notifier logs.
func NewSession(cfg *config.SessionConfig, st store.GroupStore, notifier session.Notifier, logger zerolog.Logger) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if st == nil {
		st = store.NewMemoryStore()
	}

	mgr := conn.New(conn.Options{
		Endpoint:             cfg.Endpoint,
		BaseReconnectDelay:   cfg.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Logger:               logger,
	})
	return &Session{
		Conn: mgr,
		Chat: session.NewChat(mgr, st, session.ChatOptions{
			PageSize:      cfg.PageSize,
			RecreateDelay: cfg.AIRecreateDelay,
			NoticeTTL:     cfg.NoticeTTL,
			Notifier:      notifier,
			Logger:        logger,
		}),
		Appointments: session.NewAppointments(mgr, notifier, logger),
		Rooms:        session.NewRooms(mgr, notifier, logger),
		AI:           ai.New(ai.Config{BaseURL: cfg.AIServiceURL}, logger),
	}
}

// Open records the user identity and connects. Authentication is a
// pending intent: requested here, delivered the moment the socket
// opens.
func (s *Session) Open(userID string) {
	s.Conn.Authenticate(userID)
	s.Chat.SetUser(userID)
	s.Conn.Connect()
}

// Close releases every fan-out subscription and closes the transport.
func (s *Session) Close() {
	s.Chat.Close()
	s.Appointments.Close()
	s.Rooms.Close()
	s.Conn.Disconnect()
}
