// Package devserver is a reference implementation of the chat wire
// protocol for local development and end-to-end tests. State is held
// in memory only.
package devserver

import (
	"net"
	"strings"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/carebridge/realtime/src/types"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server hosts the websocket protocol on /ws and a small REST surface
// via Fiber.
type Server struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	groups  map[string]*groupState
	rooms   map[string]types.Room

	app *fiber.App
	ln  net.Listener
}

type client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type groupState struct {
	group    types.Group
	messages []types.Message // most-recent-first
}

// New creates a devserver.
func New(logger zerolog.Logger) *Server {
	s := &Server{
		logger:  logger.With().Str("component", "devserver").Logger(),
		clients: make(map[string]*client),
		groups:  make(map[string]*groupState),
		rooms:   make(map[string]types.Room),
	}
	s.app = fiber.New()
	s.registerRoutes(s.app)
	return s
}

func (s *Server) registerRoutes(router fiber.Router) {
	router.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	router.Get("/ws/info", s.handleInfo)
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	s.mu.RLock()
	clients := len(s.clients)
	groups := len(s.groups)
	s.mu.RUnlock()
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   clients,
		"groups":    groups,
	})
}

// Handler returns the raw fasthttp handler: /ws upgrades to the
// websocket protocol, everything else goes to Fiber. Registered at the
// app level since Fiber v3 does not expose *fasthttp.RequestCtx.
func (s *Server) Handler() fasthttp.RequestHandler {
	fiberHandler := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/ws" {
			fiberHandler(ctx)
			return
		}
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		clientID := uuid.New().String()
		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			s.serveClient(clientID, conn)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// Start listens on addr and serves until the listener is closed.
// Pass ":0" to pick a free port; Addr reports the bound address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("devserver listening")
	go func() {
		if err := fasthttp.Serve(ln, s.Handler()); err != nil {
			s.logger.Debug().Err(err).Msg("serve stopped")
		}
	}()
	return nil
}

// Addr returns the bound listener address, "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes the listener and all client connections.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
}

func (s *Server) serveClient(clientID string, conn *websocket.Conn) {
	c := &client{id: clientID, conn: conn}
	s.mu.Lock()
	s.clients[clientID] = c
	s.mu.Unlock()
	s.logger.Info().Str("client_id", clientID).Msg("client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
		_ = conn.Close()
		s.logger.Info().Str("client_id", clientID).Msg("client disconnected")
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(c, types.DecodeFrame(payload))
	}
}

func (c *client) send(env types.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}
