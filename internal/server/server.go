package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"visca-camera/internal/camera"
	"visca-camera/internal/config"
	"visca-camera/internal/protocol"
	"visca-camera/internal/ptz"
	"visca-camera/internal/transport"
)

// Config for the server
type Config struct {
	ListenAddr      string
	ControlProtocol string // serial, tcp or udp
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves the gatherer on /metrics
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = g
	}
}

// Server bridges a camera to websocket clients
type Server struct {
	cfg       Config
	ctrl      ptz.Controller
	clients   map[*Client]bool
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	metrics   prometheus.Gatherer

	httpMu      sync.Mutex
	httpSrv     *http.Server
	unsubscribe func()
}

// Client represents a connected WebSocket client
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// New creates a new server instance for ctrl
func New(cfg Config, ctrl ptz.Controller, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubscribe = ctrl.Feedbacks().Subscribe(func(name string, value any) {
		s.broadcast(protocol.TypeFeedback, protocol.FeedbackPayload{Name: name, Value: value})
	})
	ctrl.OnPresetsChanged(func(presets []config.Preset) {
		s.broadcast(protocol.TypePresets, presetsPayload(presets))
	})

	return s
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/presets", s.handlePresets)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpMu.Lock()
	s.httpSrv = srv
	s.httpMu.Unlock()

	log.Info().Str("listen", s.cfg.ListenAddr).Msg("server: starting")
	return srv.ListenAndServe()
}

// Stop closes every client and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	s.httpMu.Lock()
	srv := s.httpSrv
	s.httpMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(presetsPayload(s.ctrl.Presets())); err != nil {
		log.Error().Err(err).Msg("server: encode presets")
	}
}

func (s *Server) broadcast(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("server: encode message")
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		client.enqueue(data)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("server: websocket upgrade")
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}

	// Send initial status before any broadcast can reach the client
	client.sendStatus()
	client.sendMessage(protocol.TypePresets, presetsPayload(s.ctrl.Presets()))

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	log.Info().Str("client", client.id).Str("remote", r.RemoteAddr).Msg("server: client connected")

	go client.writePump()
	go client.readPump()
}

func (c *Client) sendStatus() {
	status := protocol.StatusPayload{
		ClientID:        c.id,
		Camera:          c.server.ctrl.Name(),
		CameraConnected: c.server.ctrl.IsConnected(),
		ControlProtocol: c.server.cfg.ControlProtocol,
		Capabilities:    c.server.ctrl.Capabilities(),
		Operations:      c.server.ctrl.Operations(),
		Feedbacks:       c.server.ctrl.Feedbacks().Snapshot(),
	}
	c.sendMessage(protocol.TypeStatus, status)
}

func (c *Client) sendMessage(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("server: encode message")
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(code string, err error) {
	c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
		Code:    code,
		Message: err.Error(),
	})
}

// enqueue queues data for the write pump, dropping it if the client is slow or gone
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("client", c.id).Msg("server: client send buffer full, dropping message")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		c.Close()
		log.Info().Str("client", c.id).Msg("server: client disconnected")
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("server: websocket error")
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(protocol.ErrInvalidMessage, errors.New("failed to parse message"))
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err)
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeStatus:
		c.sendStatus()

	case protocol.TypeInvoke:
		var payload protocol.InvokePayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err)
			return
		}
		log.Debug().Str("client", c.id).Str("op", payload.Name).Msg("server: invoke")
		if err := c.server.ctrl.Invoke(payload.Name); err != nil {
			c.sendError(errorCode(err), err)
		}

	case protocol.TypePreset:
		var payload protocol.PresetPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err)
			return
		}
		c.handlePreset(payload)

	default:
		log.Warn().Str("client", c.id).Str("type", msg.Type).Msg("server: unknown message type")
		c.sendError(protocol.ErrInvalidMessage, errors.New("unknown message type: "+msg.Type))
	}
}

func (c *Client) handlePreset(preset protocol.PresetPayload) {
	var err error
	switch preset.Action {
	case protocol.PresetRecall:
		err = c.server.ctrl.PresetSelect(preset.PresetNumber)
	case protocol.PresetSave:
		err = c.server.ctrl.PresetStore(preset.PresetNumber, preset.Description)
	default:
		err = errors.New("unknown preset action: " + preset.Action)
		c.sendError(protocol.ErrInvalidMessage, err)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("client", c.id).Str("action", preset.Action).Msg("server: preset failed")
		c.sendError(errorCode(err), err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func encode(msgType string, payload any) ([]byte, error) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func presetsPayload(presets []config.Preset) protocol.PresetsPayload {
	out := protocol.PresetsPayload{Presets: make([]protocol.PresetInfo, 0, len(presets))}
	for _, p := range presets {
		out.Presets = append(out.Presets, protocol.PresetInfo{
			ID:          p.ID,
			Description: p.Description,
			IsDefined:   p.IsDefined,
		})
	}
	return out
}

// errorCode maps a camera error onto a protocol error code
func errorCode(err error) string {
	switch {
	case errors.Is(err, camera.ErrUnknownOp):
		return protocol.ErrUnknownOperation
	case errors.Is(err, camera.ErrUnsupported):
		return protocol.ErrUnsupported
	case errors.Is(err, camera.ErrInvalidPreset):
		return protocol.ErrInvalidMessage
	case errors.Is(err, transport.ErrNotConnected):
		return protocol.ErrCameraDisconnected
	default:
		return protocol.ErrVISCA
	}
}
