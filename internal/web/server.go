package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/guidoenr/hapticbridge/internal/app"
	"github.com/guidoenr/hapticbridge/internal/haptics"
	"github.com/guidoenr/hapticbridge/internal/params"
)

const maxBodyBytes = 64 << 10

// Engine is the part of the application the control surface drives.
type Engine interface {
	Params() *params.Store
	Status() app.Status
	InjectFFB(l, r float64)
	SubmitControls(c haptics.Controls)
	StartFFBTest()
}

// Server exposes the tunables API and a websocket hub that streams output
// frames out and accepts telemetry and force feedback in.
type Server struct {
	mu         sync.RWMutex
	engine     Engine
	configPath string
	clients    map[*websocketClient]bool
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	log        *log.Logger
}

type websocketClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// inboundMessage is what clients send over the websocket. Type selects which
// of the remaining fields are meaningful.
type inboundMessage struct {
	Type     string  `json:"type"`
	Brake    float64 `json:"brake"`
	Throttle float64 `json:"throttle"`
	Speed    float64 `json:"speed"`
	Offroad  bool    `json:"offroad"`
	L        float64 `json:"l"`
	R        float64 `json:"r"`
}

type ffbRequest struct {
	L float64 `json:"l"`
	R float64 `json:"r"`
}

// NewServer builds a Server for engine. Saved tunables go to configPath.
func NewServer(engine Engine, configPath string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		engine:     engine,
		configPath: configPath,
		clients:    make(map[*websocketClient]bool),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		mux: http.NewServeMux(),
		log: logger,
	}
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/params", s.handleParams)
	s.mux.HandleFunc("/api/update", s.handleUpdate)
	s.mux.HandleFunc("/api/save", s.handleSave)
	s.mux.HandleFunc("/api/ffb", s.handleFFB)
	s.mux.HandleFunc("/api/ffb/test", s.handleFFBTest)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.broadcastLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Printf("[web] control surface on http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// Deliver queues a frame for every connected client. It never blocks; when
// the hub is backed up the frame is dropped.
func (s *Server) Deliver(f haptics.OutputFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case s.broadcast <- data:
	default:
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Params().Load())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	next, err := s.engine.Params().Patch(body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, params.ErrInvalidPatch) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.log.Printf("[web] params updated (%d bytes)", len(body))
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.engine.Params().Save(s.configPath); err != nil {
		http.Error(w, fmt.Sprintf("failed to save config: %v", err), http.StatusInternalServerError)
		return
	}
	s.log.Printf("[web] params saved to %s", s.configPath)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": s.configPath})
}

func (s *Server) handleFFB(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ffbRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.InjectFFB(req.L, req.R)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFFBTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.StartFFBTest()
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("[web] websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()
	s.log.Printf("[web] client %s connected from %s", client.id, r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

// handleMessage applies one inbound websocket message.
func (s *Server) handleMessage(data []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	switch msg.Type {
	case "telemetry":
		s.engine.SubmitControls(haptics.ControlsFromAxes(msg.Brake, msg.Throttle, msg.Speed, msg.Offroad))
	case "ffb":
		s.engine.InjectFFB(msg.L, msg.R)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				close(client.send)
				delete(s.clients, client)
			}
			s.mu.Unlock()
			return
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					s.log.Printf("[web] client %s too slow, dropping", client.id)
					close(client.send)
					delete(s.clients, client)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) removeClient(c *websocketClient) {
	s.mu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
		c.server.log.Printf("[web] client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxBodyBytes)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if err := c.server.handleMessage(data); err != nil {
			c.server.log.Printf("[web] client %s: %v", c.id, err)
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
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

			// One JSON frame per message.
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
