// -----------------------------------------------------------------------
// Status Server - Websocket progress streaming and health endpoint
// -----------------------------------------------------------------------

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
	"github.com/GSejas/mermaid-export-pro/internal/services/health"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local tool, all origins accepted
	},
}

// message is the envelope every websocket frame carries.
type message struct {
	Type             string      `json:"type"`
	Payload          interface{} `json:"payload,omitempty"`
	ServerInstanceID string      `json:"server_instance_id"`
	Timestamp        time.Time   `json:"timestamp"`
}

// Server streams export progress and health transitions to websocket
// clients. Clients detect restarts through the server instance id.
type Server struct {
	logger   arbor.ILogger
	progress interfaces.ProgressService
	events   interfaces.EventService
	monitor  *health.Monitor
	history  interfaces.ExportHistoryStorage

	mu         sync.RWMutex
	clients    map[*websocket.Conn]*sync.Mutex
	throttlers map[string]*rate.Limiter
	instanceID string
	httpServer *http.Server
}

// NewServer creates the status server and subscribes it to the event bus.
// History may be nil when persistence is disabled.
func NewServer(config common.ServerConfig, progressService interfaces.ProgressService, eventService interfaces.EventService, monitor *health.Monitor, history interfaces.ExportHistoryStorage, logger arbor.ILogger) *Server {
	s := &Server{
		logger:     logger,
		progress:   progressService,
		events:     eventService,
		monitor:    monitor,
		history:    history,
		clients:    make(map[*websocket.Conn]*sync.Mutex),
		throttlers: make(map[string]*rate.Limiter),
		instanceID: uuid.New().String(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/history", s.handleHistory)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: mux,
	}

	s.subscribe()
	return s
}

// Start begins serving. Blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Str("server_instance_id", s.instanceID).Msg("Status server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP listener and closes all websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]*sync.Mutex)
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

// subscribe wires the event bus into the broadcast path. Batch starts
// additionally attach a progress subscription for the new batch.
func (s *Server) subscribe() {
	sub := func(eventType interfaces.EventType, handler interfaces.EventHandler) {
		if err := s.events.Subscribe(eventType, handler); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Event subscription failed")
		}
	}
	forward := func(eventType interfaces.EventType) interfaces.EventHandler {
		return func(ctx context.Context, event interfaces.Event) error {
			s.broadcast(string(eventType), event.Payload)
			return nil
		}
	}

	sub(interfaces.EventBatchStarted, func(ctx context.Context, event interfaces.Event) error {
		if batchID, ok := event.Payload.(string); ok {
			s.watchBatch(batchID)
		}
		s.broadcast(string(interfaces.EventBatchStarted), event.Payload)
		return nil
	})
	sub(interfaces.EventBatchCompleted, forward(interfaces.EventBatchCompleted))
	sub(interfaces.EventBatchCancelled, forward(interfaces.EventBatchCancelled))
	sub(interfaces.EventMemoryWarning, forward(interfaces.EventMemoryWarning))
	sub(interfaces.EventOperationStuck, forward(interfaces.EventOperationStuck))
	sub(interfaces.EventHealthChanged, forward(interfaces.EventHealthChanged))
}

// watchBatch streams a batch's progress snapshots, throttled per batch so
// the 100ms tick does not flood slow clients.
func (s *Server) watchBatch(batchID string) {
	s.mu.Lock()
	limiter, ok := s.throttlers[batchID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(250*time.Millisecond), 1)
		s.throttlers[batchID] = limiter
	}
	s.mu.Unlock()

	err := s.progress.OnProgress(batchID, func(state models.ProgressState) {
		if !limiter.Allow() {
			return
		}
		s.broadcast(string(interfaces.EventProgressUpdated), state)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to watch batch progress")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = &sync.Mutex{}
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.logger.Info().Int("client_count", clientCount).Msg("Websocket client connected")
	s.send(conn, message{
		Type:             "connected",
		Payload:          s.monitor.LastReport(),
		ServerInstanceID: s.instanceID,
		Timestamp:        time.Now(),
	})

	// Reader loop exists only to detect disconnects.
	common.SafeGo(s.logger, "ws-reader", func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Check()
	w.Header().Set("Content-Type", "application/json")
	if report.Status != health.StatusOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode health report")
	}
}

// handleHistory lists past export records, newest first. Query params:
// limit (default 20) and fails=true to restrict to batches with failures.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "export history is disabled", http.StatusServiceUnavailable)
		return
	}

	opts := &interfaces.HistoryListOptions{Limit: 20}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = limit
	}
	opts.OnlyFails = r.URL.Query().Get("fails") == "true"

	records, err := s.history.ListRecords(r.Context(), opts)
	if err != nil {
		s.logger.Warn().Err(err).Msg("History query failed")
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*models.ExportRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode history records")
	}
}

// broadcast sends one typed message to every connected client.
func (s *Server) broadcast(msgType string, payload interface{}) {
	msg := message{
		Type:             msgType,
		Payload:          payload,
		ServerInstanceID: s.instanceID,
		Timestamp:        time.Now(),
	}

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		s.send(conn, msg)
	}
}

// send writes one message under the connection's write mutex. Write
// failures drop the client.
func (s *Server) send(conn *websocket.Conn, msg message) {
	s.mu.RLock()
	connMu, ok := s.clients[conn]
	s.mu.RUnlock()
	if !ok {
		return
	}

	connMu.Lock()
	err := conn.WriteJSON(msg)
	connMu.Unlock()

	if err != nil {
		s.logger.Debug().Err(err).Msg("Websocket write failed, dropping client")
		s.removeClient(conn)
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		conn.Close()
	}
	clientCount := len(s.clients)
	s.mu.Unlock()
	s.logger.Info().Int("client_count", clientCount).Msg("Websocket client disconnected")
}
