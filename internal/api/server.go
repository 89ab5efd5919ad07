package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"elastic-load/internal/events"
	"elastic-load/internal/logger"
	"elastic-load/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	statusInterval  = time.Second
	shutdownTimeout = 5 * time.Second
)

// Source は実行中の負荷の状態を返す
type Source interface {
	Name() string
	IsRunning() bool
	Snapshot() metrics.Snapshot
	Delay() time.Duration
	Pending() int
}

// Server はAPIサーバー
type Server struct {
	source   Source
	gatherer prometheus.Gatherer
	bus      *events.Bus
	events   <-chan events.Event

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool
}

// NewServer は新しいAPIサーバーを作成する（bus, gatherer は nil 可）
func NewServer(source Source, bus *events.Bus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	s := &Server{
		source:    source,
		gatherer:  gatherer,
		bus:       bus,
		wsClients: make(map[*websocket.Conn]bool),
	}
	if bus != nil {
		s.events = bus.Subscribe()
	}
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))
	return mux
}

// Listen は addr で待ち受けを開始する
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return ln, nil
}

// Serve は待ち受け済みの ln でリクエストを処理し、ctx がキャンセルされるまでブロックする
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.forwardEvents(ctx)
	go s.broadcastLoop(ctx)

	logger.Info("", "API Server starting on http://%s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != http.ErrServerClosed {
		return errors.Wrapf(err, "serving api on %s", ln.Addr())
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running        bool             `json:"running"`
	ScenarioName   string           `json:"scenario_name,omitempty"`
	Delay          string           `json:"delay"`
	PendingWorkers int              `json:"pending_workers"`
	Metrics        metrics.Snapshot `json:"metrics"`
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Running:        s.source.IsRunning(),
		ScenarioName:   s.source.Name(),
		Delay:          s.source.Delay().String(),
		PendingWorkers: s.source.Pending(),
		Metrics:        s.source.Snapshot(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

// handleWebSocket はクライアントを登録し、切断まで受信を続ける
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// forwardEvents はバスのイベントを全クライアントへ転送する
func (s *Server) forwardEvents(ctx context.Context) {
	if s.events == nil {
		return
	}
	defer s.bus.Unsubscribe(s.events)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-s.events:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": e,
			})
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.source.IsRunning() || s.clientCount() == 0 {
				continue
			}
			s.broadcast(map[string]any{
				"type":   "status",
				"status": s.status(),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
