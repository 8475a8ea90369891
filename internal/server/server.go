package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mf2hd-design/memoscan2/internal/cache"
	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/feedback"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/quota"
	"github.com/mf2hd-design/memoscan2/internal/session"
)

// Server is the HTTP + WebSocket API surface.
type Server struct {
	cfg      *config.Config
	coord    *session.Coordinator
	cache    *cache.Cache
	feedback *feedback.Logger
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// New wires the API surface around an existing coordinator. screenshots is
// the shared cache the fetcher stores screenshots into; fb may be nil.
func New(cfg *config.Config, coord *session.Coordinator, screenshots *cache.Cache, fb *feedback.Logger, logger logging.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		coord:    coord,
		cache:    screenshots,
		feedback: fb,
		router:   chi.NewRouter(),
		logger:   logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/screenshot/{id}", s.handleScreenshot)
	r.Post("/feedback", s.handleFeedback)
	r.Get("/ws/scan", s.handleScanWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("http_request",
		logging.Field{Key: "method", Value: r.Method},
		logging.Field{Key: "path", Value: r.URL.Path})
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe. No write
// timeout: WebSocket sessions outlive any sane value.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        s.cfg.Server.ListenAddr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, ok := s.cache.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "screenshot not found or expired")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedback.KeyFeedback
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.SessionID == "" || body.Key == "" {
		writeError(w, http.StatusBadRequest, "session_id and key are required")
		return
	}

	if s.feedback != nil {
		s.feedback.RecordFeedback(body)
	}
	s.logger.Info("feedback recorded",
		logging.Field{Key: "session_id", Value: body.SessionID},
		logging.Field{Key: "key", Value: body.Key},
		logging.Field{Key: "helpful", Value: body.Helpful})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// --- WebSocket handler ---

// startScanMessage is the single client-to-server command opening a scan.
type startScanMessage struct {
	Action string `json:"action"`
	URL    string `json:"url"`
	Mode   string `json:"mode"`
}

func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	identity := clientIdentity(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	// First message must be start_scan. Rejections use the same event
	// vocabulary the session streams, so clients parse one frame shape.
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var msg startScanMessage
	if err := conn.ReadJSON(&msg); err != nil {
		_ = conn.WriteJSON(session.Event{Type: session.EventError, Message: "expected a start_scan message"})
		return
	}
	if msg.Action != "start_scan" {
		_ = conn.WriteJSON(session.Event{Type: session.EventError, Message: "first message must be start_scan"})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	sess, err := s.coord.StartScan(msg.URL, msg.Mode, identity)
	if err != nil {
		s.logger.Warn("starting scan",
			logging.Field{Key: "identity", Value: identity},
			logging.Field{Key: "error", Value: err.Error()})
		_ = conn.WriteJSON(session.Event{Type: session.EventError, Message: userFacing(err)})
		return
	}

	s.logger.Info("scan session attached",
		logging.Field{Key: "session_id", Value: sess.ID},
		logging.Field{Key: "identity", Value: identity})
	_ = conn.WriteJSON(map[string]string{"session_id": sess.ID})

	// Drain the client side so we notice disconnects and cancel the
	// session rather than scanning for nobody.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.coord.Cancel(sess.ID)
				return
			}
		}
	}()

	for ev := range sess.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel the session.
			s.coord.Cancel(sess.ID)
			return
		}
	}
}

// userFacing maps admission errors to messages safe to show a client.
func userFacing(err error) string {
	if qe, ok := err.(*quota.Error); ok {
		if qe.RetryAfter > 0 {
			return "Scan limit reached. Try again in " + qe.RetryAfter.Round(time.Minute).String() + "."
		}
		return "Too many scans are running right now. Please try again shortly."
	}
	return err.Error()
}

// clientIdentity derives the quota identity: first X-Forwarded-For hop
// when present (we expect to run behind a proxy), else the peer address.
func clientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
