// Package panel serves the diagram UI and carries its message protocol over
// a websocket.
package panel

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("archsync.panel")

//go:embed static/*
var staticFiles embed.FS

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archsync_panel_clients",
		Help: "Connected UI clients.",
	})
	messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archsync_panel_messages_total",
		Help: "UI messages, by direction and command.",
	}, []string{"direction", "command"})
)

// Handler receives what the UI sends.
type Handler interface {
	HandleMessage(ctx context.Context, msg Inbound)
	// Connected is called once per new client, before any of its messages.
	Connected(ctx context.Context, client string)
}

type client struct {
	id   string
	conn *websocket.Conn
	// gorilla connections support one concurrent writer
	mu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is the UI endpoint. It serves the embedded UI under /static/, the
// message socket under /ws and Prometheus metrics under /metrics.
type Server struct {
	handler  Handler
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[string]*client
	srv     *http.Server
	url     string
}

func NewServer(handler Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:  handler,
		upgrader: websocket.Upgrader{CheckOrigin: sameOrigin},
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[string]*client),
	}
}

// sameOrigin accepts clients that send no Origin, and pages served from
// this host. Inbound messages edit source files.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Handler returns the HTTP handler of the server, for use without Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFiles)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start listens on addr (":0" picks a free port) and returns the URL of the
// UI. Starting a running server returns its URL again.
func (s *Server) Start(addr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return s.url, nil
	}
	if s.ctx.Err() != nil {
		return "", errors.New("panel server closed")
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.srv = &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}
	s.url = "http://" + l.Addr().String() + "/static/"

	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("panel server error", "error", err)
		}
	}()
	log.Info("panel listening", "url", s.url)
	return s.url, nil
}

func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Clients returns how many UI clients are connected.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Post broadcasts msg to every connected client. Clients that fail to
// receive it are dropped.
func (s *Server) Post(msg Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	messages.WithLabelValues("out", msg.Command).Inc()

	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			log.Warning("broadcast error", "client", c.id, "error", err)
			s.drop(c)
		}
	}
	return nil
}

// SendTo posts msg to a single client.
func (s *Server) SendTo(id string, msg Outbound) error {
	s.mu.Lock()
	c, ok := s.clients[id]
	s.mu.Unlock()
	if !ok {
		return errors.New("unknown panel client " + id)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	messages.WithLabelValues("out", msg.Command).Inc()
	if err := c.write(data); err != nil {
		s.drop(c)
		return err
	}
	return nil
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		connectedClients.Dec()
	}
	s.mu.Unlock()
	c.conn.Close()
}

// Close disconnects every client and stops the HTTP server.
func (s *Server) Close() error {
	s.cancel()
	s.mu.Lock()
	srv := s.srv
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.drop(c)
	}
	if srv != nil {
		return srv.Close()
	}
	return nil
}

// handleWS upgrades the connection and reads messages until the client
// goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warning("websocket upgrade error", "error", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	connectedClients.Inc()
	defer s.drop(c)

	ctx := r.Context()
	log.Info("panel client connected", "client", c.id)
	if s.handler != nil {
		s.handler.Connected(ctx, c.id)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warning("panel client read error", "client", c.id, "error", err)
			}
			log.Info("panel client disconnected", "client", c.id)
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warning("malformed panel message", "client", c.id, "error", err)
			continue
		}
		messages.WithLabelValues("in", msg.Command).Inc()
		if s.handler != nil {
			s.handler.HandleMessage(ctx, msg)
		}
	}
}
