package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mash-protocol/meshgw/pkg/bus"
	"github.com/mash-protocol/meshgw/pkg/gateway"
)

// ServerConfig holds configuration for the HTTP/WebSocket dashboard server.
type ServerConfig struct {
	ListenAddr string
}

// Server is the HTTP/WebSocket server for the mesh gateway dashboard. It is
// the external collaborator spec.md §1/§6 describes: a thin REST+WebSocket
// shell over pkg/gateway and pkg/bus, not a dashboard asset pipeline.
type Server struct {
	cfg      ServerConfig
	ctrl     *gateway.Controller
	events   *bus.Bus
	mux      *http.ServeMux
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewServer wires a controller and event bus into a dashboard server.
func NewServer(cfg ServerConfig, ctrl *gateway.Controller, events *bus.Bus) *Server {
	s := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		events:  events,
		mux:     http.NewServeMux(),
		clients: make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	events.Subscribe(bus.ThreadAny, s.broadcast)

	s.server = &http.Server{Addr: cfg.ListenAddr, Handler: s.mux}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/nodes", s.handleNodes)
	s.mux.HandleFunc("/api/power/status", s.handlePowerStatus)
	s.mux.HandleFunc("/api/power/threshold", s.handleSetThreshold)
	s.mux.HandleFunc("/api/command", s.handleCommand)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server. Blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNodes reports the last known reading for every node PM has
// recorded, or every controller-known node if PM has recorded none.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	ids := s.ctrl.PowerManager().NodeIDs()
	if len(ids) == 0 {
		ids = s.ctrl.KnownNodes()
	}
	type nodeView struct {
		NodeID  string  `json:"node_id"`
		Duty    int     `json:"duty"`
		Voltage float64 `json:"voltage"`
		Current float64 `json:"current"`
		Power   float64 `json:"power"`
	}
	out := make([]nodeView, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.ctrl.LastReading(id); ok {
			out = append(out, nodeView{NodeID: id, Duty: r.Duty, Voltage: r.Voltage, Current: r.Current, Power: r.Power})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePowerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.ctrl.PowerManager().Enabled(),
		"status":  s.ctrl.PowerManager().Status(),
	})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		MilliWatts float64 `json:"milliwatts"`
		Disable    bool    `json:"disable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if body.Disable {
		s.ctrl.PowerManager().Disable(r.Context())
	} else {
		s.ctrl.PowerManager().SetThreshold(body.MilliWatts)
		go s.ctrl.PowerManager().Run(context.Background())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCommand issues a routed command of the form "<node_id>:<verb>[:value]"
// via the query parameters node, verb, value.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	node := r.URL.Query().Get("node")
	verb := r.URL.Query().Get("verb")
	value := r.URL.Query().Get("value")

	var err error
	switch verb {
	case "DUTY":
		var pct int
		pct, err = strconv.Atoi(value)
		if err == nil {
			err = s.ctrl.SetDuty(r.Context(), node, pct)
		}
	case "RAMP":
		err = s.ctrl.StartRamp(r.Context(), node)
	case "STOP":
		err = s.ctrl.Stop(r.Context(), node)
	case "READ":
		err = s.ctrl.ReadSensor(r.Context(), node)
	case "STATUS":
		err = s.ctrl.ReadStatus(r.Context(), node)
	case "MONITOR":
		err = s.ctrl.StartMonitor(r.Context(), node)
	default:
		err = fmt.Errorf("unknown verb: %s", verb)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebSocket upgrades to a WebSocket and streams every bus event to
// the client as JSON until the connection drops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	out := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[conn] = out
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// Drain inbound frames just to detect the client closing the socket;
	// the dashboard is a read-only observer of bus events.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for payload := range out {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// broadcast fans out a bus.Event to every connected WebSocket client as
// JSON. Slow clients are dropped rather than allowed to block publication.
func (s *Server) broadcast(e bus.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- payload:
		default:
			delete(s.clients, conn)
			close(ch)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
