// Package web serves the HTTP boundary: parameter access mapped onto the
// controller and websocket attachment onto the client channel.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/codefionn/parambridge/internal/bridge"
	"github.com/codefionn/parambridge/internal/channel"
	"github.com/codefionn/parambridge/internal/consts"
	"github.com/codefionn/parambridge/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server exposes the controller over HTTP
type Server struct {
	addr       string
	controller *bridge.Controller

	// clientChannel receives websocket attachments; nil when the client
	// channel failed to bind
	clientChannel *channel.Server

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates the HTTP server
func NewServer(addr string, controller *bridge.Controller, clientChannel *channel.Server) *Server {
	s := &Server{
		addr:          addr,
		controller:    controller,
		clientChannel: clientChannel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  consts.BufferSize1KB,
			WriteBufferSize: consts.BufferSize1KB,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	router := httprouter.New()
	router.GET("/health", s.handleHealth)
	router.GET("/parameters/*path", s.handleGet)
	router.PUT("/parameters/*path", s.handlePut)
	router.GET("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// Handler returns the route handler, exposed for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves HTTP until Stop is called
func (s *Server) Start() error {
	logger.Info("HTTP server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down gracefully
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	path := strings.Trim(ps.ByName("path"), "/")
	metadata := r.URL.Query().Get("metadata") == "true"

	value, err := s.controller.Get(path, metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	path := strings.Trim(ps.ByName("path"), "/")

	var body interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}

	if err := s.controller.Set(path, body); err != nil {
		writeError(w, err)
		return
	}

	// Echo the resulting state back, including any clamping or conversion
	// the owner applied
	value, err := s.controller.Get(path, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.clientChannel == nil {
		http.Error(w, "client channel unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	logger.Debug("WebSocket client attached from %s", conn.RemoteAddr())
	s.clientChannel.AttachWebSocket(conn)
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logger.Error("Failed to encode HTTP response: %v", err)
	}
}

// Parameter failures are client errors; everything surfaces as 400 with an
// error body, never 404
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error": err.Error(),
	})
}
