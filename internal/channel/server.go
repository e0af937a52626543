// Package channel implements the message transport for the bridge: framed
// client messages over tcp or unix stream sockets and attached websocket
// connections, with identity-routed replies and connect/disconnect monitor
// events. All callbacks are serialized onto a single dispatch Loop shared by
// every channel, mirroring a single-threaded event loop.
package channel

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/codefionn/parambridge/internal/consts"
	"github.com/codefionn/parambridge/internal/logger"
	"github.com/gorilla/websocket"
)

// Mode selects the channel behavior
type Mode int

const (
	// RouterMode accepts commands from clients and routes replies back by
	// client identity
	RouterMode Mode = iota
	// PublishMode accepts connections for outbound data only; inbound
	// frames are discarded
	PublishMode
)

// MonitorEventType classifies transport lifecycle events
type MonitorEventType int

const (
	// Connected signals a new transport connection
	Connected MonitorEventType = iota
	// Disconnected signals a transport connection going away
	Disconnected
)

func (t MonitorEventType) String() string {
	switch t {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MonitorEvent describes a transport lifecycle event
type MonitorEvent struct {
	Type       MonitorEventType
	ConnID     string
	RemoteAddr string
}

// ReceiveFunc handles one inbound message. A non-nil return value is sent
// back to the originating client identity.
type ReceiveFunc func(identity string, payload []byte) []byte

// MonitorFunc handles transport lifecycle events
type MonitorFunc func(event MonitorEvent)

// ErrUnknownIdentity is returned when a reply targets an identity with no
// live connection
var ErrUnknownIdentity = errors.New("no connection for client identity")

type sendItem struct {
	identity string
	payload  []byte
}

// Server is one bound message channel
type Server struct {
	name     string
	endpoint string
	mode     Mode
	loop     *Loop
	maxConns int

	receive ReceiveFunc
	monitor MonitorFunc

	listener net.Listener

	mu            sync.Mutex
	conns         map[*connection]struct{}
	identities    map[string]*connection
	connIDCounter int

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates a channel server for the given endpoint. Supported
// endpoint forms are "tcp://host:port" and "unix:///path/to/socket".
func NewServer(name, endpoint string, mode Mode, loop *Loop, maxConns int) *Server {
	if maxConns <= 0 {
		maxConns = consts.DefaultMaxConnections
	}
	return &Server{
		name:       name,
		endpoint:   endpoint,
		mode:       mode,
		loop:       loop,
		maxConns:   maxConns,
		conns:      make(map[*connection]struct{}),
		identities: make(map[string]*connection),
		stopChan:   make(chan struct{}),
	}
}

// RegisterReceive sets the inbound message callback
func (s *Server) RegisterReceive(fn ReceiveFunc) {
	s.receive = fn
}

// RegisterMonitor sets the lifecycle event callback
func (s *Server) RegisterMonitor(fn MonitorFunc) {
	s.monitor = fn
}

// Endpoint returns the configured endpoint
func (s *Server) Endpoint() string {
	return s.endpoint
}

// Bind creates the listener for the configured endpoint
func (s *Server) Bind() error {
	network, addr, err := parseEndpoint(s.endpoint)
	if err != nil {
		return err
	}

	if network == "unix" {
		// Remove a stale socket file from a previous run
		if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing socket file %s: %w", addr, err)
		}
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s channel to %s: %w", s.name, s.endpoint, err)
	}
	s.listener = listener
	return nil
}

// Start begins accepting connections; Bind must have succeeded first
func (s *Server) Start() {
	go s.acceptLoop()
	logger.Info("Channel %s listening on %s", s.name, s.endpoint)
}

// Stop closes the listener and all connections
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Error("Error closing %s channel listener: %v", s.name, err)
			}
		}

		s.mu.Lock()
		conns := make([]*connection, 0, len(s.conns))
		for conn := range s.conns {
			conns = append(conns, conn)
		}
		s.mu.Unlock()

		for _, conn := range conns {
			conn.stop()
		}

		logger.Info("Channel %s stopped", s.name)
	})
}

// Send routes a payload to the connection bound to identity
func (s *Server) Send(identity string, payload []byte) error {
	s.mu.Lock()
	conn, ok := s.identities[identity]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, identity)
	}
	conn.enqueue(identity, payload)
	return nil
}

// Publish sends a payload to every live connection. Nothing in the bridge
// emits data this way yet; the method exists so a push mechanism can be
// added without touching the transport.
func (s *Server) Publish(payload []byte) {
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.enqueue("publish", payload)
	}
}

// ConnCount returns the number of live connections
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// AttachWebSocket adopts an upgraded websocket connection into this channel
func (s *Server) AttachWebSocket(ws *websocket.Conn) {
	s.adopt(newWSConn(ws))
}

func (s *Server) acceptLoop() {
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("Error accepting connection on %s channel: %v", s.name, err)
			continue
		}

		s.adopt(newLineConn(netConn))
	}
}

// adopt tracks a new connection and starts its pumps
func (s *Server) adopt(fc frameConn) {
	s.mu.Lock()
	if len(s.conns) >= s.maxConns {
		s.mu.Unlock()
		logger.Warn("Connection limit reached on %s channel, rejecting %s", s.name, fc.RemoteAddr())
		fc.Close()
		return
	}
	s.connIDCounter++
	conn := &connection{
		id:       fmt.Sprintf("%s-conn-%d", s.name, s.connIDCounter),
		fc:       fc,
		server:   s,
		send:     make(chan sendItem, consts.DefaultSendQueueSize),
		stopChan: make(chan struct{}),
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.emitMonitor(MonitorEvent{Type: Connected, ConnID: conn.id, RemoteAddr: fc.RemoteAddr()})
	logger.Debug("New connection %s on %s channel from %s", conn.id, s.name, fc.RemoteAddr())

	go conn.readPump()
	go conn.writePump()
}

// drop untracks a connection and reports the disconnect exactly once
func (s *Server) drop(conn *connection) {
	s.mu.Lock()
	_, tracked := s.conns[conn]
	if tracked {
		delete(s.conns, conn)
		for identity, bound := range s.identities {
			if bound == conn {
				delete(s.identities, identity)
			}
		}
	}
	s.mu.Unlock()

	if tracked {
		s.emitMonitor(MonitorEvent{Type: Disconnected, ConnID: conn.id, RemoteAddr: conn.fc.RemoteAddr()})
		logger.Debug("Connection %s on %s channel closed", conn.id, s.name)
	}
}

// bindIdentity routes future replies for identity to conn; the most recent
// connection for a reused identity wins
func (s *Server) bindIdentity(identity string, conn *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity] = conn
}

func (s *Server) emitMonitor(event MonitorEvent) {
	if s.monitor == nil {
		return
	}
	s.loop.Dispatch(func() {
		s.monitor(event)
	})
}

func (s *Server) dispatchReceive(identity string, payload []byte) {
	if s.receive == nil {
		return
	}
	s.loop.Dispatch(func() {
		response := s.receive(identity, payload)
		if response == nil {
			return
		}
		if err := s.Send(identity, response); err != nil {
			logger.Warn("Failed to send response on %s channel: %v", s.name, err)
		}
	})
}

// connection is one live transport connection
type connection struct {
	id       string
	fc       frameConn
	server   *Server
	send     chan sendItem
	stopChan chan struct{}
	stopOnce sync.Once
}

func (c *connection) readPump() {
	defer c.stop()

	for {
		frame, err := c.fc.ReadFrame()
		if err != nil {
			select {
			case <-c.stopChan:
			default:
				logger.Debug("Connection %s read ended: %v", c.id, err)
			}
			return
		}

		c.server.bindIdentity(frame.Identity, c)

		// Publish-mode peers only listen; anything they send is dropped
		if c.server.mode == PublishMode {
			continue
		}

		c.server.dispatchReceive(frame.Identity, frame.Payload)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(consts.PingInterval)
	defer func() {
		ticker.Stop()
		c.stop()
	}()

	for {
		select {
		case <-c.stopChan:
			return

		case item := <-c.send:
			if err := c.fc.WriteFrame(item.identity, item.payload); err != nil {
				logger.Warn("Failed to write to connection %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			if ws, ok := c.fc.(*wsConn); ok {
				ws.writeMu.Lock()
				err := ws.conn.WriteMessage(websocket.PingMessage, nil)
				ws.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}
}

// enqueue queues an outbound frame; a full queue closes the connection, the
// peer is not keeping up and there is no flow control
func (c *connection) enqueue(identity string, payload []byte) {
	select {
	case c.send <- sendItem{identity: identity, payload: payload}:
	default:
		logger.Warn("Send queue full for connection %s, closing", c.id)
		c.stop()
	}
}

func (c *connection) stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.fc.Close()
		c.server.drop(c)
	})
}

// parseEndpoint splits an endpoint URL into a network and address usable
// with net.Listen / net.Dial
func parseEndpoint(endpoint string) (network string, addr string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
		}
		return "tcp", u.Host, nil
	case "unix":
		if u.Path == "" {
			return "", "", fmt.Errorf("invalid endpoint %q: missing socket path", endpoint)
		}
		return "unix", u.Path, nil
	default:
		return "", "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}
