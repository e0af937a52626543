package bridge

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codefionn/parambridge/internal/channel"
	"github.com/codefionn/parambridge/internal/logger"
	"github.com/codefionn/parambridge/internal/paramtree"
)

// ControllerError wraps owner and lookup failures surfaced at the HTTP
// boundary
type ControllerError struct {
	msg   string
	cause error
}

func (e *ControllerError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *ControllerError) Unwrap() error {
	return e.cause
}

func newControllerError(cause error, format string, args ...interface{}) *ControllerError {
	return &ControllerError{msg: fmt.Sprintf(format, args...), cause: cause}
}

// Controller owns the protocol state: the owner registry, client sessions
// and the live connection counter. All channel callbacks reach it on one
// dispatch goroutine, so no locking is needed between them; the mutex only
// guards against concurrent reads from the HTTP shim.
type Controller struct {
	mu sync.RWMutex

	owners     map[string]Owner
	ownerOrder []string
	sessions   map[string]*ClientSession

	liveConnections int

	tree *paramtree.Tree
}

// NewController creates a controller with an empty owner registry and its
// introspection tree
func NewController() *Controller {
	c := &Controller{
		owners:   make(map[string]Owner),
		sessions: make(map[string]*ClientSession),
	}

	// Getters run inside Get/HandleReceive which already hold the lock,
	// so they read controller state directly
	c.tree = paramtree.New(map[string]interface{}{
		"owners": paramtree.Getter(func() interface{} {
			names := make([]string, len(c.ownerOrder))
			copy(names, c.ownerOrder)
			return names
		}),
		"liveConnectionCount": paramtree.Getter(func() interface{} {
			return c.liveConnections
		}),
		"sessionCount": paramtree.Getter(func() interface{} {
			return len(c.sessions)
		}),
		"clients": paramtree.Getter(func() interface{} {
			clients := make(map[string]interface{}, len(c.sessions))
			for identity, session := range c.sessions {
				clients[identity] = session.AsTree()
			}
			return clients
		}),
	})

	return c
}

// RegisterOwner adds an owner to the registry. The registry is fixed once
// the bridge starts serving; registration is not safe to call afterwards.
func (c *Controller) RegisterOwner(name string, owner Owner) error {
	if name == "" {
		return fmt.Errorf("owner name must not be empty")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("owner name %q must not contain a slash", name)
	}
	if _, exists := c.owners[name]; exists {
		return fmt.Errorf("owner %q already registered", name)
	}
	c.owners[name] = owner
	c.ownerOrder = append(c.ownerOrder, name)
	logger.Info("Registered owner %s (%s)", name, ownerTypeName(owner))
	return nil
}

// Initialize registers the controller's own introspection tree as the
// "bridge" owner, then freezes the registry order
func (c *Controller) Initialize() error {
	if err := c.RegisterOwner("bridge", NewTreeOwner("bridge", c.tree)); err != nil {
		return err
	}
	sort.Strings(c.ownerOrder)
	return nil
}

// HandleReceive processes one client message and returns the encoded
// response envelope. Registered as the client channel's receive callback.
func (c *Controller) HandleReceive(identity string, payload []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.touchSession(identity)

	env, err := DecodeEnvelope(payload)
	if err != nil {
		logger.Warn("Failed to decode message from %s: %v", identity, err)
		return encodeResponse(NewNack(VerbError, 0, map[string]interface{}{
			"error": err.Error(),
		}))
	}

	return encodeResponse(c.processMessage(session, env))
}

// HandleMonitor tracks transport-level connects and disconnects.
// Registered as the monitor callback on both channels. A TCP-level drop
// decrements the counter but leaves any session for that identity in
// place; only an explicit disconnect command removes sessions.
func (c *Controller) HandleMonitor(event channel.MonitorEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Type {
	case channel.Connected:
		c.liveConnections++
	case channel.Disconnected:
		c.liveConnections--
	}
	logger.Debug("Connection event %s from %s, %d connections live",
		event.Type, event.RemoteAddr, c.liveConnections)
}

// LiveConnections returns the current transport connection count
func (c *Controller) LiveConnections() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liveConnections
}

// Get reads a parameter path on behalf of the HTTP shim. The result keeps
// the owner's {leafName: value} convention.
func (c *Controller) Get(path string, metadata bool) (map[string]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ref := Resolve(path)
	owner, ok := c.owners[ref.Owner]
	if !ok {
		return nil, newControllerError(nil, "no owner registered for path %q", path)
	}

	value, err := owner.Get(ref.Sub, GetOptions{Metadata: metadata})
	if err != nil {
		return nil, newControllerError(err, "failed to get %q", path)
	}
	return value, nil
}

// Set writes a parameter path on behalf of the HTTP shim
func (c *Controller) Set(path string, body interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref := Resolve(path)
	owner, ok := c.owners[ref.Owner]
	if !ok {
		return newControllerError(nil, "no owner registered for path %q", path)
	}

	requestPath, _, wrapped := Denormalize(path, body)
	if _, err := owner.Put(requestPath, wrapped); err != nil {
		return newControllerError(err, "failed to set %q", path)
	}
	return nil
}

// touchSession returns the session for identity, creating it on first
// contact. The creating message itself does not count toward messageCount.
func (c *Controller) touchSession(identity string) *ClientSession {
	session, ok := c.sessions[identity]
	if !ok {
		session = newClientSession(identity)
		c.sessions[identity] = session
		logger.Info("New client session %s, %d sessions total", identity, len(c.sessions))
		return session
	}
	session.MessageReceived()
	return session
}

func (c *Controller) processMessage(session *ClientSession, env *Envelope) *Envelope {
	switch env.Verb {
	case VerbEnumerateOwners:
		return c.handleEnumerateOwners(env)
	case VerbGet:
		return c.handleGet(session, env)
	case VerbSet:
		return c.handleSet(env)
	case VerbSubscribe:
		return c.handleSubscribe(session, env)
	case VerbDisconnect:
		return c.handleDisconnect(session, env)
	default:
		logger.Warn("Unrecognized verb %q from %s", env.Verb, session.Identity)
		return NewNack(env.Verb, env.ID, nil)
	}
}

func (c *Controller) handleEnumerateOwners(env *Envelope) *Envelope {
	owners := make(map[string]interface{}, len(c.owners))
	for name, owner := range c.owners {
		owners[name] = ownerTypeName(owner)
	}
	return NewAck(VerbEnumerateOwners, env.ID, map[string]interface{}{
		"owners": owners,
	})
}

func (c *Controller) handleGet(session *ClientSession, env *Envelope) *Envelope {
	metadata := env.BoolParam("metadata", false)
	wantDelta := env.BoolParam("delta", false)
	// Metadata wrapping changes the tree shape, which the delta cache
	// cannot diff against plain values
	if metadata {
		wantDelta = false
	}

	result := make(map[string]interface{})
	for _, ref := range ResolveAll(env.StringsParam("paths")) {
		owner, ok := c.owners[ref.Owner]
		if !ok {
			logger.Warn("No owner registered for path %q, skipping", ref.Full)
			continue
		}
		value, err := owner.Get(ref.Sub, GetOptions{Metadata: metadata})
		if err != nil {
			logger.Warn("Get %q failed: %v", ref.Full, err)
			continue
		}
		normalized := Normalize(ref.Full, value)
		result[ref.Full] = session.UpdateParams(ref.Full, normalized, wantDelta)
	}
	return NewAck(VerbGet, env.ID, result)
}

func (c *Controller) handleSet(env *Envelope) *Envelope {
	result := make(map[string]interface{})
	for path, value := range env.MapParam("paths") {
		ref := Resolve(path)
		owner, ok := c.owners[ref.Owner]
		if !ok {
			logger.Warn("No owner registered for path %q, skipping", path)
			continue
		}
		requestPath, leafName, body := Denormalize(path, value)
		echoed, err := owner.Put(requestPath, body)
		if err != nil {
			logger.Warn("Set %q failed: %v", path, err)
			continue
		}
		if leafName != "" {
			result[path] = echoed[leafName]
		} else {
			result[path] = echoed
		}
	}
	return NewAck(VerbSet, env.ID, result)
}

func (c *Controller) handleSubscribe(session *ClientSession, env *Envelope) *Envelope {
	paths := env.StringsParam("paths")
	session.Subscribe(paths)
	// Intent only; nothing pushes updates yet
	logger.Info("Client %s subscribed to %v", session.Identity, paths)
	return NewAck(VerbSubscribe, env.ID, nil)
}

func (c *Controller) handleDisconnect(session *ClientSession, env *Envelope) *Envelope {
	delete(c.sessions, session.Identity)
	logger.Info("Client session %s removed, %d sessions remain", session.Identity, len(c.sessions))
	return NewAck(VerbDisconnect, env.ID, nil)
}

func encodeResponse(env *Envelope) []byte {
	data, err := env.Encode()
	if err != nil {
		logger.Error("Failed to encode response envelope: %v", err)
		return nil
	}
	return data
}
