package bridge

import (
	"reflect"
	"sort"
	"time"
)

// ClientSession holds the per-client state the controller keeps between
// messages: counters, timestamps, subscription intent and the parameter
// cache backing delta gets. Sessions are created on the first message from
// an unseen identity and removed only by an explicit disconnect command.
type ClientSession struct {
	Identity string

	messageCount    int
	lastMessageTime time.Time
	cache           map[string]interface{}
	subscribed      map[string]struct{}
}

func newClientSession(identity string) *ClientSession {
	return &ClientSession{
		Identity:        identity,
		lastMessageTime: time.Now(),
		cache:           make(map[string]interface{}),
		subscribed:      make(map[string]struct{}),
	}
}

// MessageReceived records activity for a message after the first
func (s *ClientSession) MessageReceived() {
	s.messageCount++
	s.lastMessageTime = time.Now()
}

// Subscribe records subscription intent for paths. No push mechanism
// consumes these yet; they are visible through introspection.
func (s *ClientSession) Subscribe(paths []string) {
	for _, path := range paths {
		s.subscribed[path] = struct{}{}
	}
}

// UpdateParams feeds a freshly fetched value into the cache and returns
// what the client should see. With wantDelta false, or on a path never
// fetched before, the value is cached whole and returned unchanged. On a
// cached path the cached tree is diffed against the new value: the result
// keeps the nesting shape but prunes unchanged leaves, and the cache is
// updated in place as the diff walks it. A cached scalar that did not
// change yields nil.
//
// The diff assumes cached and new nodes share key sets at every level;
// keys missing from the new value are skipped rather than validated. Note
// that a nested node reporting a change has its cache entry replaced by
// the pruned delta, so its unchanged sibling leaves drop out of the cache
// and later changes to them go unreported.
func (s *ClientSession) UpdateParams(path string, value interface{}, wantDelta bool) interface{} {
	cached, ok := s.cache[path]
	if !wantDelta || !ok {
		s.cache[path] = deepCopy(value)
		return value
	}

	cachedNode, cachedIsNode := cached.(map[string]interface{})
	valueNode, valueIsNode := value.(map[string]interface{})
	if cachedIsNode && valueIsNode {
		return buildDelta(cachedNode, valueNode)
	}

	if !reflect.DeepEqual(cached, value) {
		s.cache[path] = deepCopy(value)
		return value
	}
	return nil
}

// buildDelta walks cached against current, returning the changed subtree
// and mutating cached as it goes. Nested nodes always appear in the delta,
// empty when nothing under them changed; changed leaves appear with their
// new value, unchanged leaves are pruned.
func buildDelta(cached, current map[string]interface{}) map[string]interface{} {
	delta := make(map[string]interface{})
	for key, cachedValue := range cached {
		currentValue, present := current[key]
		if !present {
			continue
		}

		if cachedNode, isNode := cachedValue.(map[string]interface{}); isNode {
			currentNode, ok := currentValue.(map[string]interface{})
			if !ok {
				continue
			}
			nodeDelta := buildDelta(cachedNode, currentNode)
			delta[key] = nodeDelta
			// Only a non-empty delta replaces the cached subtree; an
			// unchanged poll must leave the cache intact so later
			// changes are still detected
			if len(nodeDelta) > 0 {
				cached[key] = nodeDelta
			}
			continue
		}

		if !reflect.DeepEqual(cachedValue, currentValue) {
			delta[key] = currentValue
			cached[key] = deepCopy(currentValue)
		}
	}
	return delta
}

// CachedParameterCount returns the number of cached paths
func (s *ClientSession) CachedParameterCount() int {
	return len(s.cache)
}

// AsTree renders the session for the introspection tree
func (s *ClientSession) AsTree() map[string]interface{} {
	paths := make([]string, 0, len(s.subscribed))
	for path := range s.subscribed {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return map[string]interface{}{
		"messageCount":         s.messageCount,
		"lastMessageTime":      s.lastMessageTime.Format(time.RFC3339Nano),
		"cachedParameterCount": len(s.cache),
		"subscribedPaths":      paths,
	}
}

func deepCopy(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(v))
		for key, item := range v {
			copied[key] = deepCopy(item)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(v))
		for i, item := range v {
			copied[i] = deepCopy(item)
		}
		return copied
	default:
		return value
	}
}
