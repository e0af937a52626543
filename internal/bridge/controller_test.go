package bridge

import (
	"encoding/json"
	"testing"

	"github.com/codefionn/parambridge/internal/channel"
	"github.com/codefionn/parambridge/internal/paramtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()

	c := NewController()
	tree := paramtree.New(map[string]interface{}{
		"pos": 3.2,
		"vel": 1.5,
		"status": map[string]interface{}{
			"connected": true,
			"mode":      "idle",
		},
	})
	require.NoError(t, c.RegisterOwner("m", NewTreeOwner("m", tree)))
	require.NoError(t, c.Initialize())
	return c
}

// roundTrip sends one command through the receive path and decodes the
// response envelope through JSON, the way a wire client would see it
func roundTrip(t *testing.T, c *Controller, identity string, env *Envelope) *Envelope {
	t.Helper()

	payload, err := env.Encode()
	require.NoError(t, err)

	raw := c.HandleReceive(identity, payload)
	require.NotNil(t, raw)

	var response Envelope
	require.NoError(t, json.Unmarshal(raw, &response))
	return &response
}

func TestRegisterOwnerValidation(t *testing.T) {
	c := NewController()
	tree := paramtree.New(map[string]interface{}{"x": 1})

	assert.Error(t, c.RegisterOwner("", NewTreeOwner("", tree)))
	assert.Error(t, c.RegisterOwner("a/b", NewTreeOwner("a/b", tree)))

	require.NoError(t, c.RegisterOwner("a", NewTreeOwner("a", tree)))
	assert.Error(t, c.RegisterOwner("a", NewTreeOwner("a", tree)))
}

func TestEnumerateOwners(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbEnumerateOwners, 7, nil))

	assert.Equal(t, KindAck, response.Kind)
	assert.Equal(t, int64(7), response.ID)
	owners := response.Params["owners"].(map[string]interface{})
	assert.Equal(t, "TreeOwner", owners["m"])
	assert.Equal(t, "TreeOwner", owners["bridge"])
}

func TestGetLeaf(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))

	assert.Equal(t, KindAck, response.Kind)
	assert.Equal(t, VerbGet, response.Verb)
	assert.Equal(t, 3.2, response.Params["m/pos"])
}

func TestGetBranchKeepsShape(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/status"},
	}))

	status := response.Params["m/status"].(map[string]interface{})
	assert.Equal(t, "idle", status["mode"])
	assert.Equal(t, true, status["connected"])
}

func TestGetWithMetadata(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths":    []interface{}{"m/pos"},
		"metadata": true,
	}))

	meta := response.Params["m/pos"].(map[string]interface{})
	assert.Equal(t, 3.2, meta["value"])
	assert.Equal(t, "float", meta["type"])
	assert.Equal(t, true, meta["writeable"])
}

func TestGetUnknownOwnerSkipped(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos", "ghost/pos"},
	}))

	assert.Equal(t, KindAck, response.Kind)
	assert.Contains(t, response.Params, "m/pos")
	assert.NotContains(t, response.Params, "ghost/pos")
}

func TestGetInvalidPathSkipped(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/missing"},
	}))

	assert.Equal(t, KindAck, response.Kind)
	assert.Empty(t, response.Params)
}

func TestGetDeltaAcrossQueries(t *testing.T) {
	c := newTestController(t)

	// First delta get returns the full subtree and primes the cache
	response := roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/status"},
		"delta": true,
	}))
	status := response.Params["m/status"].(map[string]interface{})
	assert.Len(t, status, 2)

	// Nothing changed: everything pruned
	response = roundTrip(t, c, "c1", NewCommand(VerbGet, 2, map[string]interface{}{
		"paths": []interface{}{"m/status"},
		"delta": true,
	}))
	assert.Equal(t, map[string]interface{}{}, response.Params["m/status"])

	// Change one leaf through set, delta reports only it
	roundTrip(t, c, "c1", NewCommand(VerbSet, 3, map[string]interface{}{
		"paths": map[string]interface{}{"m/status/mode": "moving"},
	}))
	response = roundTrip(t, c, "c1", NewCommand(VerbGet, 4, map[string]interface{}{
		"paths": []interface{}{"m/status"},
		"delta": true,
	}))
	assert.Equal(t, map[string]interface{}{"mode": "moving"}, response.Params["m/status"])
}

func TestGetDeltaCachesArePerSession(t *testing.T) {
	c := newTestController(t)

	roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/status"},
		"delta": true,
	}))

	// A different identity still sees the full subtree
	response := roundTrip(t, c, "c2", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/status"},
		"delta": true,
	}))
	status := response.Params["m/status"].(map[string]interface{})
	assert.Len(t, status, 2)
}

func TestGetMetadataDisablesDelta(t *testing.T) {
	c := newTestController(t)

	env := NewCommand(VerbGet, 1, map[string]interface{}{
		"paths":    []interface{}{"m/pos"},
		"metadata": true,
		"delta":    true,
	})
	roundTrip(t, c, "c1", env)

	// A repeat with identical values must not be pruned
	response := roundTrip(t, c, "c1", env)
	meta := response.Params["m/pos"].(map[string]interface{})
	assert.Equal(t, 3.2, meta["value"])
}

func TestSetLeaf(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbSet, 1, map[string]interface{}{
		"paths": map[string]interface{}{"m/vel": 1.5},
	}))

	assert.Equal(t, KindAck, response.Kind)
	assert.Equal(t, VerbSet, response.Verb)
	assert.Equal(t, 1.5, response.Params["m/vel"])
}

func TestSetNestedLeaf(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbSet, 1, map[string]interface{}{
		"paths": map[string]interface{}{"m/status/mode": "moving"},
	}))
	assert.Equal(t, "moving", response.Params["m/status/mode"])

	// The owner tree actually changed
	response = roundTrip(t, c, "c1", NewCommand(VerbGet, 2, map[string]interface{}{
		"paths": []interface{}{"m/status/mode"},
	}))
	assert.Equal(t, "moving", response.Params["m/status/mode"])
}

func TestSetUnknownOwnerSkipped(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbSet, 1, map[string]interface{}{
		"paths": map[string]interface{}{"ghost/vel": 1.5},
	}))

	assert.Equal(t, KindAck, response.Kind)
	assert.Empty(t, response.Params)
}

func TestSetInvalidValueSkipped(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbSet, 1, map[string]interface{}{
		"paths": map[string]interface{}{"m/bogus": 1},
	}))

	assert.Equal(t, KindAck, response.Kind)
	assert.Empty(t, response.Params)
}

func TestSubscribeAcksAndRecords(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand(VerbSubscribe, 9, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))

	assert.Equal(t, KindAck, response.Kind)
	assert.Equal(t, int64(9), response.ID)
	assert.Equal(t, map[string]interface{}{}, response.Params)

	session := c.sessions["c1"]
	require.NotNil(t, session)
	assert.Equal(t, []string{"m/pos"}, session.AsTree()["subscribedPaths"])
}

func TestDisconnectRemovesSession(t *testing.T) {
	c := newTestController(t)

	roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))
	require.Contains(t, c.sessions, "c1")

	response := roundTrip(t, c, "c1", NewCommand(VerbDisconnect, 2, nil))
	assert.Equal(t, KindAck, response.Kind)
	assert.Equal(t, map[string]interface{}{}, response.Params)
	assert.NotContains(t, c.sessions, "c1")

	// Another command under the same identity starts a fresh session and
	// must not disturb other clients
	roundTrip(t, c, "c2", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))
	roundTrip(t, c, "c1", NewCommand(VerbGet, 3, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))
	assert.Contains(t, c.sessions, "c1")
	assert.Contains(t, c.sessions, "c2")
}

func TestUnknownVerbNacked(t *testing.T) {
	c := newTestController(t)

	response := roundTrip(t, c, "c1", NewCommand("explode", 42, nil))

	assert.Equal(t, KindNack, response.Kind)
	assert.Equal(t, "explode", response.Verb)
	assert.Equal(t, int64(42), response.ID)
	assert.Equal(t, map[string]interface{}{}, response.Params)
}

func TestMalformedMessageNacked(t *testing.T) {
	c := newTestController(t)

	raw := c.HandleReceive("c1", []byte("not json at all"))
	require.NotNil(t, raw)

	var response Envelope
	require.NoError(t, json.Unmarshal(raw, &response))
	assert.Equal(t, KindNack, response.Kind)
	assert.Equal(t, VerbError, response.Verb)
	assert.Equal(t, int64(0), response.ID)
	assert.NotEmpty(t, response.Params["error"])
}

func TestWrongKindNacked(t *testing.T) {
	c := newTestController(t)

	env := &Envelope{Kind: KindAck, Verb: VerbGet, ID: 5}
	payload, err := env.Encode()
	require.NoError(t, err)

	var response Envelope
	require.NoError(t, json.Unmarshal(c.HandleReceive("c1", payload), &response))
	assert.Equal(t, KindNack, response.Kind)
	assert.Equal(t, VerbError, response.Verb)
}

func TestMessageCountStartsAtZero(t *testing.T) {
	c := newTestController(t)

	roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))
	assert.Equal(t, 0, c.sessions["c1"].AsTree()["messageCount"])

	roundTrip(t, c, "c1", NewCommand(VerbGet, 2, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))
	assert.Equal(t, 1, c.sessions["c1"].AsTree()["messageCount"])
}

func TestMonitorTracksConnections(t *testing.T) {
	c := newTestController(t)

	c.HandleMonitor(channel.MonitorEvent{Type: channel.Connected, ConnID: "x"})
	c.HandleMonitor(channel.MonitorEvent{Type: channel.Connected, ConnID: "y"})
	assert.Equal(t, 2, c.LiveConnections())

	c.HandleMonitor(channel.MonitorEvent{Type: channel.Disconnected, ConnID: "x"})
	assert.Equal(t, 1, c.LiveConnections())
}

func TestMonitorDisconnectLeavesSessions(t *testing.T) {
	c := newTestController(t)

	roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))
	c.HandleMonitor(channel.MonitorEvent{Type: channel.Disconnected, ConnID: "x"})

	// Transport drops do not clean up sessions; only disconnect commands do
	assert.Contains(t, c.sessions, "c1")
}

func TestIntrospectionOwner(t *testing.T) {
	c := newTestController(t)

	c.HandleMonitor(channel.MonitorEvent{Type: channel.Connected, ConnID: "x"})
	roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))

	response := roundTrip(t, c, "c1", NewCommand(VerbGet, 2, map[string]interface{}{
		"paths": []interface{}{
			"bridge/owners",
			"bridge/liveConnectionCount",
			"bridge/sessionCount",
		},
	}))

	owners := response.Params["bridge/owners"].([]interface{})
	assert.ElementsMatch(t, []interface{}{"bridge", "m"}, owners)
	assert.Equal(t, 1.0, response.Params["bridge/liveConnectionCount"])
	assert.Equal(t, 1.0, response.Params["bridge/sessionCount"])
}

func TestIntrospectionClients(t *testing.T) {
	c := newTestController(t)

	roundTrip(t, c, "c1", NewCommand(VerbGet, 1, map[string]interface{}{
		"paths": []interface{}{"m/pos"},
	}))

	tree, err := c.Get("bridge/clients", false)
	require.NoError(t, err)

	clients := tree["clients"].(map[string]interface{})
	require.Contains(t, clients, "c1")
	info := clients["c1"].(map[string]interface{})
	assert.Equal(t, 1, info["cachedParameterCount"])
}

func TestControllerGetForHTTP(t *testing.T) {
	c := newTestController(t)

	value, err := c.Get("m/pos", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"pos": 3.2}, value)

	_, err = c.Get("ghost/pos", false)
	var ctrlErr *ControllerError
	require.ErrorAs(t, err, &ctrlErr)

	_, err = c.Get("m/missing", false)
	require.ErrorAs(t, err, &ctrlErr)
}

func TestControllerSetForHTTP(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.Set("m/vel", 2.5))
	value, err := c.Get("m/vel", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"vel": 2.5}, value)

	var ctrlErr *ControllerError
	require.ErrorAs(t, c.Set("ghost/vel", 1.0), &ctrlErr)
	require.ErrorAs(t, c.Set("m/bogus", 1.0), &ctrlErr)
}
