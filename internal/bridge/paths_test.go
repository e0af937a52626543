package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		path      string
		wantOwner string
		wantSub   string
	}{
		{"owner/a/b", "owner", "a/b"},
		{"owner/leaf", "owner", "leaf"},
		{"owner", "owner", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		ref := Resolve(tt.path)
		assert.Equal(t, tt.path, ref.Full, "path %q", tt.path)
		assert.Equal(t, tt.wantOwner, ref.Owner, "path %q", tt.path)
		assert.Equal(t, tt.wantSub, ref.Sub, "path %q", tt.path)
	}
}

func TestResolveAll(t *testing.T) {
	refs := ResolveAll([]string{"a/x", "b"})
	assert.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0].Owner)
	assert.Equal(t, "x", refs[0].Sub)
	assert.Equal(t, "b", refs[1].Owner)
}

func TestNormalizeUnwrapsLeaf(t *testing.T) {
	got := Normalize("owner/leaf", map[string]interface{}{"leaf": 5})
	assert.Equal(t, 5, got)
}

func TestNormalizePassesThroughMismatchedKey(t *testing.T) {
	tree := map[string]interface{}{"other": 5}
	got := Normalize("owner/leaf", tree)
	assert.Equal(t, tree, got)
}

func TestNormalizePassesThroughMultiKeyNode(t *testing.T) {
	tree := map[string]interface{}{"leaf": 5, "other": 6}
	got := Normalize("owner/leaf", tree)
	assert.Equal(t, tree, got)
}

func TestNormalizePassesThroughScalar(t *testing.T) {
	assert.Equal(t, 3.2, Normalize("owner/leaf", 3.2))
}

func TestDenormalizeWrapsScalar(t *testing.T) {
	requestPath, leafName, body := Denormalize("owner/leaf", 5)
	assert.Equal(t, "owner", requestPath)
	assert.Equal(t, "leaf", leafName)
	assert.Equal(t, map[string]interface{}{"leaf": 5}, body)
}

func TestDenormalizeNestedPath(t *testing.T) {
	requestPath, leafName, body := Denormalize("owner/a/b", 1.5)
	assert.Equal(t, "owner/a", requestPath)
	assert.Equal(t, "b", leafName)
	assert.Equal(t, map[string]interface{}{"b": 1.5}, body)
}

func TestDenormalizePassesThroughNode(t *testing.T) {
	value := map[string]interface{}{"x": 1}
	requestPath, leafName, body := Denormalize("owner/branch", value)
	assert.Equal(t, "owner/branch", requestPath)
	assert.Equal(t, "", leafName)
	assert.Equal(t, value, body)
}

func TestDenormalizePassesThroughBareOwnerPath(t *testing.T) {
	requestPath, leafName, body := Denormalize("owner", 5)
	assert.Equal(t, "owner", requestPath)
	assert.Equal(t, "", leafName)
	assert.Equal(t, 5, body)
}
