package bridge

import (
	"reflect"

	"github.com/codefionn/parambridge/internal/paramtree"
)

// GetOptions modifies how an owner reads a path
type GetOptions struct {
	// Metadata wraps each leaf as {value, type, writeable} instead of the
	// bare value
	Metadata bool
}

// Owner is a preregistered component holding a subtree of parameters. Get
// takes the owner-local sub-path; Put takes the full client path including
// the owner name, matching the put request path produced by Denormalize.
type Owner interface {
	Get(subPath string, opts GetOptions) (map[string]interface{}, error)
	Put(path string, body interface{}) (map[string]interface{}, error)
}

// TreeOwner serves a parameter tree as an owner. The bridge uses it both
// for seeded owners loaded from config and for its own introspection tree.
type TreeOwner struct {
	name string
	tree *paramtree.Tree
}

// NewTreeOwner wraps tree as an owner registered under name
func NewTreeOwner(name string, tree *paramtree.Tree) *TreeOwner {
	return &TreeOwner{name: name, tree: tree}
}

// Name returns the owner name
func (o *TreeOwner) Name() string {
	return o.name
}

// Get reads an owner-local sub-path from the tree
func (o *TreeOwner) Get(subPath string, opts GetOptions) (map[string]interface{}, error) {
	return o.tree.Get(subPath, opts.Metadata)
}

// Put applies body at path and echoes back the resulting values for the
// keys that were set
func (o *TreeOwner) Put(path string, body interface{}) (map[string]interface{}, error) {
	subPath := o.stripName(path)
	if err := o.tree.Set(subPath, body); err != nil {
		return nil, err
	}

	node, isNode := body.(map[string]interface{})
	if !isNode {
		return o.tree.Get(subPath, false)
	}

	result := make(map[string]interface{}, len(node))
	for key := range node {
		readPath := key
		if subPath != "" {
			readPath = subPath + "/" + key
		}
		value, err := o.tree.Get(readPath, false)
		if err != nil {
			return nil, err
		}
		result[key] = value[key]
	}
	return result, nil
}

// stripName removes the leading owner-name segment from a full client path
func (o *TreeOwner) stripName(path string) string {
	if path == o.name {
		return ""
	}
	prefix := o.name + "/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

// ownerTypeName reports the concrete type of an owner for the
// enumerate-owners response
func ownerTypeName(owner Owner) string {
	t := reflect.TypeOf(owner)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
