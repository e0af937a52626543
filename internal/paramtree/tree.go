// Package paramtree implements a hierarchical parameter tree with path-based
// access. Branch nodes are string-keyed maps; leaves are plain values or
// Getter callbacks evaluated on read. A get of a leaf path returns the leaf
// wrapped as a single-entry map keyed by the final path segment, which is the
// convention parameter owners expose to the bridge.
package paramtree

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Getter is a callback leaf, evaluated on every read. Getter-backed
// parameters are read-only.
type Getter func() interface{}

// TreeError reports a failed parameter tree access
type TreeError struct {
	Path string
	Msg  string
}

func (e *TreeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Msg, e.Path)
}

func invalidPath(path string) error {
	return &TreeError{Path: path, Msg: "invalid path"}
}

func readOnly(path string) error {
	return &TreeError{Path: path, Msg: "parameter is read-only"}
}

// Tree is a hierarchical parameter tree
type Tree struct {
	root map[string]interface{}
}

// New creates a parameter tree from the given root mapping. Nested maps form
// branches; any other value, including a Getter, forms a leaf.
func New(root map[string]interface{}) *Tree {
	if root == nil {
		root = map[string]interface{}{}
	}
	return &Tree{root: root}
}

// FromJSONFile loads a parameter tree from a JSON object file
func FromJSONFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file %s: %w", path, err)
	}

	var root map[string]interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}
	return New(root), nil
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// Get returns the parameters at path. A leaf path yields a single-entry map
// keyed by the final path segment; a branch path yields the final segment
// mapped to the resolved subtree; the empty path yields the whole tree.
// When withMetadata is set, leaves are wrapped as
// {"value": v, "type": t, "writeable": bool}.
func (t *Tree) Get(path string, withMetadata bool) (map[string]interface{}, error) {
	segments := splitPath(path)

	node := interface{}(t.root)
	for _, seg := range segments {
		branch, ok := node.(map[string]interface{})
		if !ok {
			return nil, invalidPath(path)
		}
		child, ok := branch[seg]
		if !ok {
			return nil, invalidPath(path)
		}
		node = child
	}

	resolved := resolve(node, withMetadata)
	if len(segments) == 0 {
		// The root is always a branch
		return resolved.(map[string]interface{}), nil
	}
	return map[string]interface{}{segments[len(segments)-1]: resolved}, nil
}

// Set writes parameters at path. A mapping value is merged into the branch at
// path, validating that every key exists; any other value replaces the leaf
// at path. Getter-backed leaves reject writes.
func (t *Tree) Set(path string, data interface{}) error {
	segments := splitPath(path)

	// Walk to the addressed node, remembering its parent so a leaf can be
	// replaced in place
	parent := t.root
	node := interface{}(t.root)
	last := ""
	for _, seg := range segments {
		branch, ok := node.(map[string]interface{})
		if !ok {
			return invalidPath(path)
		}
		child, ok := branch[seg]
		if !ok {
			return invalidPath(path)
		}
		parent = branch
		node = child
		last = seg
	}

	if mapping, ok := data.(map[string]interface{}); ok {
		branch, ok := node.(map[string]interface{})
		if !ok {
			return invalidPath(path)
		}
		return t.merge(branch, mapping, path)
	}

	// Scalar write needs an addressable leaf
	if len(segments) == 0 {
		return invalidPath(path)
	}
	if _, ok := node.(Getter); ok {
		return readOnly(path)
	}
	if _, ok := node.(map[string]interface{}); ok {
		return invalidPath(path)
	}
	parent[last] = data
	return nil
}

func (t *Tree) merge(branch map[string]interface{}, data map[string]interface{}, path string) error {
	for key, value := range data {
		childPath := key
		if path != "" {
			childPath = strings.TrimRight(path, "/") + "/" + key
		}

		current, ok := branch[key]
		if !ok {
			return invalidPath(childPath)
		}

		if childBranch, ok := current.(map[string]interface{}); ok {
			childData, ok := value.(map[string]interface{})
			if !ok {
				return invalidPath(childPath)
			}
			if err := t.merge(childBranch, childData, childPath); err != nil {
				return err
			}
			continue
		}

		if _, ok := current.(Getter); ok {
			return readOnly(childPath)
		}
		branch[key] = value
	}
	return nil
}

// resolve evaluates Getter leaves and optionally wraps leaves with metadata
func resolve(node interface{}, withMetadata bool) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, child := range v {
			out[key] = resolve(child, withMetadata)
		}
		return out
	case Getter:
		value := v()
		if withMetadata {
			return leafMetadata(value, false)
		}
		return value
	default:
		if withMetadata {
			return leafMetadata(v, true)
		}
		return v
	}
}

func leafMetadata(value interface{}, writeable bool) map[string]interface{} {
	return map[string]interface{}{
		"value":     value,
		"type":      typeName(value),
		"writeable": writeable,
	}
}

func typeName(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "str"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case []interface{}, []string:
		return "list"
	default:
		return "object"
	}
}
