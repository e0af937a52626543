package bridge

import "strings"

// PathRef is a client path split into its owner and owner-local parts
type PathRef struct {
	// Full is the path as the client sent it
	Full string
	// Owner is the text before the first slash; owner names never
	// contain slashes
	Owner string
	// Sub is the text after the first slash, empty when the path is the
	// bare owner name
	Sub string
}

// Resolve splits a client path at the first slash
func Resolve(path string) PathRef {
	owner, sub, found := strings.Cut(path, "/")
	if !found {
		return PathRef{Full: path, Owner: path}
	}
	return PathRef{Full: path, Owner: owner, Sub: sub}
}

// ResolveAll resolves a list of client paths
func ResolveAll(paths []string) []PathRef {
	refs := make([]PathRef, len(paths))
	for i, path := range paths {
		refs[i] = Resolve(path)
	}
	return refs
}

// Normalize unwraps an owner's leaf-get convention. Owners return a leaf
// get as {leafName: value}; clients expect the bare value. A map with
// exactly one key matching the last segment of path is unwrapped, anything
// else passes through unchanged.
func Normalize(path string, tree interface{}) interface{} {
	node, ok := tree.(map[string]interface{})
	if !ok || len(node) != 1 {
		return tree
	}
	leaf := lastSegment(path)
	if value, ok := node[leaf]; ok {
		return value
	}
	return tree
}

// Denormalize wraps a bare client value into the {leafName: value} form an
// owner's put expects. A scalar value on a path containing a slash is split
// at the last slash: the prefix becomes the put request path, the suffix
// the leaf name, and the value is wrapped under the leaf name. A map value,
// or a path without a slash, passes through with an empty leaf name.
func Denormalize(path string, value interface{}) (requestPath string, leafName string, body interface{}) {
	if _, isNode := value.(map[string]interface{}); isNode {
		return path, "", value
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path, "", value
	}
	leafName = path[idx+1:]
	return path[:idx], leafName, map[string]interface{}{leafName: value}
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
