// Package kv provides the namespaced key-value store used for robot state
// and authorization groups.
package kv

import (
	"context"
	"strings"
)

// Separator joins namespace segments and keys.
const Separator = ":"

// Store is a namespaced key-value store with set and hash values.
// Every operation is atomic on its own; nothing spans operations.
type Store interface {
	// SAdd adds member to the set at key and reports whether it was added.
	SAdd(ctx context.Context, key, member string) (bool, error)
	// SRem removes member from the set at key and reports whether it was present.
	SRem(ctx context.Context, key, member string) (bool, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	// SMembers returns the members of the set at key in sorted order.
	SMembers(ctx context.Context, key string) ([]string, error)
	HSet(ctx context.Context, key, field, value string) error
	// HGetAll returns an empty map when key does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Keys returns the keys in this namespace matching a glob pattern
	// ("*", "?", "[...]"), relative to the namespace and sorted.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Namespace returns a view of the store whose keys are prefixed by ns.
	Namespace(ns string) Store
	// Prefix is the absolute key prefix of this view ("" at the root).
	Prefix() string
}

// JoinPrefix appends namespace segment ns to prefix.
func JoinPrefix(prefix, ns string) string {
	ns = strings.Trim(ns, Separator)
	if ns == "" {
		return prefix
	}
	return prefix + ns + Separator
}

// globEscape makes s match itself literally inside a GLOB pattern.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
