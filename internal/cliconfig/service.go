// Package cliconfig backs the CLI commands that inspect and edit the user
// configuration file.
package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KafClaw/robotd/internal/config"
)

// step is one element of a dotted path: an object key or an array index.
type step struct {
	key   string
	index int
	array bool
}

// Effective returns the value at key in the configuration robots would
// actually start with: defaults, then the file, then environment overrides.
// "robots" entries are reported as written in the file.
func Effective(cfgPath, key string) (any, error) {
	uc, err := config.ReadUserConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg := config.DefaultRobotConfig()
	if err := config.Apply(cfg, uc.Base); err != nil {
		return nil, err
	}
	doc, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	if len(uc.Robots) > 0 {
		robots := make([]any, 0, len(uc.Robots))
		for _, raw := range uc.Robots {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			robots = append(robots, v)
		}
		doc["robots"] = robots
	}

	steps, err := parsePath(key)
	if err != nil {
		return nil, err
	}
	v, ok := lookup(doc, steps)
	if !ok {
		return nil, fmt.Errorf("path not found: %s", key)
	}
	return v, nil
}

// Document is the raw JSON object stored in the config file.
type Document struct {
	Path string
	root map[string]any
}

// Open reads the config file at cfgPath (resolved like the runtime does).
// A missing file opens as an empty document.
func Open(cfgPath string) (*Document, error) {
	resolved, err := config.ResolvePath(cfgPath)
	if err != nil {
		return nil, err
	}
	doc := &Document{Path: resolved, root: map[string]any{}}
	data, err := os.ReadFile(resolved)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &doc.root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", resolved, err)
	}
	if doc.root == nil {
		doc.root = map[string]any{}
	}
	return doc, nil
}

// Get returns the value stored at key, without defaults or overrides.
func (d *Document) Get(key string) (any, bool, error) {
	steps, err := parsePath(key)
	if err != nil {
		return nil, false, err
	}
	v, ok := lookup(d.root, steps)
	return v, ok, nil
}

// Set stores raw at key, creating intermediate objects and arrays.
// raw is decoded as JSON when possible and kept as a string otherwise.
func (d *Document) Set(key, raw string) error {
	steps, err := parsePath(key)
	if err != nil {
		return err
	}
	root, ok := assign(d.root, steps, decodeValue(raw)).(map[string]any)
	if !ok {
		return fmt.Errorf("invalid config root after set")
	}
	d.root = root
	return nil
}

// Unset removes key. It reports false when nothing was stored there.
func (d *Document) Unset(key string) (bool, error) {
	steps, err := parsePath(key)
	if err != nil {
		return false, err
	}
	parent, ok := lookup(d.root, steps[:len(steps)-1])
	if !ok {
		return false, nil
	}
	last := steps[len(steps)-1]
	if !last.array {
		obj, ok := parent.(map[string]any)
		if !ok {
			return false, nil
		}
		if _, ok := obj[last.key]; !ok {
			return false, nil
		}
		delete(obj, last.key)
		return true, nil
	}

	arr, ok := parent.([]any)
	if !ok || last.index >= len(arr) {
		return false, nil
	}
	// The root is an object, so an array parent is at least one step deep.
	arr = append(arr[:last.index], arr[last.index+1:]...)
	grand, _ := lookup(d.root, steps[:len(steps)-2])
	switch g := grand.(type) {
	case map[string]any:
		g[steps[len(steps)-2].key] = arr
	case []any:
		g[steps[len(steps)-2].index] = arr
	}
	return true, nil
}

// Save writes the document back with owner-only permissions.
func (d *Document) Save() error {
	if err := os.MkdirAll(filepath.Dir(d.Path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.Path, append(data, '\n'), 0o600)
}

func toMap(cfg *config.RobotConfig) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// parsePath splits "robots[0].robot.name" into steps.
func parsePath(path string) ([]step, error) {
	s := strings.TrimSpace(path)
	if s == "" {
		return nil, fmt.Errorf("path is empty")
	}
	var out []step
	for _, part := range strings.Split(s, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, rest, _ := strings.Cut(part, "[")
		if key = strings.TrimSpace(key); key != "" {
			out = append(out, step{key: key})
		}
		if rest == "" && !strings.Contains(part, "[") {
			continue
		}
		rest = "[" + rest
		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("invalid path %q: unexpected %q", path, rest)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("invalid path: missing closing ] in %q", path)
			}
			raw := strings.TrimSpace(rest[1:end])
			idx, err := strconv.Atoi(raw)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid array index %q in %q", raw, path)
			}
			out = append(out, step{index: idx, array: true})
			rest = rest[end+1:]
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("path is empty")
	}
	return out, nil
}

func decodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func lookup(node any, steps []step) (any, bool) {
	cur := node
	for _, st := range steps {
		if st.array {
			arr, ok := cur.([]any)
			if !ok || st.index >= len(arr) {
				return nil, false
			}
			cur = arr[st.index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[st.key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func assign(node any, steps []step, value any) any {
	if len(steps) == 0 {
		return value
	}
	st, rest := steps[0], steps[1:]
	if st.array {
		arr, _ := node.([]any)
		for len(arr) <= st.index {
			arr = append(arr, nil)
		}
		arr[st.index] = assign(arr[st.index], rest, value)
		return arr
	}
	obj, ok := node.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}
	obj[st.key] = assign(obj[st.key], rest, value)
	return obj
}
