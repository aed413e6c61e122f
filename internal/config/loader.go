package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".robotd"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ROBOTD"
)

// UserConfig is the parsed user configuration file.
// Base holds the top-level sections that configure the default robot;
// each Robots entry configures one additional robot.
type UserConfig struct {
	Path   string
	Base   json.RawMessage
	Robots []json.RawMessage
}

// ResolvePath returns the config file path to load.
// Priority: explicit argument > ROBOTD_CONFIG > <home>/.robotd/config.json.
func ResolvePath(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return expandHome(p)
	}
	if p := strings.TrimSpace(os.Getenv("ROBOTD_CONFIG")); p != "" {
		return expandHome(p)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("ROBOTD_HOME")); h != "" {
		return expandHome(h)
	}
	return os.UserHomeDir()
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// ReadUserConfig loads the user configuration file at path (resolved with
// ResolvePath). A missing file yields an empty UserConfig and no error.
// "$include" directives are merged and ${VAR} references substituted.
func ReadUserConfig(path string) (*UserConfig, error) {
	LoadEnvFiles()

	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}
	uc := &UserConfig{Path: resolved}
	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		return uc, nil
	}

	obj, err := loadConfigObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", resolved, err)
	}

	if robots, ok := obj["robots"]; ok {
		list, ok := robots.([]any)
		if !ok {
			return nil, fmt.Errorf("load config %s: robots must be an array", resolved)
		}
		for i, entry := range list {
			data, err := json.Marshal(entry)
			if err != nil {
				return nil, fmt.Errorf("load config %s: robots[%d]: %w", resolved, i, err)
			}
			uc.Robots = append(uc.Robots, data)
		}
		delete(obj, "robots")
	}

	uc.Base, err = json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", resolved, err)
	}
	return uc, nil
}

// Apply decodes raw over cfg and then applies environment overrides.
// Priority: environment > file > existing values.
func Apply(cfg *RobotConfig, raw json.RawMessage) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return err
	}
	normalize(cfg)
	return nil
}

// ApplyEnv overrides cfg from ROBOTD_ROBOT_*, ROBOTD_STORE_* and ROBOTD_AUDIT_*.
func ApplyEnv(cfg *RobotConfig) error {
	if err := envconfig.Process(EnvPrefix+"_ROBOT", &cfg.Robot); err != nil {
		return fmt.Errorf("env robot: %w", err)
	}
	if err := envconfig.Process(EnvPrefix+"_STORE", &cfg.Store); err != nil {
		return fmt.Errorf("env store: %w", err)
	}
	if err := envconfig.Process(EnvPrefix+"_AUDIT", &cfg.Audit); err != nil {
		return fmt.Errorf("env audit: %w", err)
	}
	return nil
}

func normalize(cfg *RobotConfig) {
	cfg.Robot.Adapter = strings.ToLower(strings.TrimSpace(cfg.Robot.Adapter))
	cfg.Robot.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Robot.LogLevel))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultDriver
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = DefaultNamespace
	}
	if cfg.Audit.Topic == "" {
		cfg.Audit.Topic = DefaultAuditTopic
	}
	if cfg.Adapters == nil {
		cfg.Adapters = map[string]json.RawMessage{}
	}
	for k, v := range cfg.Adapters {
		if nk := strings.ToLower(strings.TrimSpace(k)); nk != k {
			delete(cfg.Adapters, k)
			cfg.Adapters[nk] = v
		}
	}
	for k, v := range cfg.Handlers {
		if nk := strings.ToLower(strings.TrimSpace(k)); nk != k {
			delete(cfg.Handlers, k)
			cfg.Handlers[nk] = v
		}
	}
}

// StorePath returns the store path with "~" expanded.
func (s StoreConfig) StorePath() (string, error) {
	if s.Path == ":memory:" {
		return s.Path, nil
	}
	return expandHome(s.Path)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// includeKey lists files merged underneath the object that names them.
const includeKey = "$include"

// fileLoader reads a config file and the files it includes. stack holds the
// files being loaded so an include cycle is reported instead of recursing.
type fileLoader struct {
	stack []string
}

func loadConfigObject(path string) (map[string]any, error) {
	var l fileLoader
	return l.load(path)
}

func (l *fileLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if slices.Contains(l.stack, abs) {
		return nil, fmt.Errorf("config include cycle: %s", strings.Join(append(l.stack, abs), " -> "))
	}
	l.stack = append(l.stack, abs)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	obj := map[string]any{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]any{}
	}

	includes, err := includeList(obj[includeKey])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	delete(obj, includeKey)

	out := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		child, err := l.load(inc)
		if err != nil {
			return nil, err
		}
		mergeObjects(out, child)
	}
	mergeObjects(out, expandEnvRefs(obj).(map[string]any))
	return out, nil
}

// includeList accepts a single path or an array of paths. Blank entries
// are ignored.
func includeList(v any) ([]string, error) {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		items = []any{t}
	case []any:
		items = t
	default:
		return nil, fmt.Errorf("%s must be a string or an array of strings", includeKey)
	}
	var out []string
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings", includeKey)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// mergeObjects overlays src onto dst. Nested objects merge key by key; any
// other value, arrays included, replaces what dst held.
func mergeObjects(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		target, ok := dst[k].(map[string]any)
		if !ok {
			target = map[string]any{}
			dst[k] = target
		}
		mergeObjects(target, sub)
	}
}

// expandEnvRefs replaces ${VAR} in every string value with the variable's
// value. References to unset variables are left as written.
func expandEnvRefs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = expandEnvRefs(item)
		}
	case []any:
		for i, item := range t {
			t[i] = expandEnvRefs(item)
		}
	case string:
		return envRef.ReplaceAllStringFunc(t, func(ref string) string {
			if val, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
				return val
			}
			return ref
		})
	}
	return v
}
