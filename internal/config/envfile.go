package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// EnvFileCandidates lists the env files LoadEnvFiles reads, in order:
// $ROBOTD_ENV_FILE, then env files under the robotd home.
func EnvFileCandidates() []string {
	var out []string
	if explicit := strings.TrimSpace(os.Getenv("ROBOTD_ENV_FILE")); explicit != "" {
		out = append(out, explicit)
	}
	if home, err := resolveHomeDir(); err == nil {
		out = append(out,
			filepath.Join(home, ".config", "robotd", "env"),
			filepath.Join(home, ConfigDir, "env"),
		)
	}
	return out
}

// LoadEnvFiles sets variables from every readable candidate file and
// returns the files that were read. Variables already present in the
// process environment are never overridden, so earlier files win.
func LoadEnvFiles() []string {
	var loaded []string
	seen := make(map[string]bool)
	for _, p := range EnvFileCandidates() {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := loadEnvFile(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := parseEnvLine(sc.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return sc.Err()
}

// parseEnvLine accepts KEY=value, optionally prefixed by "export" and with
// the value in single or double quotes. Blank and # lines are skipped.
func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, ok = strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
		val = val[1 : n-1]
	}
	return key, val, true
}
