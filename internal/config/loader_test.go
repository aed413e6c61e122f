package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolvePathPriority(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("ROBOTD_CONFIG", "")
	t.Setenv("ROBOTD_HOME", tmp)

	got, err := ResolvePath("")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(tmp, ".robotd", "config.json"); got != want {
		t.Errorf("home default: got %s want %s", got, want)
	}

	t.Setenv("ROBOTD_CONFIG", "/etc/robotd.json")
	if got, _ := ResolvePath(""); got != "/etc/robotd.json" {
		t.Errorf("env override: got %s", got)
	}
	if got, _ := ResolvePath("/tmp/explicit.json"); got != "/tmp/explicit.json" {
		t.Errorf("explicit: got %s", got)
	}
}

func TestReadUserConfigMissingFile(t *testing.T) {
	uc, err := ReadUserConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(uc.Base) != 0 || len(uc.Robots) != 0 {
		t.Fatalf("expected empty config, got %+v", uc)
	}
}

func TestReadUserConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"robot": `)
	if _, err := ReadUserConfig(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestReadUserConfigSplitsRobots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"robot": {"name": "Main", "admins": ["1"]},
		"robots": [
			{"robot": {"name": "Second"}},
			{"robot": {"name": "Third", "adapter": "IRC"}}
		]
	}`)

	uc, err := ReadUserConfig(path)
	if err != nil {
		t.Fatalf("ReadUserConfig: %v", err)
	}
	if len(uc.Robots) != 2 {
		t.Fatalf("expected 2 robots, got %d", len(uc.Robots))
	}

	base := DefaultRobotConfig()
	if err := Apply(base, uc.Base); err != nil {
		t.Fatal(err)
	}
	if base.Robot.Name != "Main" || !base.IsAdmin("1") {
		t.Errorf("unexpected base config: %+v", base.Robot)
	}

	third := DefaultRobotConfig()
	if err := Apply(third, uc.Robots[1]); err != nil {
		t.Fatal(err)
	}
	if third.Robot.Name != "Third" || third.Robot.Adapter != "irc" {
		t.Errorf("unexpected robot config: %+v", third.Robot)
	}

	var rawBase map[string]any
	if err := json.Unmarshal(uc.Base, &rawBase); err != nil {
		t.Fatal(err)
	}
	if _, ok := rawBase["robots"]; ok {
		t.Error("robots must be stripped from the base section")
	}
}

func TestReadUserConfigIncludesAndEnvSubstitution(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROBOTD_TEST_ADMIN", "99")
	writeFile(t, filepath.Join(dir, "store.json"), `{"store": {"path": ":memory:"}}`)
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{
		"$include": "store.json",
		"robot": {"admins": ["${ROBOTD_TEST_ADMIN}"]}
	}`)

	uc, err := ReadUserConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultRobotConfig()
	if err := Apply(cfg, uc.Base); err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Path != ":memory:" {
		t.Errorf("include not merged: %+v", cfg.Store)
	}
	if !cfg.IsAdmin("99") {
		t.Errorf("env not substituted: %v", cfg.Robot.Admins)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("defaults must survive partial sections, got %q", cfg.Store.Driver)
	}
}

func TestReadUserConfigIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"$include": "b.json"}`)
	writeFile(t, filepath.Join(dir, "b.json"), `{"$include": "a.json"}`)
	if _, err := ReadUserConfig(filepath.Join(dir, "a.json")); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ROBOTD_ROBOT_LOG_LEVEL", "DEBUG")
	t.Setenv("ROBOTD_ROBOT_ADMINS", "7,8")
	t.Setenv("ROBOTD_STORE_PATH", "/var/lib/robotd.db")
	t.Setenv("ROBOTD_AUDIT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := DefaultRobotConfig()
	if err := Apply(cfg, json.RawMessage(`{"robot":{"logLevel":"error"}}`)); err != nil {
		t.Fatal(err)
	}
	if cfg.Robot.LogLevel != "debug" {
		t.Errorf("env should win over file, got %s", cfg.Robot.LogLevel)
	}
	if !cfg.IsAdmin("7") || !cfg.IsAdmin("8") {
		t.Errorf("admins not overridden: %v", cfg.Robot.Admins)
	}
	if cfg.Store.Path != "/var/lib/robotd.db" {
		t.Errorf("store path not overridden: %s", cfg.Store.Path)
	}
	if got := cfg.Audit.Brokers(); len(got) != 2 || got[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", got)
	}
}

func TestLoadEnvFileParsesAndRespectsExistingValues(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "env")
	writeFile(t, envPath, `
# comment
export ROBOTD_T_FOO=bar
ROBOTD_T_QUOTED="hello world"
ROBOTD_T_SINGLE='x y'
INVALID_LINE
`)
	t.Setenv("ROBOTD_T_FOO", "existing")
	t.Setenv("ROBOTD_T_QUOTED", "")
	os.Unsetenv("ROBOTD_T_QUOTED")
	t.Setenv("ROBOTD_T_SINGLE", "")
	os.Unsetenv("ROBOTD_T_SINGLE")

	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("ROBOTD_T_FOO"); got != "existing" {
		t.Errorf("expected existing value preserved, got %q", got)
	}
	if got := os.Getenv("ROBOTD_T_QUOTED"); got != "hello world" {
		t.Errorf("expected quoted value loaded, got %q", got)
	}
	if got := os.Getenv("ROBOTD_T_SINGLE"); got != "x y" {
		t.Errorf("expected single-quoted value loaded, got %q", got)
	}
}

func TestLoadEnvFilesReportsReadFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROBOTD_HOME", dir)
	explicit := filepath.Join(dir, "explicit.env")
	writeFile(t, explicit, "ROBOTD_T_ORDER=explicit\n")
	writeFile(t, filepath.Join(dir, ConfigDir, "env"), "ROBOTD_T_ORDER=home\nROBOTD_T_HOME_ONLY=yes\n")
	t.Setenv("ROBOTD_ENV_FILE", explicit)
	for _, k := range []string{"ROBOTD_T_ORDER", "ROBOTD_T_HOME_ONLY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	loaded := LoadEnvFiles()
	if len(loaded) != 2 {
		t.Fatalf("loaded = %v", loaded)
	}
	if got := os.Getenv("ROBOTD_T_ORDER"); got != "explicit" {
		t.Errorf("earlier file should win, got %q", got)
	}
	if got := os.Getenv("ROBOTD_T_HOME_ONLY"); got != "yes" {
		t.Errorf("home env file not read, got %q", got)
	}
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		line, key, val string
		ok             bool
	}{
		{"A=b", "A", "b", true},
		{"  export A = \"b c\" ", "A", "b c", true},
		{"A='x'", "A", "x", true},
		{"A=\"mismatched'", "A", "\"mismatched'", true},
		{"A=", "A", "", true},
		{"# A=b", "", "", false},
		{"=b", "", "", false},
		{"novalue", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseEnvLine(tc.line)
		if key != tc.key || val != tc.val || ok != tc.ok {
			t.Errorf("parseEnvLine(%q) = %q, %q, %v", tc.line, key, val, ok)
		}
	}
}
