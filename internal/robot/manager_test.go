package robot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KafClaw/robotd/internal/config"
	"github.com/KafClaw/robotd/internal/kv"
	"github.com/KafClaw/robotd/internal/legacy"
	"github.com/KafClaw/robotd/internal/logging"
)

type managerFixture struct {
	*fixture
	globals *legacy.Globals
	opened  int
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	t.Setenv("ROBOTD_HOME", t.TempDir())
	mf := &managerFixture{fixture: newFixture(t)}
	mf.globals = legacy.New(legacy.WithLogOutput(&strings.Builder{}))
	return mf
}

func (mf *managerFixture) opener(t *testing.T) legacy.StoreOpener {
	return func(cfg config.StoreConfig) (*kv.SQLiteStore, error) {
		mf.opened++
		cfg.Path = ":memory:"
		return kv.Open(cfg)
	}
}

func (mf *managerFixture) manager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithRegistry(mf.registry),
		WithGlobals(mf.globals),
		WithStoreOpener(mf.opener(t)),
		WithLogger(logging.Discard()),
		WithConfigLoader(nil),
	}
	m := NewManager(append(base, opts...)...)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAddRobotWithoutConfigurator(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t)
	_, err := m.AddRobot(nil)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) || !errors.Is(err, ErrNoConfigurator) {
		t.Fatalf("expected ConfigurationError(ErrNoConfigurator), got %v", err)
	}
	if len(m.Robots()) != 0 {
		t.Fatal("robot list changed")
	}
}

func TestAddRobotLegacyConfiguresSharedDefault(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t)

	r, err := m.AddRobot(func(c *config.RobotConfig) { c.Robot.Name = "Bender" })
	if err != nil {
		t.Fatal(err)
	}
	if got := mf.globals.DefaultConfig().Robot.Name; got != "Bender" {
		t.Fatalf("shared default name = %q", got)
	}
	if r.Name() != config.DefaultRobotName {
		t.Fatalf("robot name = %q, want the untouched default", r.Name())
	}
}

func TestAddRobotPerRobotConfig(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t, WithPerRobotConfig(true))

	r, err := m.AddRobot(func(c *config.RobotConfig) { c.Robot.Name = "Bender" })
	if err != nil {
		t.Fatal(err)
	}
	if r.Name() != "Bender" {
		t.Fatalf("robot name = %q", r.Name())
	}
	if got := mf.globals.DefaultConfig().Robot.Name; got != config.DefaultRobotName {
		t.Fatalf("shared default changed to %q", got)
	}
}

func TestAddRobotFailureLeavesListUntouched(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t, WithPerRobotConfig(true))

	first, err := m.AddRobot(func(c *config.RobotConfig) { c.Robot.Name = "one" })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddRobot(func(c *config.RobotConfig) { c.Robot.Adapter = "irc" }); !errors.Is(err, ErrUnknownAdapter) {
		t.Fatalf("expected ErrUnknownAdapter, got %v", err)
	}
	robots := m.Robots()
	if len(robots) != 1 || robots[0] != first {
		t.Fatalf("robots = %v", robots)
	}
}

func TestRobotsSnapshotInOrder(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t, WithPerRobotConfig(true))
	for _, n := range []string{"a", "b", "c"} {
		n := n
		if _, err := m.AddRobot(func(c *config.RobotConfig) { c.Robot.Name = n }); err != nil {
			t.Fatal(err)
		}
	}
	snap := m.Robots()
	snap[0] = nil
	var names []string
	for _, r := range m.Robots() {
		names = append(names, r.Name())
	}
	if strings.Join(names, ",") != "a,b,c" {
		t.Fatalf("robots = %v", names)
	}
	if mf.opened != 1 {
		t.Fatalf("store opened %d times, want 1", mf.opened)
	}
}

func TestRunWithoutRobotsRunsDefault(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t)
	mf.globals.DefaultConfig().Robot.Name = "Default"

	if err := m.Run(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if strings.Join(mf.script.runs, ",") != "Default" {
		t.Fatalf("runs = %v", mf.script.runs)
	}
	if len(m.Robots()) != 0 {
		t.Fatal("the implicit robot must not be added to the list")
	}
}

func TestRunSequentialStopsAtFirstError(t *testing.T) {
	mf := newManagerFixture(t)
	boom := errors.New("boom")
	mf.script.failFor = map[string]error{"b": boom}
	m := mf.manager(t, WithPerRobotConfig(true))
	for _, n := range []string{"a", "b", "c"} {
		n := n
		if _, err := m.AddRobot(func(c *config.RobotConfig) { c.Robot.Name = n }); err != nil {
			t.Fatal(err)
		}
	}

	err := m.Run(context.Background(), "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if strings.Join(mf.script.runs, ",") != "a,b" {
		t.Fatalf("runs = %v", mf.script.runs)
	}
}

func TestRunLoaderError(t *testing.T) {
	mf := newManagerFixture(t)
	boom := errors.New("bad file")
	m := mf.manager(t, WithConfigLoader(func(context.Context, *Manager, string) error { return boom }))
	if err := m.Run(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if len(mf.script.runs) != 0 {
		t.Fatal("robots ran after a loader error")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if len(mf.script.runs) != 0 {
		t.Fatalf("runs = %v", mf.script.runs)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFilePerRobot(t *testing.T) {
	mf := newManagerFixture(t)
	t.Setenv("ROBOTD_ROBOT_LOG_LEVEL", "debug")
	path := writeConfig(t, `{
		"robot": {"name": "Base", "admins": ["1"]},
		"robots": [
			{"robot": {"name": "Alpha"}},
			{"robot": {"name": "Beta", "adapter": "SHELL"}}
		]
	}`)
	m := mf.manager(t, WithPerRobotConfig(true))

	if err := LoadConfigFile(context.Background(), m, path); err != nil {
		t.Fatal(err)
	}
	def := mf.globals.DefaultConfig()
	if def.Robot.Name != "Base" || !def.IsAdmin("1") || def.Robot.LogLevel != "debug" {
		t.Fatalf("default config = %+v", def.Robot)
	}
	var names []string
	for _, r := range m.Robots() {
		names = append(names, r.Name())
		if r.Config().Robot.LogLevel != "debug" {
			t.Errorf("%s: env override not applied", r.Name())
		}
	}
	if strings.Join(names, ",") != "Alpha,Beta" {
		t.Fatalf("robots = %v", names)
	}
}

func TestLoadConfigFileLegacyMode(t *testing.T) {
	mf := newManagerFixture(t)
	path := writeConfig(t, `{"robots": [{"robot": {"name": "Alpha"}}]}`)
	m := mf.manager(t)

	if err := LoadConfigFile(context.Background(), m, path); err != nil {
		t.Fatal(err)
	}
	robots := m.Robots()
	if len(robots) != 1 || robots[0].Name() != config.DefaultRobotName {
		t.Fatalf("robots = %v", robots)
	}
	if got := mf.globals.DefaultConfig().Robot.Name; got != "Alpha" {
		t.Fatalf("shared default name = %q", got)
	}
}

func TestLoadConfigFileBadRobotEntry(t *testing.T) {
	mf := newManagerFixture(t)
	path := writeConfig(t, `{"robots": [{"robot": {"name": 5}}]}`)
	m := mf.manager(t, WithPerRobotConfig(true))
	if err := LoadConfigFile(context.Background(), m, path); err == nil || !strings.Contains(err.Error(), "robots[0]") {
		t.Fatalf("expected robots[0] error, got %v", err)
	}
}

func TestLoadConfigFileMissingIsEmpty(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t)
	if err := LoadConfigFile(context.Background(), m, filepath.Join(t.TempDir(), "none.json")); err != nil {
		t.Fatal(err)
	}
	if len(m.Robots()) != 0 {
		t.Fatal("robots added from a missing file")
	}
}

func TestManagerRunUsesConfigFile(t *testing.T) {
	mf := newManagerFixture(t)
	path := writeConfig(t, `{"robots": [{"robot": {"name": "Alpha"}}, {"robot": {"name": "Beta"}}]}`)
	m := NewManager(
		WithRegistry(mf.registry),
		WithGlobals(mf.globals),
		WithStoreOpener(mf.opener(t)),
		WithLogger(logging.Discard()),
		WithPerRobotConfig(true),
	)
	defer m.Close()

	if err := m.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if strings.Join(mf.script.runs, ",") != "Alpha,Beta" {
		t.Fatalf("runs = %v", mf.script.runs)
	}
}

func TestLoadConfigFileBadEntryAddsNothing(t *testing.T) {
	mf := newManagerFixture(t)
	path := writeConfig(t, `{"robots": [{"robot": {"name": "ok"}}, {"robot": {"admins": "1"}}]}`)
	m := mf.manager(t, WithPerRobotConfig(true))
	if err := LoadConfigFile(context.Background(), m, path); err == nil {
		t.Fatal("expected an error")
	}
	if robots := m.Robots(); len(robots) != 1 || robots[0].Name() != "ok" {
		t.Fatalf("robots = %v", robots)
	}
}

func TestAddRobotKeepsNamespacesDistinct(t *testing.T) {
	mf := newManagerFixture(t)
	m := mf.manager(t)
	for i := 0; i < 3; i++ {
		if _, err := m.AddRobot(func(*config.RobotConfig) {}); err != nil {
			t.Fatal(err)
		}
	}
	var got []string
	for _, r := range m.Robots() {
		got = append(got, r.Store().Prefix())
	}
	want := "robotd:robots:robot,robotd:robots:robot-1,robotd:robots:robot-2"
	if strings.Join(got, ",") != want {
		t.Fatalf("legacy namespaces = %v", got)
	}

	per := mf.manager(t, WithPerRobotConfig(true))
	for _, name := range []string{"Bender", "Flexo", "bender"} {
		name := name
		if _, err := per.AddRobot(func(c *config.RobotConfig) { c.Robot.Name = name }); err != nil {
			t.Fatal(err)
		}
	}
	got = got[:0]
	for _, r := range per.Robots() {
		got = append(got, r.Store().Prefix())
	}
	want = "robotd:robots:bender,robotd:robots:flexo,robotd:robots:bender-2"
	if strings.Join(got, ",") != want {
		t.Fatalf("per-robot namespaces = %v", got)
	}
}
