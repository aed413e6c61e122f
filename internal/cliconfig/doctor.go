package cliconfig

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/KafClaw/robotd/internal/config"
	"github.com/KafClaw/robotd/internal/kv"
	"github.com/KafClaw/robotd/internal/plugin"
	"github.com/segmentio/kafka-go"
)

type DoctorStatus string

const (
	DoctorPass DoctorStatus = "pass"
	DoctorWarn DoctorStatus = "warn"
	DoctorFail DoctorStatus = "fail"
)

type DoctorCheck struct {
	Name    string
	Status  DoctorStatus
	Message string
}

type DoctorReport struct {
	Checks []DoctorCheck
}

// DialFunc opens a connection to a Kafka broker.
type DialFunc func(ctx context.Context, network, address string) (io.Closer, error)

type DoctorOptions struct {
	ConfigPath string
	// Registry is checked for every configured adapter. Nil skips the check.
	Registry *plugin.Registry
	// SkipNetwork disables broker dialing.
	SkipNetwork bool
	DialTimeout time.Duration
	Dial        DialFunc
}

func (r DoctorReport) HasFailures() bool {
	for _, c := range r.Checks {
		if c.Status == DoctorFail {
			return true
		}
	}
	return false
}

func (r *DoctorReport) add(name string, status DoctorStatus, format string, args ...any) {
	r.Checks = append(r.Checks, DoctorCheck{Name: name, Status: status, Message: fmt.Sprintf(format, args...)})
}

func dialKafka(ctx context.Context, network, address string) (io.Closer, error) {
	conn, err := kafka.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RunDoctor checks that the configuration loads, that every robot in it
// could be built, and that its store and audit brokers are reachable.
func RunDoctor(ctx context.Context, opts DoctorOptions) (DoctorReport, error) {
	report := DoctorReport{Checks: make([]DoctorCheck, 0, 8)}
	if opts.Dial == nil {
		opts.Dial = dialKafka
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 3 * time.Second
	}

	cfgPath, err := config.ResolvePath(opts.ConfigPath)
	if err != nil {
		report.add("config_path", DoctorFail, "cannot resolve config path: %v", err)
		return report, nil
	}
	if _, err := os.Stat(cfgPath); err != nil {
		if os.IsNotExist(err) {
			report.add("config_file", DoctorWarn, "config file not found at %s (defaults will be used)", cfgPath)
		} else {
			report.add("config_file", DoctorFail, "cannot access config file: %v", err)
		}
	} else {
		report.add("config_file", DoctorPass, "config file found at %s", cfgPath)
	}

	uc, err := config.ReadUserConfig(cfgPath)
	if err != nil {
		report.add("config_load", DoctorFail, "config load failed: %v", err)
		return report, nil
	}
	base := config.DefaultRobotConfig()
	if err := config.Apply(base, uc.Base); err != nil {
		report.add("config_load", DoctorFail, "config load failed: %v", err)
		return report, nil
	}
	report.add("config_load", DoctorPass, "config loaded (%d robot entries)", len(uc.Robots))
	if files := config.LoadEnvFiles(); len(files) > 0 {
		report.add("env_files", DoctorPass, "environment read from %s", strings.Join(files, ", "))
	}

	robots := []*config.RobotConfig{base}
	for i, raw := range uc.Robots {
		cfg := config.DefaultRobotConfig()
		if err := config.Apply(cfg, raw); err != nil {
			report.add(fmt.Sprintf("robots[%d]", i), DoctorFail, "invalid entry: %v", err)
			continue
		}
		robots = append(robots, cfg)
	}

	stores := map[string]bool{}
	brokers := map[string]bool{}
	for _, cfg := range robots {
		name := "robot:" + cfg.Robot.Name
		if err := cfg.Validate(); err != nil {
			report.add(name, DoctorFail, "%v", err)
			continue
		}
		if opts.Registry != nil {
			if _, ok := opts.Registry.Adapter(cfg.Robot.Adapter); !ok {
				report.add(name, DoctorFail, "adapter %q is not available", cfg.Robot.Adapter)
				continue
			}
		}
		report.add(name, DoctorPass, "adapter %s, %d admin(s)", cfg.Robot.Adapter, len(cfg.Robot.Admins))

		if path, err := cfg.Store.StorePath(); err == nil && !stores[cfg.Store.Driver+"|"+path] {
			stores[cfg.Store.Driver+"|"+path] = true
			checkStore(ctx, &report, cfg.Store)
		}
		for _, b := range cfg.Audit.Brokers() {
			brokers[b] = true
		}
	}

	if len(brokers) == 0 {
		report.add("audit", DoctorPass, "audit publishing disabled")
		return report, nil
	}
	if opts.SkipNetwork {
		report.add("audit", DoctorWarn, "broker checks skipped")
		return report, nil
	}
	for b := range brokers {
		dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		conn, err := opts.Dial(dialCtx, "tcp", b)
		cancel()
		if err != nil {
			report.add("audit_broker:"+b, DoctorWarn, "unreachable: %v", err)
			continue
		}
		conn.Close()
		report.add("audit_broker:"+b, DoctorPass, "reachable")
	}
	return report, nil
}

func checkStore(ctx context.Context, report *DoctorReport, cfg config.StoreConfig) {
	name := "store:" + cfg.Path
	s, err := kv.Open(cfg)
	if err != nil {
		report.add(name, DoctorFail, "%v", err)
		return
	}
	defer s.Close()
	keys, err := s.Namespace(cfg.Namespace).Keys(ctx, "*")
	if err != nil {
		report.add(name, DoctorFail, "%v", err)
		return
	}
	report.add(name, DoctorPass, "%s store, %d key(s) under %s", cfg.Driver, len(keys), cfg.Namespace)
}
