// Package config loads gliksbot's runtime configuration from
// environment variables: the slot roster, phase deadlines, session
// caps, sandbox limits, and ambient server settings.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

const (
	defaultHTTPAddr           = "127.0.0.1:8765"
	defaultShutdownTimeout    = 5 * time.Second
	defaultLogFormat          = LogFormatText
	defaultLogLevel           = slog.LevelInfo
	defaultPhaseDeadline      = 90 * time.Second
	defaultCallDeadline       = 120 * time.Second
	defaultSessionDeadline    = 600 * time.Second
	defaultMaxInFlightPerSlot = 4
	defaultMaxConcurrentRuns  = 32
	defaultEventBusCapacity   = 1024
	defaultMaxEventsPerLog    = 1024
	defaultSandboxTimeout     = 10 * time.Second
	defaultSandboxMemoryMB    = 256
	defaultSandboxStdoutBytes = 1024 * 1024
)

// LogFormat selects the slog handler used by cmd/server.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is the full set of tunables needed to boot the orchestrator.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogFormat       LogFormat
	LogLevel        slog.Level

	Slots       []collab.SlotConfig
	VoteWeights collab.VoteWeights

	PhaseDeadline      time.Duration
	CallDeadline       time.Duration
	SessionDeadline    time.Duration
	MaxInFlightPerSlot int
	MaxConcurrentRuns  int
	EventBusCapacity   int
	MaxEventsPerLog    int
	PersistenceRoot    string // empty disables store/filelog, falls back to store/inmem

	SandboxTimeout     time.Duration
	SandboxMemoryMB    int
	SandboxStdoutBytes int

	AuthToken string // bearer token required on every HTTP route except /health and /readyz; empty disables auth
}

// Load reads Config from environment variables, applying Default()
// first and validating the result.
func Load() (Config, error) {
	cfg := Default()

	if addr := strings.TrimSpace(os.Getenv("GLIKSBOT_HTTP_ADDR")); addr != "" {
		cfg.HTTPAddr = addr
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_SHUTDOWN_TIMEOUT")); v != "" {
		d, err := parseDuration("GLIKSBOT_SHUTDOWN_TIMEOUT", v)
		if err != nil {
			return Config{}, err
		}
		cfg.ShutdownTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_LOG_FORMAT")); v != "" {
		format, err := parseLogFormat(v)
		if err != nil {
			return Config{}, err
		}
		cfg.LogFormat = format
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_LOG_LEVEL")); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}

	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_SLOTS_JSON")); v != "" {
		slots, err := parseSlotsJSON(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Slots = slots
	} else if path := strings.TrimSpace(os.Getenv("GLIKSBOT_SLOTS_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read GLIKSBOT_SLOTS_FILE %s: %v", collab.ErrConfig, path, err)
		}
		slots, err := parseSlotsJSON(string(data))
		if err != nil {
			return Config{}, err
		}
		cfg.Slots = slots
	}

	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_VOTE_WEIGHTS_JSON")); v != "" {
		weights := make(collab.VoteWeights)
		if err := json.Unmarshal([]byte(v), &weights); err != nil {
			return Config{}, fmt.Errorf("%w: parse GLIKSBOT_VOTE_WEIGHTS_JSON: %v", collab.ErrConfig, err)
		}
		cfg.VoteWeights = weights
	}

	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_PHASE_DEADLINE")); v != "" {
		d, err := parseDuration("GLIKSBOT_PHASE_DEADLINE", v)
		if err != nil {
			return Config{}, err
		}
		cfg.PhaseDeadline = d
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_CALL_DEADLINE")); v != "" {
		d, err := parseDuration("GLIKSBOT_CALL_DEADLINE", v)
		if err != nil {
			return Config{}, err
		}
		cfg.CallDeadline = d
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_SESSION_DEADLINE")); v != "" {
		d, err := parseDuration("GLIKSBOT_SESSION_DEADLINE", v)
		if err != nil {
			return Config{}, err
		}
		cfg.SessionDeadline = d
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_MAX_IN_FLIGHT_PER_SLOT")); v != "" {
		n, err := parseInt("GLIKSBOT_MAX_IN_FLIGHT_PER_SLOT", v)
		if err != nil {
			return Config{}, err
		}
		cfg.MaxInFlightPerSlot = n
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_MAX_CONCURRENT_RUNS")); v != "" {
		n, err := parseInt("GLIKSBOT_MAX_CONCURRENT_RUNS", v)
		if err != nil {
			return Config{}, err
		}
		cfg.MaxConcurrentRuns = n
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_EVENT_BUS_CAPACITY")); v != "" {
		n, err := parseInt("GLIKSBOT_EVENT_BUS_CAPACITY", v)
		if err != nil {
			return Config{}, err
		}
		cfg.EventBusCapacity = n
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_MAX_EVENTS_PER_LOG")); v != "" {
		n, err := parseInt("GLIKSBOT_MAX_EVENTS_PER_LOG", v)
		if err != nil {
			return Config{}, err
		}
		cfg.MaxEventsPerLog = n
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_PERSISTENCE_ROOT")); v != "" {
		cfg.PersistenceRoot = v
	}

	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_SANDBOX_TIMEOUT")); v != "" {
		d, err := parseDuration("GLIKSBOT_SANDBOX_TIMEOUT", v)
		if err != nil {
			return Config{}, err
		}
		cfg.SandboxTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_SANDBOX_MEMORY_MB")); v != "" {
		n, err := parseInt("GLIKSBOT_SANDBOX_MEMORY_MB", v)
		if err != nil {
			return Config{}, err
		}
		cfg.SandboxMemoryMB = n
	}
	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_SANDBOX_STDOUT_BYTES")); v != "" {
		n, err := parseInt("GLIKSBOT_SANDBOX_STDOUT_BYTES", v)
		if err != nil {
			return Config{}, err
		}
		cfg.SandboxStdoutBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("GLIKSBOT_AUTH_TOKEN")); v != "" {
		cfg.AuthToken = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns Config populated with every built-in default and an
// empty slot roster; callers must supply slots before Validate passes.
func Default() Config {
	return Config{
		HTTPAddr:           defaultHTTPAddr,
		ShutdownTimeout:    defaultShutdownTimeout,
		LogFormat:          defaultLogFormat,
		LogLevel:           defaultLogLevel,
		PhaseDeadline:      defaultPhaseDeadline,
		CallDeadline:       defaultCallDeadline,
		SessionDeadline:    defaultSessionDeadline,
		MaxInFlightPerSlot: defaultMaxInFlightPerSlot,
		MaxConcurrentRuns:  defaultMaxConcurrentRuns,
		EventBusCapacity:   defaultEventBusCapacity,
		MaxEventsPerLog:    defaultMaxEventsPerLog,
		SandboxTimeout:     defaultSandboxTimeout,
		SandboxMemoryMB:    defaultSandboxMemoryMB,
		SandboxStdoutBytes: defaultSandboxStdoutBytes,
	}
}

// Validate checks structural validity of the whole config, including
// the slot roster invariants (collab.ValidateRoster).
func (c Config) Validate() error {
	if err := collab.ValidateRoster(c.Slots); err != nil {
		return err
	}
	if c.PhaseDeadline <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_PHASE_DEADLINE must be > 0", collab.ErrConfig)
	}
	if c.CallDeadline <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_CALL_DEADLINE must be > 0", collab.ErrConfig)
	}
	if c.SessionDeadline <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_SESSION_DEADLINE must be > 0", collab.ErrConfig)
	}
	if c.MaxInFlightPerSlot <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_MAX_IN_FLIGHT_PER_SLOT must be > 0", collab.ErrConfig)
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_MAX_CONCURRENT_RUNS must be > 0", collab.ErrConfig)
	}
	if c.EventBusCapacity <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_EVENT_BUS_CAPACITY must be > 0", collab.ErrConfig)
	}
	if c.MaxEventsPerLog <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_MAX_EVENTS_PER_LOG must be > 0", collab.ErrConfig)
	}
	if c.SandboxTimeout <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_SANDBOX_TIMEOUT must be > 0", collab.ErrConfig)
	}
	if c.SandboxMemoryMB <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_SANDBOX_MEMORY_MB must be > 0", collab.ErrConfig)
	}
	if c.SandboxStdoutBytes <= 0 {
		return fmt.Errorf("%w: GLIKSBOT_SANDBOX_STDOUT_BYTES must be > 0", collab.ErrConfig)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("%w: unsupported GLIKSBOT_LOG_FORMAT %q", collab.ErrConfig, c.LogFormat)
	}
	return nil
}

func parseSlotsJSON(raw string) ([]collab.SlotConfig, error) {
	var slots []collab.SlotConfig
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil, fmt.Errorf("%w: parse slot roster json: %v", collab.ErrConfig, err)
	}
	return slots, nil
}

func parseDuration(envVar, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", collab.ErrConfig, envVar, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be > 0", collab.ErrConfig, envVar)
	}
	return d, nil
}

func parseInt(envVar, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", collab.ErrConfig, envVar, err)
	}
	return n, nil
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unsupported GLIKSBOT_LOG_LEVEL %q", collab.ErrConfig, input)
	}
}

func parseLogFormat(input string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported GLIKSBOT_LOG_FORMAT %q", collab.ErrConfig, input)
	}
}
