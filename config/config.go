package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config holds all wrapper configuration: env vars first, a TOML overlay
// second, hardcoded defaults last.
type Config struct {
	Env      string // "development" or "production"
	LogLevel string

	// Filesystem layout, anchored at Home unless overridden.
	Home        string
	SocketDir   string
	ProjectsDir string
	DatabasePath string

	// wrapper.*
	ClaudeBinary       string
	ClaudeExtraArgs    string
	SwitchGraceSeconds int
	MaxAgentDepth      int

	// wrapper.gpt.<kind>.* defaults, applied to every backend kind unless
	// a kind-specific override exists in the TOML file.
	GPT map[string]GPTKindConfig

	// sdk.*
	SDKModel           string
	SDKFallbackModel   string
	SDKPermissionMode  string
	SDKReasoningEffort string

	// LegacyEventAliases additionally emits wrapper.claude.* aliases for
	// wrapper.tui.* events, kept for installations still watching the old
	// event names.
	LegacyEventAliases bool

	DBLogQueries bool
}

// GPTKindConfig holds the per-runtime-kind startup knobs.
type GPTKindConfig struct {
	BinaryPath          string
	StartupRetries      int
	StartupRetryDelayMs int
	StartupRetryJitterMs int
}

// fileOverlay is the shape of an optional ~/.klaude/config.toml.
type fileOverlay struct {
	Wrapper struct {
		ClaudeBinary       string                   `toml:"claudeBinary"`
		ClaudeExtraArgs    string                   `toml:"claudeExtraArgs"`
		ProjectsDir        string                   `toml:"projectsDir"`
		SocketDir          string                   `toml:"socketDir"`
		MaxAgentDepth       int                      `toml:"maxAgentDepth"`
		Switch             struct{ GraceSeconds int } `toml:"switch"`
		GPT                map[string]struct {
			BinaryPath           string `toml:"binaryPath"`
			StartupRetries       int    `toml:"startupRetries"`
			StartupRetryDelayMs  int    `toml:"startupRetryDelayMs"`
			StartupRetryJitterMs int    `toml:"startupRetryJitterMs"`
		} `toml:"gpt"`
		LogLevel string `toml:"logLevel"`
	} `toml:"wrapper"`
	SDK struct {
		Model           string `toml:"model"`
		FallbackModel   string `toml:"fallbackModel"`
		PermissionMode  string `toml:"permissionMode"`
		ReasoningEffort string `toml:"reasoningEffort"`
	} `toml:"sdk"`
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration singleton.
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

func load() *Config {
	home := getEnv("KLAUDE_HOME", defaultHome())

	c := &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("KLAUDE_LOG_LEVEL", "info"),

		Home:        home,
		SocketDir:   filepath.Join(home, "run"),
		ProjectsDir: filepath.Join(home, "projects"),
		DatabasePath: filepath.Join(home, "db.sqlite"),

		ClaudeBinary:       getEnv("KLAUDE_CLAUDE_BINARY", ""),
		ClaudeExtraArgs:    getEnv("KLAUDE_CLAUDE_EXTRA_ARGS", ""),
		SwitchGraceSeconds: getEnvInt("KLAUDE_SWITCH_GRACE_SECONDS", 1),
		MaxAgentDepth:      getEnvInt("KLAUDE_MAX_AGENT_DEPTH", 3),

		GPT: map[string]GPTKindConfig{},

		SDKModel:           getEnv("KLAUDE_SDK_MODEL", ""),
		SDKFallbackModel:   getEnv("KLAUDE_SDK_FALLBACK_MODEL", ""),
		SDKPermissionMode:  getEnv("KLAUDE_SDK_PERMISSION_MODE", "bypassPermissions"),
		SDKReasoningEffort: getEnv("KLAUDE_SDK_REASONING_EFFORT", ""),

		LegacyEventAliases: getEnv("KLAUDE_LEGACY_EVENT_ALIASES", "") == "1",
		DBLogQueries:       getEnv("KLAUDE_DB_LOG_QUERIES", "") == "1",
	}

	for _, kind := range []string{"native", "backend-a", "backend-b", "backend-c"} {
		c.GPT[kind] = GPTKindConfig{
			BinaryPath:           getEnv("KLAUDE_GPT_"+envKey(kind)+"_BINARY_PATH", ""),
			StartupRetries:       getEnvInt("KLAUDE_GPT_"+envKey(kind)+"_STARTUP_RETRIES", 3),
			StartupRetryDelayMs:  getEnvInt("KLAUDE_GPT_"+envKey(kind)+"_STARTUP_RETRY_DELAY_MS", 400),
			StartupRetryJitterMs: getEnvInt("KLAUDE_GPT_"+envKey(kind)+"_STARTUP_RETRY_JITTER_MS", 200),
		}
	}

	applyFileOverlay(c, filepath.Join(home, "config.toml"))

	return c
}

func applyFileOverlay(c *Config, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	var f fileOverlay
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return
	}
	if c.ClaudeBinary == "" && f.Wrapper.ClaudeBinary != "" {
		c.ClaudeBinary = f.Wrapper.ClaudeBinary
	}
	if c.ClaudeExtraArgs == "" && f.Wrapper.ClaudeExtraArgs != "" {
		c.ClaudeExtraArgs = f.Wrapper.ClaudeExtraArgs
	}
	if f.Wrapper.ProjectsDir != "" {
		c.ProjectsDir = f.Wrapper.ProjectsDir
	}
	if f.Wrapper.SocketDir != "" {
		c.SocketDir = f.Wrapper.SocketDir
	}
	if f.Wrapper.MaxAgentDepth != 0 && os.Getenv("KLAUDE_MAX_AGENT_DEPTH") == "" {
		c.MaxAgentDepth = f.Wrapper.MaxAgentDepth
	}
	if f.Wrapper.Switch.GraceSeconds != 0 && os.Getenv("KLAUDE_SWITCH_GRACE_SECONDS") == "" {
		c.SwitchGraceSeconds = f.Wrapper.Switch.GraceSeconds
	}
	if f.Wrapper.LogLevel != "" && os.Getenv("KLAUDE_LOG_LEVEL") == "" {
		c.LogLevel = f.Wrapper.LogLevel
	}
	for kind, kc := range f.Wrapper.GPT {
		existing := c.GPT[kind]
		prefix := "KLAUDE_GPT_" + envKey(kind)
		if existing.BinaryPath == "" {
			existing.BinaryPath = kc.BinaryPath
		}
		if kc.StartupRetries != 0 && os.Getenv(prefix+"_STARTUP_RETRIES") == "" {
			existing.StartupRetries = kc.StartupRetries
		}
		if kc.StartupRetryDelayMs != 0 && os.Getenv(prefix+"_STARTUP_RETRY_DELAY_MS") == "" {
			existing.StartupRetryDelayMs = kc.StartupRetryDelayMs
		}
		if kc.StartupRetryJitterMs != 0 && os.Getenv(prefix+"_STARTUP_RETRY_JITTER_MS") == "" {
			existing.StartupRetryJitterMs = kc.StartupRetryJitterMs
		}
		c.GPT[kind] = existing
	}
	if c.SDKModel == "" {
		c.SDKModel = f.SDK.Model
	}
	if c.SDKFallbackModel == "" {
		c.SDKFallbackModel = f.SDK.FallbackModel
	}
	if f.SDK.PermissionMode != "" && os.Getenv("KLAUDE_SDK_PERMISSION_MODE") == "" {
		c.SDKPermissionMode = f.SDK.PermissionMode
	}
	if c.SDKReasoningEffort == "" {
		c.SDKReasoningEffort = f.SDK.ReasoningEffort
	}
}

// IsDevelopment returns true if running outside production.
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

func defaultHome() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".klaude")
	}
	return ".klaude"
}

func envKey(kind string) string {
	out := make([]byte, 0, len(kind))
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		if c == '-' {
			out = append(out, '_')
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
