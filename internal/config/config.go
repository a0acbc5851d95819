package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"

	ProcessSourceUtility  = "utility"
	ProcessSourceGopsutil = "gopsutil"
)

// Config represents the portlease configuration
type Config struct {
	// Server settings
	ListenAddr string

	// Store settings
	StoreDriver string
	StorePath   string

	// Lease settings
	DefaultTTLMinutes int

	// OS scan settings
	ScanTimeoutSeconds int
	ProcessSource      string

	// Suggestion range
	SuggestMin int
	SuggestMax int

	// Logging
	LogLevel  string
	LogFormat string

	// Remote settings
	RemoteHost    string
	RemoteUser    string
	RemoteBaseDir string

	// Hooks (fallback if hook files don't exist)
	HooksDir           string
	HookTimeoutSeconds int
	PostRegisterScript string
	PostReleaseScript  string
}

// Dir returns the per-user portlease directory
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".portlease"), nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ListenAddr:         "127.0.0.1:4545",
		StoreDriver:        StoreJSON,
		DefaultTTLMinutes:  60,
		ScanTimeoutSeconds: 8,
		ProcessSource:      ProcessSourceUtility,
		SuggestMin:         3000,
		SuggestMax:         9999,
		LogLevel:           "info",
		LogFormat:          "console",
		RemoteUser:         "${USER}",
		RemoteBaseDir:      "~",
		HooksDir:           filepath.Join(".portlease", "hooks"),
		HookTimeoutSeconds: 30,
	}
}

// Load reads the global config, then .portlease.config and
// .portlease.config.local from the working directory. Every file is optional.
func Load() (*Config, error) {
	cfg := Default()

	// Load global config first (lowest priority)
	if dir, err := Dir(); err == nil {
		if err := loadIfExists(filepath.Join(dir, "config"), cfg); err != nil {
			return nil, fmt.Errorf("failed to load global config: %w", err)
		}
	}

	if err := loadIfExists(".portlease.config", cfg); err != nil {
		return nil, fmt.Errorf("failed to load .portlease.config: %w", err)
	}

	// Load local overrides if they exist (highest priority)
	if err := loadIfExists(".portlease.config.local", cfg); err != nil {
		return nil, fmt.Errorf("failed to load .portlease.config.local: %w", err)
	}

	if err := cfg.expandVariables(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadIfExists(filename string, cfg *Config) error {
	if _, err := os.Stat(filename); err != nil {
		return nil
	}
	return loadConfigFile(filename, cfg)
}

// loadConfigFile parses a bash-style config file
func loadConfigFile(filename string, cfg *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	// Regex to match KEY="value" or KEY=value
	re := regexp.MustCompile(`^([A-Z_]+)=(.*)$`)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		matches := re.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		key := matches[1]
		value := strings.Trim(matches[2], `"'`)

		if err := cfg.set(key, value); err != nil {
			return fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}
	}

	return scanner.Err()
}

// set assigns one config key. Unknown keys are ignored.
func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "LISTEN_ADDR":
		c.ListenAddr = value
	case "STORE_DRIVER":
		c.StoreDriver = strings.ToLower(value)
	case "STORE_PATH":
		c.StorePath = value
	case "DEFAULT_TTL_MINUTES":
		c.DefaultTTLMinutes, err = atoi(key, value)
	case "SCAN_TIMEOUT_SECONDS":
		c.ScanTimeoutSeconds, err = atoi(key, value)
	case "PROCESS_SOURCE":
		c.ProcessSource = strings.ToLower(value)
	case "SUGGEST_MIN":
		c.SuggestMin, err = atoi(key, value)
	case "SUGGEST_MAX":
		c.SuggestMax, err = atoi(key, value)
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value
	case "REMOTE_HOST":
		c.RemoteHost = value
	case "REMOTE_USER":
		c.RemoteUser = value
	case "REMOTE_BASE_DIR":
		c.RemoteBaseDir = value
	case "HOOKS_DIR":
		c.HooksDir = value
	case "HOOK_TIMEOUT_SECONDS":
		c.HookTimeoutSeconds, err = atoi(key, value)
	case "POST_REGISTER_SCRIPT":
		c.PostRegisterScript = value
	case "POST_RELEASE_SCRIPT":
		c.PostReleaseScript = value
	}
	return err
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

// expandVariables expands environment variables and tildes in paths
func (c *Config) expandVariables() error {
	// Expand ${USER} in RemoteUser
	if c.RemoteUser == "${USER}" || c.RemoteUser == "$USER" {
		c.RemoteUser = os.Getenv("USER")
	}

	// Expand ~ in StorePath (local path)
	if strings.HasPrefix(c.StorePath, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to expand ~ in STORE_PATH: %w", err)
		}
		c.StorePath = strings.Replace(c.StorePath, "~", homeDir, 1)
	}

	// Don't expand ~ in RemoteBaseDir - let the remote shell handle it

	if c.StorePath == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		name := "registry.json"
		if c.StoreDriver == StoreSQLite {
			name = "registry.db"
		}
		c.StorePath = filepath.Join(dir, name)
	}

	return nil
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	var problems []string

	if c.ListenAddr == "" {
		problems = append(problems, "LISTEN_ADDR is empty")
	}
	if c.StoreDriver != StoreJSON && c.StoreDriver != StoreSQLite {
		problems = append(problems, fmt.Sprintf("STORE_DRIVER must be %q or %q", StoreJSON, StoreSQLite))
	}
	if c.ProcessSource != ProcessSourceUtility && c.ProcessSource != ProcessSourceGopsutil {
		problems = append(problems, fmt.Sprintf("PROCESS_SOURCE must be %q or %q", ProcessSourceUtility, ProcessSourceGopsutil))
	}
	if c.DefaultTTLMinutes <= 0 {
		problems = append(problems, "DEFAULT_TTL_MINUTES must be positive")
	}
	if c.ScanTimeoutSeconds <= 0 {
		problems = append(problems, "SCAN_TIMEOUT_SECONDS must be positive")
	}
	if c.HookTimeoutSeconds <= 0 {
		problems = append(problems, "HOOK_TIMEOUT_SECONDS must be positive")
	}
	if c.SuggestMin < 1 || c.SuggestMax > 65535 || c.SuggestMin > c.SuggestMax {
		problems = append(problems, "SUGGEST_MIN and SUGGEST_MAX must form a range within 1-65535")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

// DefaultTTL returns the default lease length
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMinutes) * time.Minute
}

// ScanTimeout returns the bound on each OS utility invocation
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSeconds) * time.Second
}

// HookTimeout returns the bound on each hook run
func (c *Config) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutSeconds) * time.Second
}

// RequireRemote checks the settings needed for --remote
func (c *Config) RequireRemote() error {
	if c.RemoteHost == "" || c.RemoteUser == "" {
		return fmt.Errorf("missing required configuration fields: REMOTE_HOST, REMOTE_USER")
	}
	return nil
}
