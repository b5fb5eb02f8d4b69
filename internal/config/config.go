package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/shmchat/internal/consts"
)

const appName = "shmchat"

// Duration is a time.Duration that reads and writes as "10ms" style text.
type Duration time.Duration

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Config represents the application configuration
type Config struct {
	Namespace        string   `json:"namespace,omitempty"`  // Derives both IPC keys when set
	ShmKey           int      `json:"shm_key"`              // SysV key of the shared segment
	SemKey           int      `json:"sem_key"`              // SysV key of the semaphore set
	Perm             string   `json:"perm"`                 // Octal permission bits of both IPC objects
	RecvPollInterval Duration `json:"recv_poll_interval"`   // Receiver backoff after a false wake
	LogLevel         string   `json:"log_level"`            // debug, info, warn, error, none
	LogPath          string   `json:"log_path,omitempty"`   // Log file, shared by all processes
	DebugAddr        string   `json:"debug_addr,omitempty"` // Debug HTTP listener, off when empty
	LockPath         string   `json:"lock_path"`            // Lockfile guarding destroy
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		ShmKey:           consts.DefaultShmKey,
		SemKey:           consts.DefaultSemKey,
		Perm:             fmt.Sprintf("%#o", consts.DefaultPerm),
		RecvPollInterval: Duration(consts.DefaultRecvPollInterval),
		LogLevel:         "info",
		LogPath:          filepath.Join(stateDir, appName+".log"),
		LockPath:         filepath.Join(stateDir, "destroy.lock"),
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	defaults := DefaultConfig()
	if config.Perm == "" {
		config.Perm = defaults.Perm
	}
	if config.RecvPollInterval <= 0 {
		config.RecvPollInterval = defaults.RecvPollInterval
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.LogPath == "" {
		config.LogPath = defaults.LogPath
	}
	if config.LockPath == "" {
		config.LockPath = defaults.LockPath
	}

	return config, config.Validate()
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// ApplyEnv overrides fields from SHMCHAT_* variables. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("SHMCHAT_NAMESPACE")); v != "" {
		c.Namespace = v
	}
	if v := strings.TrimSpace(getenv("SHMCHAT_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(getenv("SHMCHAT_LOG_PATH")); v != "" {
		c.LogPath = v
	}
	if v := strings.TrimSpace(getenv("SHMCHAT_DEBUG_ADDR")); v != "" {
		c.DebugAddr = v
	}
}

// Validate checks fields that have no usable zero value.
func (c *Config) Validate() error {
	if _, err := c.FileMode(); err != nil {
		return err
	}
	if c.RecvPollInterval <= 0 {
		return fmt.Errorf("recv_poll_interval must be positive, got %s", time.Duration(c.RecvPollInterval))
	}
	if c.Namespace == "" && (c.ShmKey == 0 || c.SemKey == 0) {
		return fmt.Errorf("shm_key and sem_key must be non-zero")
	}
	return nil
}

// FileMode parses Perm.
func (c *Config) FileMode() (os.FileMode, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(c.Perm), 8, 32)
	if err != nil || v > 0777 {
		return 0, fmt.Errorf("invalid perm %q: want octal permission bits such as 0600", c.Perm)
	}
	return os.FileMode(v), nil
}

// Keys returns the segment and semaphore keys. A namespace replaces the
// configured keys with two derived from its hash, so unrelated groups of
// processes never meet.
func (c *Config) Keys() (shmKey, semKey int) {
	if c.Namespace == "" {
		return c.ShmKey, c.SemKey
	}
	return DeriveKeys(c.Namespace)
}

// DeriveKeys maps a namespace onto a pair of positive, non-zero keys.
func DeriveKeys(namespace string) (shmKey, semKey int) {
	h := xxhash.Sum64String(namespace)
	shmKey = int(uint32(h) & 0x7fffffff)
	semKey = int(uint32(h>>32) & 0x7fffffff)
	// key 0 is IPC_PRIVATE
	if shmKey == 0 {
		shmKey = 1
	}
	if semKey == 0 {
		semKey = 1
	}
	return shmKey, semKey
}

// PollInterval returns RecvPollInterval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.RecvPollInterval)
}
