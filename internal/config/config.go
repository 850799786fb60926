package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Notification backend names accepted in the "notify" field.
const (
	NotifyDesktop = "desktop"
	NotifyLog     = "log"
	NotifyOff     = "off"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the local API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the local API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to resolve due times
	// (e.g. "Europe/Berlin"). Empty means the system local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// TasksFile is the path of the JSON task store.
	TasksFile string `yaml:"tasks_file" json:"tasks_file"`

	// CheckSchedule is a cron-style schedule string (e.g. "@every 30s")
	// driving the deadline sweep.
	CheckSchedule string `yaml:"check_schedule" json:"check_schedule"`

	// Notify selects the reminder backend: "desktop", "log" or "off".
	Notify string `yaml:"notify" json:"notify"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8090",
		Timezone:      "",
		TasksFile:     defaultTasksFile(),
		CheckSchedule: "@every 30s",
		Notify:        NotifyDesktop,
		BasicAuth:     nil,
	}
}

func defaultTasksFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tasks.json"
	}
	return filepath.Join(dir, "taskcal", "tasks.json")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "taskcal", "config.yaml")
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8090"
	}
	if c.TasksFile == "" {
		c.TasksFile = defaultTasksFile()
	}
	if c.CheckSchedule == "" {
		c.CheckSchedule = "@every 30s"
	}
	switch c.Notify {
	case NotifyDesktop, NotifyLog, NotifyOff:
		// ok
	case "":
		c.Notify = NotifyDesktop
	default:
		// Unknown backend; fall back to desktop rather than dropping reminders.
		c.Notify = NotifyDesktop
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written (0600,
//     creating the parent directory) and returned.
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path. The parent
// directory is created if needed, and the write is atomic (temp file +
// rename) with final 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".taskcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
