package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Storage       StorageConfig  `toml:"storage"`
	Sampler       SamplerConfig  `toml:"sampler"`
	AI            AIConfig       `toml:"ai"`
	Schedule      ScheduleConfig `toml:"schedule"`
	Calendar      CalendarConfig `toml:"calendar"`
	Upload        UploadConfig   `toml:"upload"`
	Server        ServerConfig   `toml:"server"`
	Log           LogConfig      `toml:"log"`
	Notifications NotifyConfig   `toml:"notifications"`
}

type StorageConfig struct {
	DataDir     string `toml:"data_dir"`
	ActivityDB  string `toml:"activity_db"`  // defaults to <data_dir>/activity_log.db
	DirectoryDB string `toml:"directory_db"` // defaults to <data_dir>/matter_map.db
	CSVMirror   bool   `toml:"csv_mirror"`
}

type SamplerConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type AIConfig struct {
	Provider       string  `toml:"provider"` // "openai" or "claude-cli"
	Model          string  `toml:"model"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	MaxRetries     int     `toml:"max_retries"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Schema         string  `toml:"schema"` // "task" or "summary"
}

type ScheduleConfig struct {
	ReconcileAt string `toml:"reconcile_at"` // "HH:MM", empty disables
	WorkDays    []int  `toml:"work_days"`
}

type CalendarConfig struct {
	Enabled bool   `toml:"enabled"`
	Source  string `toml:"source"` // ICS URL or file path
}

type UploadConfig struct {
	URL    string   `toml:"url"`
	Marker string   `toml:"marker"`
	Files  []string `toml:"files"` // extra glob patterns, relative to data_dir
}

type ServerConfig struct {
	Addr      string `toml:"addr"`
	UploadDir string `toml:"upload_dir"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			CSVMirror: true,
		},
		Sampler: SamplerConfig{
			IntervalSeconds: 5,
		},
		AI: AIConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			Temperature:    0.3,
			MaxTokens:      2000,
			MaxRetries:     3,
			TimeoutSeconds: 120,
			Schema:         "task",
		},
		Schedule: ScheduleConfig{
			WorkDays: []int{1, 2, 3, 4, 5},
		},
		Upload: UploadConfig{
			Marker: "✅",
		},
		Server: ServerConfig{
			Addr: ":3000",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
		Notifications: NotifyConfig{
			Enabled: true,
		},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "billr"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file from the default location.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file yields the defaults.
// Values from .env files and the environment override the file.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	loadDotEnv(filepath.Dir(path))
	applyEnvOverrides(&cfg)

	if err := cfg.resolvePaths(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads .env from the working directory and then the config
// directory. godotenv never overrides variables that are already set, so
// the real environment wins.
func loadDotEnv(configDir string) {
	for _, p := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("BILLR_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("BILLR_DIRECTORY_DB"); v != "" {
		cfg.Storage.DirectoryDB = v
	}
	if v := os.Getenv("BILLR_UPLOAD_URL"); v != "" {
		cfg.Upload.URL = v
	}
}

func (c *Config) resolvePaths(configDir string) error {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = configDir
	}
	dataDir, err := expandHome(c.Storage.DataDir)
	if err != nil {
		return err
	}
	c.Storage.DataDir = dataDir

	if c.Storage.ActivityDB == "" {
		c.Storage.ActivityDB = filepath.Join(dataDir, "activity_log.db")
	}
	if c.Storage.DirectoryDB == "" {
		c.Storage.DirectoryDB = filepath.Join(dataDir, "matter_map.db")
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = filepath.Join(dataDir, "uploads")
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(dataDir, "billr.log")
	}

	for _, p := range []*string{&c.Storage.ActivityDB, &c.Storage.DirectoryDB, &c.Server.UploadDir, &c.Log.File} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// WriteDefault writes a commented default config file to path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data := fmt.Sprintf(`[storage]
# data_dir = "~/.config/billr"
csv_mirror = %t

[sampler]
interval_seconds = %d

[ai]
provider = "%s"
model = "%s"
temperature = %.1f
max_tokens = %d
max_retries = %d
timeout_seconds = %d
schema = "%s"

[schedule]
reconcile_at = ""
work_days = [1, 2, 3, 4, 5]

[calendar]
enabled = false
source = ""

[upload]
url = ""
marker = "%s"
files = []

[server]
addr = "%s"

[log]
level = "%s"
max_size_mb = %d

[notifications]
enabled = %t
`,
		cfg.Storage.CSVMirror,
		cfg.Sampler.IntervalSeconds,
		cfg.AI.Provider,
		cfg.AI.Model,
		cfg.AI.Temperature,
		cfg.AI.MaxTokens,
		cfg.AI.MaxRetries,
		cfg.AI.TimeoutSeconds,
		cfg.AI.Schema,
		cfg.Upload.Marker,
		cfg.Server.Addr,
		cfg.Log.Level,
		cfg.Log.MaxSizeMB,
		cfg.Notifications.Enabled,
	)
	return os.WriteFile(path, []byte(data), 0644)
}
