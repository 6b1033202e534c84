package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DIALOGSPLIT_INPUT_DIR.
const EnvPrefix = "DIALOGSPLIT"

// Config holds all daemon configuration.
type Config struct {
	DataDir        string   `mapstructure:"data_dir" json:"data_dir"`
	SocketPath     string   `mapstructure:"socket_path" json:"socket_path"`
	DBPath         string   `mapstructure:"db_path" json:"db_path"`
	InputDir       string   `mapstructure:"input_dir" json:"input_dir"`
	OutputDir      string   `mapstructure:"output_dir" json:"output_dir"`
	IgnorePatterns []string `mapstructure:"ignore_patterns" json:"ignore_patterns"`
	ScanOnStart    bool     `mapstructure:"scan_on_start" json:"scan_on_start"`

	// DebounceMs collapses bursts of writes to one file; 0 disables it.
	DebounceMs  int `mapstructure:"debounce_ms" json:"debounce_ms"`
	CoreWorkers int `mapstructure:"core_workers" json:"core_workers"`
	MaxWorkers  int `mapstructure:"max_workers" json:"max_workers"`
	QueueSize   int `mapstructure:"queue_size" json:"queue_size"`

	LogFile       string `mapstructure:"log_file" json:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" json:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" json:"log_max_age_days"`
}

// DefaultDataDir returns the default data directory (~/.dialogsplit).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".dialogsplit")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:    dataDir,
		SocketPath: filepath.Join(dataDir, "dialogsplit.sock"),
		DBPath:     filepath.Join(dataDir, "dialogsplit.db"),
		InputDir:   "input",
		OutputDir:  "output",
		IgnorePatterns: []string{
			".*",
			"*.swp",
			"*.tmp",
			"*~",
		},
		DebounceMs:    200,
		CoreWorkers:   runtime.NumCPU(),
		MaxWorkers:    10,
		QueueSize:     25,
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
	}
}

// Load reads configuration from path (JSON, YAML or TOML by extension),
// applies DIALOGSPLIT_* environment overrides, and falls back to defaults
// for any unset fields. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Re-derive paths if DataDir was overridden but socket/db paths were not.
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "dialogsplit.sock")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "dialogsplit.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so env overrides reach Unmarshal.
// Socket and DB paths default to empty and are derived from DataDir.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("socket_path", "")
	v.SetDefault("db_path", "")
	v.SetDefault("input_dir", d.InputDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("ignore_patterns", d.IgnorePatterns)
	v.SetDefault("scan_on_start", d.ScanOnStart)
	v.SetDefault("debounce_ms", d.DebounceMs)
	v.SetDefault("core_workers", d.CoreWorkers)
	v.SetDefault("max_workers", d.MaxWorkers)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_max_size_mb", d.LogMaxSizeMB)
	v.SetDefault("log_max_backups", d.LogMaxBackups)
	v.SetDefault("log_max_age_days", d.LogMaxAgeDays)
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("config: input_dir is required")
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("config: max_workers must be at least 1, got %d", c.MaxWorkers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("config: queue_size must not be negative, got %d", c.QueueSize)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("config: debounce_ms must not be negative, got %d", c.DebounceMs)
	}
	return nil
}

// Debounce returns DebounceMs as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// EnsureDirs creates the input and output directories, with parents.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.InputDir, c.OutputDir} {
		if info, err := os.Stat(dir); err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s exists and is not a directory", dir)
			}
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		log.Printf("config: created %s", dir)
	}
	return nil
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
