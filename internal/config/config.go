package config

import (
	"errors"
	"fmt"
	"mirrord/internal/model"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Directories []model.DirectoryPair `mapstructure:"directories"`
	Debounce    time.Duration         `mapstructure:"debounce"`
	BufferSize  int                   `mapstructure:"buffer_size"`
	IgnoreList  []string              `mapstructure:"ignore_list"`
	DaemonPort  int                   `mapstructure:"daemon_port"`
	DBPath      string                `mapstructure:"db_path"`

	// history rows older than this are pruned when the daemon starts; 0 keeps all
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

var Default = Config{
	Debounce:   10 * time.Second,
	BufferSize: 100,
	IgnoreList: []string{},
	DaemonPort: 9001,
	DBPath:     "mirrord.db",

	HistoryRetention: 30 * 24 * time.Hour,
}

// Dir returns the directory holding the config file and the history database.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	return filepath.Join(home, ".mirrord"), nil
}

// Load reads the config from file, or from config.yaml in Dir when file is empty.
// A missing default config file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	var baseDir string
	if file != "" {
		v.SetConfigFile(file)
		baseDir = filepath.Dir(file)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config dir: %w", err)
		}

		v.SetConfigName("config")
		v.AddConfigPath(dir)
		baseDir = dir
	}

	v.SetDefault("debounce", Default.Debounce)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("history_retention", Default.HistoryRetention)

	v.SetEnvPrefix("MIRRORD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok || file != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DBPath != "" && !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(baseDir, cfg.DBPath)
	}

	return &cfg, nil
}

// Validate checks the directory pairs before any watcher starts.
func (c *Config) Validate() error {
	if len(c.Directories) == 0 {
		return errors.New("no directories configured")
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", c.Debounce)
	}

	if c.HistoryRetention < 0 {
		return fmt.Errorf("history_retention must not be negative, got %s", c.HistoryRetention)
	}

	for i, pair := range c.Directories {
		if err := ValidatePair(pair); err != nil {
			return fmt.Errorf("directories[%d]: %w", i, err)
		}
	}

	return nil
}

func ValidatePair(pair model.DirectoryPair) error {
	if pair.Source == "" || pair.Target == "" {
		return errors.New("source and target are required")
	}

	src, err := filepath.Abs(pair.Source)
	if err != nil {
		return fmt.Errorf("invalid source path: %w", err)
	}
	dst, err := filepath.Abs(pair.Target)
	if err != nil {
		return fmt.Errorf("invalid target path: %w", err)
	}

	if src == dst {
		return fmt.Errorf("source and target are the same path: %s", src)
	}

	if within(src, dst) || within(dst, src) {
		return fmt.Errorf("source %s and target %s are nested", src, dst)
	}

	return nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
