package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "IMAGEONMAP"

// Config is the process configuration. Directory keys left empty are derived
// from DataDir.
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	CacheDir  string `mapstructure:"cache_dir"`
	ImagesDir string `mapstructure:"images_dir"`

	HTTPAddr string `mapstructure:"http_addr"`

	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	Interactive bool   `mapstructure:"interactive"`
	MaxLogLines int    `mapstructure:"max_log_lines"`

	RetainPendingOnQuit bool  `mapstructure:"retain_pending_on_quit"`
	SourceCacheMB       int64 `mapstructure:"source_cache_mb"`
	SendQueueSize       int   `mapstructure:"send_queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("cache_dir", "")
	v.SetDefault("images_dir", "")
	v.SetDefault("http_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("interactive", false)
	v.SetDefault("max_log_lines", 1000)
	v.SetDefault("retain_pending_on_quit", false)
	v.SetDefault("source_cache_mb", 64)
	v.SetDefault("send_queue_size", 256)
}

// Load reads configuration from, in increasing priority: defaults, the
// config file, a .env file in the working directory, the environment and
// overrides (keyed like the config file, usually set from flags).
// An empty path looks for imageonmap.yaml in the working directory and the
// data directory, and tolerates its absence.
func Load(path string, overrides map[string]any) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("imageonmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.fill()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) fill() {
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "maps")
	}
	if c.ImagesDir == "" {
		c.ImagesDir = filepath.Join(c.DataDir, "images")
	}
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.SourceCacheMB < 0 {
		return fmt.Errorf("source_cache_mb must not be negative, got %d", c.SourceCacheMB)
	}
	if c.SendQueueSize < 1 {
		return fmt.Errorf("send_queue_size must be at least 1, got %d", c.SendQueueSize)
	}
	return nil
}
