// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config.yml"
	envPrefix   = "TASKFLOW"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	Repository   RepositoryConfig   `yaml:"repository"`
	LocalStore   LocalStoreConfig   `yaml:"local_store"`
	Sync         SyncConfig         `yaml:"sync"`
	Tasks        TasksConfig        `yaml:"tasks"`
	Parser       ParserConfig       `yaml:"parser"`
	Auth         AuthConfig         `yaml:"auth"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"` // запросов в минуту с одного IP
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AutoMigrate    bool          `yaml:"auto_migrate"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type RepositoryConfig struct {
	Type string `yaml:"type"` // "postgres" или "inmemory"
}

type LocalStoreConfig struct {
	Type string `yaml:"type"` // "sqlite" или "memory"
	Path string `yaml:"path"`
}

type SyncConfig struct {
	AutoSync       bool          `yaml:"auto_sync"`
	Interval       time.Duration `yaml:"interval"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	OfflineMode    bool          `yaml:"offline_mode"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type TasksConfig struct {
	GracePeriod    time.Duration `yaml:"grace_period"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ParserConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	APIKey     string        `yaml:"-"` // только из окружения
	KeyringDir string        `yaml:"keyring_dir"`
}

type AuthConfig struct {
	UserID string `yaml:"user_id"` // вход при старте, пусто - ждать /auth/signin
}

type ConnectivityConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
			MinConnections: 2,
			IdleTimeout:    5 * time.Minute,
			AutoMigrate:    true,
		},
		Repository: RepositoryConfig{Type: "inmemory"},
		LocalStore: LocalStoreConfig{Type: "sqlite", Path: "taskflow.db"},
		Sync: SyncConfig{
			AutoSync:       true,
			Interval:       30 * time.Second,
			RetryAttempts:  3,
			RetryDelay:     5 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Tasks: TasksConfig{
			GracePeriod:    10 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Parser: ParserConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 20 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			Enabled:  true,
			Interval: 15 * time.Second,
			Timeout:  3 * time.Second,
		},
	}
}

// Load читает YAML поверх значений по умолчанию и применяет переменные
// окружения TASKFLOW_<СЕКЦИЯ>_<КЛЮЧ>. Отсутствующий файл - не ошибка.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("не могу открыть %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("ошибка парсинга %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	integer := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	str("server.host", &cfg.Server.Host)
	str("server.port", &cfg.Server.Port)
	duration("server.handler_timeout", &cfg.Server.HandlerTimeout)
	integer("server.rate_limit", &cfg.Server.RateLimit)
	if v.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = strings.Split(v.GetString("server.cors_origins"), ",")
	}

	str("database.url", &cfg.Database.URL)
	integer("database.max_connections", &cfg.Database.MaxConnections)
	boolean("database.auto_migrate", &cfg.Database.AutoMigrate)

	boolean("logging.development", &cfg.Logging.Development)
	str("repository.type", &cfg.Repository.Type)
	str("local_store.type", &cfg.LocalStore.Type)
	str("local_store.path", &cfg.LocalStore.Path)

	boolean("sync.auto_sync", &cfg.Sync.AutoSync)
	duration("sync.interval", &cfg.Sync.Interval)
	integer("sync.retry_attempts", &cfg.Sync.RetryAttempts)
	duration("sync.retry_delay", &cfg.Sync.RetryDelay)
	boolean("sync.offline_mode", &cfg.Sync.OfflineMode)

	duration("tasks.grace_period", &cfg.Tasks.GracePeriod)

	str("parser.base_url", &cfg.Parser.BaseURL)
	str("parser.model", &cfg.Parser.Model)
	str("parser.api_key", &cfg.Parser.APIKey)
	str("parser.keyring_dir", &cfg.Parser.KeyringDir)

	str("auth.user_id", &cfg.Auth.UserID)

	boolean("connectivity.enabled", &cfg.Connectivity.Enabled)
	duration("connectivity.interval", &cfg.Connectivity.Interval)
}

func (c *Config) Validate() error {
	switch c.Repository.Type {
	case "inmemory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("repository.type=postgres требует database.url")
		}
	default:
		return fmt.Errorf("неизвестный repository.type %q", c.Repository.Type)
	}

	switch c.LocalStore.Type {
	case "memory":
	case "sqlite":
		if c.LocalStore.Path == "" {
			return errors.New("local_store.type=sqlite требует local_store.path")
		}
	default:
		return fmt.Errorf("неизвестный local_store.type %q", c.LocalStore.Type)
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval должен быть положительным")
	}
	if c.Sync.RetryAttempts < 0 {
		return errors.New("sync.retry_attempts не может быть отрицательным")
	}
	if c.Connectivity.Enabled && c.Connectivity.Interval <= 0 {
		return errors.New("connectivity.interval должен быть положительным")
	}
	return nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
