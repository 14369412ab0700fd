package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 是环境变量覆盖的前缀，双下划线表示层级，如 PORTFOLIO_SERVER__PORT。
const EnvPrefix = "PORTFOLIO_"

// DefaultSessionSecret 仅用于本地开发，release 模式下启用后台时必须替换。
const DefaultSessionSecret = "portfolio-dev-secret"

// 支持的存储后端
const (
	StorageDriverFile   = "file"
	StorageDriverSQLite = "sqlite"
	StorageDriverPebble = "pebble"
)

// pebble 写入的刷盘策略
const (
	PebbleFsyncAlways   = "always"
	PebbleFsyncInterval = "interval"
)

// Config 汇总运行服务所需的配置。
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Visitors VisitorsConfig `koanf:"visitors"`
	Admin    AdminConfig    `koanf:"admin"`
	Notify   NotifyConfig   `koanf:"notify"`
	Content  ContentConfig  `koanf:"content"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	Mode          string `koanf:"mode"` // debug | release | test
	SessionSecret string `koanf:"session_secret"`
	TrustedProxy  bool   `koanf:"trusted_proxy"`
}

type StorageConfig struct {
	Driver       string `koanf:"driver"`
	DataDir      string `koanf:"data_dir"`
	VisitorsFile string `koanf:"visitors_file"`
	ContactsFile string `koanf:"contacts_file"`
	DatabasePath string `koanf:"database_path"`
	PebbleDir    string `koanf:"pebble_dir"`

	PebbleFsync         string `koanf:"pebble_fsync"`          // always | interval
	PebbleFsyncInterval string `koanf:"pebble_fsync_interval"` // 仅 interval 模式使用
}

type VisitorsConfig struct {
	MaxEvents       int      `koanf:"max_events"`
	RetentionDays   int      `koanf:"retention_days"`
	CleanupInterval string   `koanf:"cleanup_interval"` // 为空表示不启动定时清理
	TrackedPaths    []string `koanf:"tracked_paths"`
	ExportPath      string   `koanf:"export_path"`
}

type AdminConfig struct {
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
	PasswordHash string `koanf:"password_hash"`
}

type NotifyConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	Timeout    string `koanf:"timeout"`
}

type ContentConfig struct {
	Path string `koanf:"path"` // 为空时使用内置内容
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text | json
}

// ListenAddr 返回 host:port。
func (c ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CleanupEvery 解析清理间隔，未配置时返回 0。
func (c VisitorsConfig) CleanupEvery() (time.Duration, error) {
	if strings.TrimSpace(c.CleanupInterval) == "" {
		return 0, nil
	}
	return time.ParseDuration(c.CleanupInterval)
}

// FsyncEvery 解析 pebble 的刷盘间隔。
func (c StorageConfig) FsyncEvery() (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(c.PebbleFsyncInterval))
}

// NotifyTimeout 解析通知超时，未配置时为 10 秒。
func (c NotifyConfig) NotifyTimeout() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid server.mode %q (must be debug, release or test)", c.Server.Mode)
	}
	if strings.TrimSpace(c.Server.SessionSecret) == "" {
		return fmt.Errorf("server.session_secret is required")
	}

	switch c.Storage.Driver {
	case StorageDriverFile, StorageDriverSQLite, StorageDriverPebble:
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	switch c.Storage.PebbleFsync {
	case PebbleFsyncAlways:
	case PebbleFsyncInterval:
		every, err := c.Storage.FsyncEvery()
		if err != nil {
			return fmt.Errorf("invalid storage.pebble_fsync_interval %q: %w", c.Storage.PebbleFsyncInterval, err)
		}
		if every <= 0 {
			return fmt.Errorf("storage.pebble_fsync_interval must be > 0")
		}
	default:
		return fmt.Errorf("invalid storage.pebble_fsync %q (must be always or interval)", c.Storage.PebbleFsync)
	}

	if c.Visitors.MaxEvents <= 0 {
		return fmt.Errorf("visitors.max_events must be > 0")
	}
	if c.Visitors.RetentionDays <= 0 {
		return fmt.Errorf("visitors.retention_days must be > 0")
	}
	interval, err := c.Visitors.CleanupEvery()
	if err != nil {
		return fmt.Errorf("invalid visitors.cleanup_interval %q: %w", c.Visitors.CleanupInterval, err)
	}
	if interval < 0 {
		return fmt.Errorf("visitors.cleanup_interval must be >= 0")
	}

	if c.Admin.Username != "" && c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return fmt.Errorf("admin.password or admin.password_hash is required when admin.username is set")
	}
	// 默认密钥公开可见，用它签名的会话 cookie 可被伪造
	if c.Server.Mode == "release" && c.Admin.Username != "" && c.Server.SessionSecret == DefaultSessionSecret {
		return fmt.Errorf("server.session_secret must be changed from the default when admin login is enabled in release mode")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}

	return nil
}

// Load 依次读取默认值、配置文件（可选）与环境变量，并校验结果。
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.host":                   "0.0.0.0",
		"server.port":                   8080,
		"server.mode":                   "release",
		"server.session_secret":         DefaultSessionSecret,
		"server.trusted_proxy":          false,
		"storage.driver":                StorageDriverFile,
		"storage.data_dir":              "data",
		"storage.visitors_file":         "visitors.json",
		"storage.contacts_file":         "contacts.json",
		"storage.database_path":         "portfolio.db",
		"storage.pebble_dir":            "pebble",
		"storage.pebble_fsync":          PebbleFsyncAlways,
		"storage.pebble_fsync_interval": "5ms",
		"visitors.max_events":           10000,
		"visitors.retention_days":       90,
		"visitors.cleanup_interval":     "24h",
		"visitors.tracked_paths":        []string{"/", "/about", "/projects", "/blog", "/blog/:id", "/contact"},
		"visitors.export_path":          "exports/visitors.csv",
		"notify.timeout":                "10s",
		"log.level":                     "info",
		"log.format":                    "text",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
