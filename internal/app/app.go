// Package app 根据配置组装进程级的应用上下文：存储后端、服务与内容。
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/granito/portfolio/internal/config"
	"github.com/granito/portfolio/internal/content"
	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/notify"
	"github.com/granito/portfolio/internal/service"
	"github.com/granito/portfolio/internal/storage"
	"github.com/granito/portfolio/internal/storage/jsonfile"
	pebblestore "github.com/granito/portfolio/internal/storage/pebble"
	"github.com/granito/portfolio/internal/storage/sqlstore"
	"gorm.io/gorm"
)

// App 持有一个进程内唯一的访问日志与留言日志实例。
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Visitors *service.VisitorTracker
	Contacts *service.ContactService
	Auth     *service.AdminAuth
	Content  *content.Site

	closers []io.Closer
	pinger  func() error
}

// NewLogger 按配置创建 slog 记录器。
func NewLogger(cfg config.LogConfig, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stdout
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// New 打开配置的存储后端并构造服务。
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger, pinger: func() error { return nil }}

	visitorsLog, contactsLog, err := a.openLogs(cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Visitors = service.NewVisitorTracker(visitorsLog, cfg.Visitors.MaxEvents, logger)
	a.Contacts = service.NewContactService(contactsLog, logger)
	if hook := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.NotifyTimeout()); hook != nil {
		a.Contacts.WithNotifier(hook)
	}

	a.Auth, err = service.NewAdminAuth(cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.PasswordHash)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("configure admin auth: %w", err)
	}
	if !a.Auth.Enabled() {
		logger.Warn("[App] Admin credentials not configured, admin login disabled")
	} else if cfg.Server.SessionSecret == config.DefaultSessionSecret {
		logger.Warn("[App] Admin login uses the default session secret", "mode", cfg.Server.Mode)
	}

	a.Content, err = content.Load(cfg.Content.Path)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("[App] Storage ready",
		"driver", cfg.Storage.Driver,
		"data_dir", cfg.Storage.DataDir,
		"max_events", a.Visitors.MaxEvents(),
		"admin", a.Auth.Username(),
	)
	return a, nil
}

func (a *App) openLogs(cfg config.StorageConfig) (storage.Log[db.VisitorEvent], storage.Log[db.ContactMessage], error) {
	switch cfg.Driver {
	case config.StorageDriverFile:
		visitors := jsonfile.New[db.VisitorEvent](filepath.Join(cfg.DataDir, cfg.VisitorsFile))
		contacts := jsonfile.New[db.ContactMessage](filepath.Join(cfg.DataDir, cfg.ContactsFile))
		a.Logger.Debug("[App] Using JSON files", "visitors", visitors.Path(), "contacts", contacts.Path())
		return visitors, contacts, nil

	case config.StorageDriverSQLite:
		gdb, err := db.Open(filepath.Join(cfg.DataDir, cfg.DatabasePath))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, gormCloser{gdb})
		a.pinger = func() error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		}
		return sqlstore.New[db.VisitorEvent](gdb, storage.VisitorsLog),
			sqlstore.New[db.ContactMessage](gdb, storage.ContactsLog),
			nil

	case config.StorageDriverPebble:
		opts := pebblestore.Options{
			DataDir: filepath.Join(cfg.DataDir, cfg.PebbleDir),
			Fsync:   pebblestore.FsyncModeAlways,
		}
		if cfg.PebbleFsync == config.PebbleFsyncInterval {
			every, err := cfg.FsyncEvery()
			if err != nil {
				return nil, nil, fmt.Errorf("parse pebble fsync interval: %w", err)
			}
			opts.Fsync = pebblestore.FsyncModeInterval
			opts.FsyncInterval = every
		}
		pdb, err := pebblestore.Open(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("open pebble: %w", err)
		}
		a.closers = append(a.closers, pdb)
		a.Logger.Debug("[App] Opened pebble", "dir", opts.DataDir, "fsync", cfg.PebbleFsync, "fsync_interval", opts.FsyncInterval)
		return pebblestore.NewLog[db.VisitorEvent](pdb, storage.VisitorsLog),
			pebblestore.NewLog[db.ContactMessage](pdb, storage.ContactsLog),
			nil
	}
	return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

// Ping 检查存储是否可用。
func (a *App) Ping() error {
	return a.pinger()
}

// Close 释放存储资源。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type gormCloser struct {
	db *gorm.DB
}

func (g gormCloser) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
