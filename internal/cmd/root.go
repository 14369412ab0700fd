// Package cmd 提供 portfolio 命令行：启动服务以及访问日志的离线维护。
package cmd

import (
	"fmt"

	"github.com/granito/portfolio/internal/app"
	"github.com/granito/portfolio/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCommand 构造根命令及全部子命令。
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "portfolio",
		Short:         "Portfolio site server and visitor log tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (env PORTFOLIO_* overrides)")

	rootCmd.AddCommand(
		newServeCommand(),
		newStatsCommand(),
		newCleanupCommand(),
		newExportCommand(),
		newSeedCommand(),
		newHashPasswordCommand(),
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp 加载配置并打开存储，调用方负责 Close。
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg.Log, cmd.ErrOrStderr())
	return app.New(cfg, logger)
}
