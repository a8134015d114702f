package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Ning0612/Hotfolder/internal/config"
	"github.com/Ning0612/Hotfolder/internal/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the config and initializes the global logger once
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if err := logger.Init(loggerConfig(cfg.Log)); err != nil {
			c.configErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func loggerConfig(lc config.LogConfig) logger.Config {
	cfg := logger.ConsoleConfig(lc.Level, lc.Format, lc.File)
	if cfg.File.Enabled {
		if lc.MaxSizeMB > 0 {
			cfg.File.MaxSizeMB = lc.MaxSizeMB
		}
		if lc.MaxAgeDays > 0 {
			cfg.File.MaxAgeDays = lc.MaxAgeDays
		}
		if lc.MaxBackups > 0 {
			cfg.File.MaxBackups = lc.MaxBackups
		}
		cfg.File.Compress = lc.Compress
	}
	return cfg
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// isTerminal reports whether f is an interactive terminal
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
