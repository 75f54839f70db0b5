package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chaz8081/gostt-server/internal/config"
	"github.com/chaz8081/gostt-server/internal/logging"
)

type commandContext struct {
	configFlag *string

	once      sync.Once
	config    *config.Config
	source    string
	logger    *zap.Logger
	configErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads, overrides from the environment, and validates the
// config once per process, then builds the logger from it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		cfg, source, err := loadConfig(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := config.LoadEnv(cfg); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("config validation: %w", err)
			return
		}
		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			c.configErr = err
			return
		}
		c.config, c.source, c.logger = cfg, source, logger
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. It also reports
// where the config came from.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return config.Default(), "defaults", nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
