package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tessera/internal/config"
	"tessera/internal/logging"
)

// loadedConfig is the result of resolving --config, computed once per process.
type loadedConfig struct {
	cfg    *config.Config
	path   string
	exists bool
}

type commandContext struct {
	load func() (loadedConfig, error)
}

// newCommandContext defers reading configFlag until the first command needs
// the config, which is after cobra has parsed flags.
func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{load: sync.OnceValues(func() (loadedConfig, error) {
		cfg, path, exists, err := config.Load(strings.TrimSpace(*configFlag))
		return loadedConfig{cfg: cfg, path: path, exists: exists}, err
	})}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	lc, err := c.load()
	return lc.cfg, err
}

// configSource reports the resolved config path and whether a file was found
// there (defaults are used otherwise).
func (c *commandContext) configSource() (string, bool) {
	lc, _ := c.load()
	return lc.path, lc.exists
}

// logger builds the run logger, optionally overriding logging.level. Console
// output goes to stderr so stdout stays reserved for tables and JSON.
func (c *commandContext) logger(level string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if level = strings.TrimSpace(level); level != "" {
		override := *cfg
		override.Logging.Level = level
		cfg = &override
	}
	return logging.NewFromConfig(cfg)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
