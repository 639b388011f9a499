package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-soundmap/internal/config"
	"github.com/teslashibe/go-soundmap/internal/log"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// logger returns a logger on the command's stderr so table output on
// stdout stays clean.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return log.New(cmd.ErrOrStderr(), "", "")
	}
	return log.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
}

// daemonLogger installs the process-wide logger for long-running commands.
func (c *commandContext) daemonLogger() *slog.Logger {
	cfg, err := c.ensureConfig()
	if err == nil && cfg != nil {
		log.Init(cfg.Logging.Level, cfg.Logging.Format)
	} else {
		log.Init("", "")
	}
	return log.L()
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
