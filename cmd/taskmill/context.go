package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"taskmill/internal/config"
	"taskmill/internal/queue"
)

type commandContext struct {
	configFlag *string
	groupFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, groupFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		groupFlag:  groupFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) group() string {
	if c.groupFlag == nil {
		return "default"
	}
	if strings.TrimSpace(*c.groupFlag) == "" {
		*c.groupFlag = "default"
	}
	return *c.groupFlag
}

// withStore opens the task store for the duration of one command.
func (c *commandContext) withStore(fn func(cfg *config.Config, store *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func (c *commandContext) withManager(fn func(cfg *config.Config, mgr *queue.Manager) error) error {
	return c.withStore(func(cfg *config.Config, store *queue.Store) error {
		mgr, err := queue.NewManager(store, c.group(), queue.WithIgnoreList(cfg.Queue.Ignore))
		if err != nil {
			return err
		}
		return fn(cfg, mgr)
	})
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
