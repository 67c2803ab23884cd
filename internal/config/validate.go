package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.LockDir == "" {
		return errors.New("paths.lock_dir must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.DefaultPriority < 0 || c.Queue.DefaultPriority > 100 {
		return errors.New("queue.default_priority must be between 0 and 100")
	}
	if c.Queue.DefaultRetries < 0 {
		return errors.New("queue.default_retries must not be negative")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.BatchSize <= 0 {
		return errors.New("worker.batch_size must be positive")
	}
	if c.Worker.MaxIdle <= 0 {
		return errors.New("worker.max_idle must be positive")
	}
	if c.Worker.MinSleepMS <= 0 {
		return errors.New("worker.min_sleep_ms must be positive")
	}
	if c.Worker.MaxSleepMS < c.Worker.MinSleepMS {
		return errors.New("worker.max_sleep_ms must not be below worker.min_sleep_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
