package config

const (
	defaultDataDir    = "~/.local/share/taskmill"
	defaultLogDir     = "~/.local/share/taskmill/logs"
	defaultLockDir    = "~/.local/share/taskmill/locks"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"
	defaultBatchSize  = 10
	defaultMaxIdle    = 10
	defaultMinSleepMS = 50
	defaultMaxSleepMS = 1000
	defaultPriority   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			LockDir: defaultLockDir,
		},
		Queue: Queue{
			DefaultPriority: defaultPriority,
		},
		Worker: Worker{
			BatchSize:  defaultBatchSize,
			MaxIdle:    defaultMaxIdle,
			MinSleepMS: defaultMinSleepMS,
			MaxSleepMS: defaultMaxSleepMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
