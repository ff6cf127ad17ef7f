package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/pythagoras-dev/pythagoras/src/common"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key.
	DefaultKeyfile = "node_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database.
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultServiceAddr      = "127.0.0.1:8080"
	DefaultCacheSize        = 10000
	DefaultCheckProbability = 0.1
	DefaultMaxAttempts      = 5
	DefaultBaseDelay        = 1000 * time.Millisecond
	DefaultWorkers          = 2
	DefaultSampleMin        = 200
	DefaultSampleMax        = 5000
	DefaultPollInterval     = 1000 * time.Millisecond
	DefaultStore            = false
)

// Config contains all the configuration properties of a Pythagoras node.
type Config struct {
	// DataDir is the top-level directory containing Pythagoras configuration
	// and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, mirrors info-and-above log output to a file in
	// addition to stderr.
	LogFile string `mapstructure:"log-file"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package, so another server in the
	// same process may expose them too.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistent storage with a Badger database; without it
	// the portal lives in memory and dies with the process.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in the in-memory value cache.
	CacheSize int `mapstructure:"cache-size"`

	// CheckProbability is the sampling rate at which duplicate writes to
	// write-once keys are verified against the committed bytes. Verification
	// is expensive per call, so this trades detection latency for
	// throughput.
	CheckProbability float64 `mapstructure:"check-probability"`

	// MaxAttempts is the execution attempt ceiling per work item; beyond it
	// the item is dead-lettered and left to monitoring.
	MaxAttempts int `mapstructure:"max-attempts"`

	// BaseDelay is the unit of exponential backoff between execution
	// attempts and readiness polls.
	BaseDelay time.Duration `mapstructure:"base-delay"`

	// Workers is the number of background worker routines attached to the
	// principal process.
	Workers int `mapstructure:"workers"`

	// SampleMin and SampleMax bound the randomized number of pending
	// requests a worker samples per polling round.
	SampleMin int `mapstructure:"sample-min"`
	SampleMax int `mapstructure:"sample-max"`

	// PollInterval is the base sleep between a worker's polling rounds when
	// it found nothing eligible to execute.
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// Moniker defines the friendly name of this node.
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		ServiceAddr:      DefaultServiceAddr,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		CacheSize:        DefaultCacheSize,
		CheckProbability: DefaultCheckProbability,
		MaxAttempts:      DefaultMaxAttempts,
		BaseDelay:        DefaultBaseDelay,
		Workers:          DefaultWorkers,
		SampleMin:        DefaultSampleMin,
		SampleMax:        DefaultSampleMax,
		PollInterval:     DefaultPollInterval,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. Timing knobs are compressed so tests do not
// sit in real backoff windows.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.BaseDelay = 10 * time.Millisecond
	config.PollInterval = 10 * time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level Pythagoras directory, and updates the
// database directory if it is currently set to the default value. If the
// database directory is not currently the default, it means the user has
// explicitly set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the node private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "pythagoras".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}

			if _, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY, 0666); err != nil {
				c.logger.Info("Failed to open log file, using default stderr")
			} else {
				pathMap[logrus.InfoLevel] = c.LogFile
				pathMap[logrus.WarnLevel] = c.LogFile
				pathMap[logrus.ErrorLevel] = c.LogFile
			}

			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "pythagoras")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory name for top-level Pythagoras
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Pythagoras")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Pythagoras")
		} else {
			return filepath.Join(home, ".pythagoras")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
