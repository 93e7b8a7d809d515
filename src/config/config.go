package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/relay/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultTreeFile is the default name of the file describing the server
	// tree.
	DefaultTreeFile = "tree.json"
)

// Default configuration values.
const (
	DefaultLogLevel    = "debug"
	DefaultBindAddr    = "127.0.0.1:1337"
	DefaultServiceAddr = "127.0.0.1:8000"
	DefaultTCPTimeout  = 1000 * time.Millisecond
	DefaultMaxPool     = 2
	DefaultStore       = false
	DefaultBufferLimit = 10000
)

// Config contains all the configuration properties of a relay server.
type Config struct {
	// DataDir is the top-level directory containing the relay configuration,
	// the tree file and the database
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, also writes the logs to this file.
	LogFile string `mapstructure:"log-file"`

	// Name is the name of this server in the tree.
	Name string `mapstructure:"name"`

	// BindAddr is the local address:port where this server talks to its
	// neighbors.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// servers.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per neighbor.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of server-to-server RPCs.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Store activates persistent storage of the migration records.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// BufferLimit is the maximum number of lines buffered for a client
	// migrating here before it resumes. Zero means no limit.
	BufferLimit int `mapstructure:"buffer-limit"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		BindAddr:    DefaultBindAddr,
		ServiceAddr: DefaultServiceAddr,
		MaxPool:     DefaultMaxPool,
		TCPTimeout:  DefaultTCPTimeout,
		Store:       DefaultStore,
		DatabaseDir: DefaultDatabaseDir(),
		BufferLimit: DefaultBufferLimit,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level relay directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// TreeFile returns the full path of the file describing the server tree.
func (c *Config) TreeFile() string {
	return filepath.Join(c.DataDir, DefaultTreeFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "relay".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.logFileMap(),
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "relay")
}

// logFileMap sends every level at or above the configured one to LogFile.
func (c *Config) logFileMap() lfshook.PathMap {
	pathMap := lfshook.PathMap{}
	for _, l := range logrus.AllLevels {
		if l <= c.logger.Level {
			pathMap[l] = c.LogFile
		}
	}
	return pathMap
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level relay config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Relay")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Relay")
		} else {
			return filepath.Join(home, ".relay")
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
