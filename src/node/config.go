package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/relay/src/common"
	"github.com/sirupsen/logrus"
)

// DefaultRetryDelay is the delay before the first retry of a failed RPC. It
// grows with every attempt.
const DefaultRetryDelay = 100 * time.Millisecond

// Config contains the settings of a Node.
type Config struct {
	TCPTimeout  time.Duration `mapstructure:"timeout"`
	BufferLimit int           `mapstructure:"buffer-limit"`
	RetryDelay  time.Duration `mapstructure:"retry-delay"`
	Logger      *logrus.Logger
}

// NewConfig creates a Config.
func NewConfig(timeout time.Duration,
	bufferLimit int,
	logger *logrus.Logger) *Config {

	return &Config{
		TCPTimeout:  timeout,
		BufferLimit: bufferLimit,
		RetryDelay:  DefaultRetryDelay,
		Logger:      logger,
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		TCPTimeout:  1000 * time.Millisecond,
		BufferLimit: 1000,
		RetryDelay:  DefaultRetryDelay,
		Logger:      logger,
	}
}

// TestConfig returns a default Config that logs through t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
