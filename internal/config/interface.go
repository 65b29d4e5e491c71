package config

import "github.com/spf13/pflag"

const (
	DefaultEnvPrefix  = "RFHEALTH"
	DefaultConfigName = "rfhealth"
	DefaultEnvFile    = ".env"
)

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
	flags      *pflag.FlagSet
}

// WithConfigFile specifies an explicit configuration file path. It takes
// precedence over the <prefix>_CONFIG environment variable.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "RFHEALTH"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithFlags binds command line flags. Only flags that were set on the
// command line override file and environment values.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(o *options) error {
		o.flags = fs
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, "warn":
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"log-level":       "log_level",
	"debug":           "debug",
	"verbose":         "verbose",
	"pool-size":       "pool_size",
	"interval":        "interval",
	"poll-timeout":    "poll_timeout",
	"request-timeout": "request_timeout",
	"auth-mode":       "auth_mode",
	"pid-file":        "pid_file",
	"listen":          "listen",
	"env-file":        "env_file",
}
