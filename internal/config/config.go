package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"codeberg.org/mutker/rfhealth/internal/aggregator"
	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
	"codeberg.org/mutker/rfhealth/internal/redfish"
	"codeberg.org/mutker/rfhealth/internal/sink"
)

const (
	DefaultLogLevel       = LogLevelInfo
	DefaultPoolSize       = 8
	DefaultInterval       = 60 * time.Second
	DefaultPollTimeout    = 60 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultSessionTTL     = 25 * time.Minute
	DefaultAuthMode       = "session"
	DefaultPIDFile        = "/run/rfhealth.pid"
	DefaultSQLitePath     = "/var/lib/rfhealth/rfhealth.db"
)

type Config struct {
	LogLevel       string        `mapstructure:"log_level"`
	Debug          bool          `mapstructure:"debug"`
	Verbose        bool          `mapstructure:"verbose"`
	PoolSize       int           `mapstructure:"pool_size"`
	Interval       time.Duration `mapstructure:"interval"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	AuthMode       string        `mapstructure:"auth_mode"`
	PIDFile        string        `mapstructure:"pid_file"`
	EnvFile        string        `mapstructure:"env_file"`
	Listen         string        `mapstructure:"listen"`
	Devices        []Device      `mapstructure:"devices"`
	Sinks          SinksConfig   `mapstructure:"sinks"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `mapstructure:"-"`
}

type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// Device is one management endpoint. The secret comes from Password or,
// when that is empty, from the environment variable named by PasswordEnv.
type Device struct {
	ID          string `mapstructure:"id"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	PasswordEnv string `mapstructure:"password_env"`
	// VerifyTLS defaults to true when unset.
	VerifyTLS *bool  `mapstructure:"verify_tls"`
	Scheme    string `mapstructure:"scheme"`
	Protocol  string `mapstructure:"protocol"`
}

type SinksConfig struct {
	// Stdout writes JSON lines to standard output.
	Stdout    bool       `mapstructure:"stdout"`
	JSONLines FileSink   `mapstructure:"jsonl"`
	CSV       FileSink   `mapstructure:"csv"`
	SQLite    SQLiteSink `mapstructure:"sqlite"`
	NATS      NATSSink   `mapstructure:"nats"`
}

type FileSink struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type SQLiteSink struct {
	Enabled      bool          `mapstructure:"enabled"`
	Path         string        `mapstructure:"path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	BackupDir    string        `mapstructure:"backup_dir"`
}

type NATSSink struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Threshold     string `mapstructure:"threshold"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("pool_size", DefaultPoolSize)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("poll_timeout", DefaultPollTimeout)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("retry.max_retries", DefaultMaxRetries)
	v.SetDefault("retry.initial_backoff", DefaultInitialBackoff)
	v.SetDefault("retry.max_backoff", DefaultMaxBackoff)
	v.SetDefault("session_ttl", DefaultSessionTTL)
	v.SetDefault("auth_mode", DefaultAuthMode)
	v.SetDefault("pid_file", DefaultPIDFile)
	v.SetDefault("env_file", "")
	v.SetDefault("listen", "")
	v.SetDefault("sinks.stdout", false)
	v.SetDefault("sinks.jsonl.enabled", false)
	v.SetDefault("sinks.jsonl.path", "")
	v.SetDefault("sinks.csv.enabled", false)
	v.SetDefault("sinks.csv.path", "")
	v.SetDefault("sinks.sqlite.enabled", false)
	v.SetDefault("sinks.sqlite.path", DefaultSQLitePath)
	v.SetDefault("sinks.sqlite.batch_size", 1)
	v.SetDefault("sinks.sqlite.batch_timeout", 0)
	v.SetDefault("sinks.sqlite.backup_dir", "")
	v.SetDefault("sinks.nats.enabled", false)
	v.SetDefault("sinks.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("sinks.nats.subject_prefix", sink.DefaultSubjectPrefix)
	v.SetDefault("sinks.nats.threshold", health.Warning.String())
}

// Load reads defaults, the config file, the env file, the environment and
// flags, in increasing order of precedence, then validates the result.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for name, key := range flagKeys {
			if f := o.flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrBindFlags, err)
				}
			}
		}
	}

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext != "yaml" && ext != "yml" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file: "+err.Error())
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/rfhealth")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file: "+err.Error())
			}
		}
	}

	if err := loadEnvFile(v.GetString("env_file")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to unmarshal config: "+err.Error())
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads an explicitly named env file, failing if it is
// missing, or the default .env when present. Existing variables win.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		return errors.New().WithData(errors.ErrReadConfig, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "load_env_file",
			Path:  path,
			Error: err.Error(),
		})
	}

	return nil
}

// Level resolves the effective log level. --debug and --verbose win over
// log_level.
func (c *Config) Level() logger.LogLevel {
	switch {
	case c.Debug:
		return logger.DebugLevel
	case c.Verbose:
		return logger.InfoLevel
	}

	level, _ := logger.ParseLevel(c.LogLevel)

	return level
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.PoolSize <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "pool_size must be positive")
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if c.PollTimeout <= 0 || c.RequestTimeout <= 0 || c.SessionTTL <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "timeouts must be positive")
	}
	if c.Retry.MaxRetries < 0 || c.Retry.InitialBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "invalid retry settings")
	}
	switch redfish.AuthMode(c.AuthMode) {
	case redfish.AuthSession, redfish.AuthBasic:
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "auth_mode: "+c.AuthMode)
	}

	if len(c.Devices) == 0 {
		return errFactory.WithMessage(errors.ErrMissingConfig, "no devices configured")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i := range c.Devices {
		d := c.Devices[i]
		if strings.TrimSpace(d.Host) == "" {
			return errFactory.WithData(errors.ErrInvalidConfig, struct {
				Device int
				Reason string
			}{Device: i, Reason: "missing host"})
		}
		id := d.id()
		if seen[id] {
			return errFactory.WithData(errors.ErrInvalidConfig, struct {
				Device string
				Reason string
			}{Device: id, Reason: "duplicate device id"})
		}
		seen[id] = true

		if d.Username == "" || d.secret() == "" {
			return errFactory.WithData(errors.ErrInvalidConfig, struct {
				Device string
				Reason string
			}{Device: id, Reason: "missing credentials"})
		}
		if err := d.descriptor().Validate(); err != nil {
			return err
		}
	}

	return c.Sinks.validate()
}

func (s SinksConfig) validate() error {
	errFactory := errors.New()

	if s.JSONLines.Enabled && s.JSONLines.Path == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sinks.jsonl.path is required")
	}
	if s.CSV.Enabled && s.CSV.Path == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sinks.csv.path is required")
	}
	if s.SQLite.Enabled {
		if err := s.SQLiteConfig().Validate(); err != nil {
			return err
		}
	}
	if s.NATS.Enabled {
		if s.NATS.URL == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "sinks.nats.url is required")
		}
		if _, err := health.ParseSeverity(s.NATS.Threshold); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	return nil
}

func (s SinksConfig) SQLiteConfig() sink.SQLiteConfig {
	return sink.SQLiteConfig{
		Path:         s.SQLite.Path,
		BatchSize:    s.SQLite.BatchSize,
		BatchTimeout: s.SQLite.BatchTimeout,
		BackupDir:    s.SQLite.BackupDir,
	}
}

func (s SinksConfig) NATSConfig() sink.NATSConfig {
	cfg := sink.DefaultNATSConfig()
	cfg.URL = s.NATS.URL
	if s.NATS.SubjectPrefix != "" {
		cfg.SubjectPrefix = s.NATS.SubjectPrefix
	}
	if sev, err := health.ParseSeverity(s.NATS.Threshold); err == nil {
		cfg.Threshold = sev
	}

	return cfg
}

func (d Device) id() string {
	if d.ID != "" {
		return d.ID
	}

	return d.Host
}

func (d Device) secret() string {
	if d.Password != "" {
		return d.Password
	}
	if d.PasswordEnv != "" {
		return os.Getenv(d.PasswordEnv)
	}

	return ""
}

func (d Device) descriptor() redfish.Descriptor {
	verify := true
	if d.VerifyTLS != nil {
		verify = *d.VerifyTLS
	}

	return redfish.Descriptor{
		ID:           d.id(),
		Host:         d.Host,
		Port:         d.Port,
		Username:     d.Username,
		Secret:       d.secret(),
		VerifyTLS:    verify,
		Scheme:       d.Scheme,
		ProtocolHint: d.Protocol,
	}
}

// Descriptors returns one connection descriptor per configured device,
// with secrets resolved.
func (c *Config) Descriptors() []redfish.Descriptor {
	out := make([]redfish.Descriptor, 0, len(c.Devices))
	for _, d := range c.Devices {
		out = append(out, d.descriptor())
	}

	return out
}

func (c *Config) ClientOptions() redfish.Options {
	opts := redfish.DefaultOptions()
	opts.Timeout = c.RequestTimeout
	opts.MaxRetries = c.Retry.MaxRetries
	opts.InitialBackoff = c.Retry.InitialBackoff
	opts.MaxBackoff = c.Retry.MaxBackoff
	opts.SessionTTL = c.SessionTTL
	opts.AuthMode = redfish.AuthMode(c.AuthMode)

	return opts
}

func (c *Config) AggregatorOptions() aggregator.Options {
	return aggregator.Options{
		PoolSize:    c.PoolSize,
		PollTimeout: c.PollTimeout,
	}
}
