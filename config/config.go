// Package config loads the settings shared by quorumctl commands from flags,
// QUORUM_* environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/git-hulk/go-quorum/nextid"
	"github.com/git-hulk/go-quorum/redlock"
	"github.com/git-hulk/go-quorum/store"
)

const EnvPrefix = "QUORUM"

type Config struct {
	// Masters are redis:// urls of the independent masters.
	Masters      []string      `mapstructure:"masters" validate:"required,min=1,dive,url"`
	DialTimeout  time.Duration `mapstructure:"dial-timeout" validate:"gt=0"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write-timeout" validate:"gt=0"`
	LogLevel     string        `mapstructure:"log-level" validate:"oneof=debug info warn error"`

	Lock   LockConfig   `mapstructure:"lock"`
	NextID NextIDConfig `mapstructure:"nextid"`
}

type LockConfig struct {
	AutoReleaseTime time.Duration `mapstructure:"auto-release-time" validate:"gt=0"`
	NumExtensions   int           `mapstructure:"num-extensions" validate:"gte=0"`
	RetryDelay      time.Duration `mapstructure:"retry-delay" validate:"gt=0"`
	RaiseOnErrors   bool          `mapstructure:"raise-on-errors"`
}

type NextIDConfig struct {
	NumTries int `mapstructure:"num-tries" validate:"gt=0"`
}

func Default() Config {
	return Config{
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		LogLevel:     "info",
		Lock: LockConfig{
			AutoReleaseTime: redlock.DefaultAutoReleaseTime,
			NumExtensions:   redlock.DefaultNumExtensions,
			RetryDelay:      redlock.DefaultRetryDelay,
		},
		NextID: NextIDConfig{
			NumTries: nextid.DefaultNumTries,
		},
	}
}

// BindFlags defines the persistent flags, their defaults come from Default.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringSlice("masters", nil, "redis:// urls of the masters, comma separated")
	fs.Duration("dial-timeout", d.DialTimeout, "timeout for connecting to a master")
	fs.Duration("read-timeout", d.ReadTimeout, "socket read timeout per master")
	fs.Duration("write-timeout", d.WriteTimeout, "socket write timeout per master")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
	fs.String("config", "", "path of an optional config file")
	fs.Duration("lock.auto-release-time", d.Lock.AutoReleaseTime, "lease of an acquired lock")
	fs.Int("lock.num-extensions", d.Lock.NumExtensions, "how many times a lease may be extended")
	fs.Duration("lock.retry-delay", d.Lock.RetryDelay, "upper bound of the pause between acquire attempts")
	fs.Bool("lock.raise-on-errors", d.Lock.RaiseOnErrors, "fail instead of reporting not acquired when masters error")
	fs.Int("nextid.num-tries", d.NextID.NumTries, "read-compute-write cycles before giving up")
}

// Load reads the configuration, in order of precedence, from flags, the
// environment, the config file named by the config flag and the defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.NewWithOptions(viper.EnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_")))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	// AutomaticEnv only answers for keys viper already knows about.
	for _, key := range []string{"masters", "dial-timeout", "read-timeout", "write-timeout", "log-level",
		"lock.auto-release-time", "lock.num-extensions", "lock.retry-delay", "lock.raise-on-errors",
		"nextid.num-tries"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var merr error
	for _, fe := range verrs {
		merr = multierr.Append(merr, fmt.Errorf("invalid config %s: failed on %q", fe.Namespace(), fe.Tag()))
	}
	return merr
}

func (c *Config) Timeouts() store.Timeouts {
	return store.Timeouts{
		Dial:  c.DialTimeout,
		Read:  c.ReadTimeout,
		Write: c.WriteTimeout,
	}
}

// Dial connects to every master. On failure the masters dialed so far are closed.
func (c *Config) Dial() ([]store.Master, error) {
	masters := make([]store.Master, 0, len(c.Masters))
	for _, url := range c.Masters {
		m, err := store.Dial(url, c.Timeouts())
		if err != nil {
			return nil, multierr.Append(err, Close(masters))
		}
		masters = append(masters, m)
	}
	return masters, nil
}

func (c *Config) LockOptions() []redlock.Option {
	return []redlock.Option{
		redlock.WithAutoReleaseTime(c.Lock.AutoReleaseTime),
		redlock.WithNumExtensions(c.Lock.NumExtensions),
		redlock.WithRetryDelay(c.Lock.RetryDelay),
		redlock.WithRaiseOnErrors(c.Lock.RaiseOnErrors),
	}
}

func (c *Config) NextIDOptions() []nextid.Option {
	return []nextid.Option{nextid.WithNumTries(c.NextID.NumTries)}
}

// Close closes all masters and combines their errors.
func Close(masters []store.Master) error {
	var err error
	for _, m := range masters {
		err = multierr.Append(err, m.Close())
	}
	return err
}
