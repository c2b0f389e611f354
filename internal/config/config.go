package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"

	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/modeclock"
	"github.com/example/court-scheduler/internal/preference"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// RunConfig is the full set of options for one run. It is not modified once the run starts.
type RunConfig struct {
	Days           []int `yaml:"days" validate:"nonzero"`
	EagerDays      []int `yaml:"eager-days"`
	ReqInterval    int   `yaml:"req-interval" validate:"min=0"`
	MaxReqInterval int   `yaml:"max-req-interval" validate:"min=0"`
	Interval       int   `yaml:"interval" validate:"min=1"`
	EagerInterval  int   `yaml:"eager-interval" validate:"min=1"`
	Concurrency    int   `yaml:"concurrency" validate:"min=1"`

	RefreshTime string        `yaml:"refresh-time" validate:"nonzero"`
	EagerLead   time.Duration `yaml:"eager-lead" validate:"min=0"`
	EagerHold   time.Duration `yaml:"eager-hold" validate:"min=0"`

	MaxRetries         int           `yaml:"max-retries" validate:"min=0"`
	RetryDelay         time.Duration `yaml:"retry-delay" validate:"min=1"`
	AttemptTimeout     time.Duration `yaml:"attempt-timeout" validate:"min=1"`
	ConsiderSoloFields bool          `yaml:"consider-solo-fields"`
	MaxAcquisitions    int           `yaml:"max-acquisitions" validate:"min=0"`
	Combine            string        `yaml:"combine"`

	Fields map[string]int `yaml:"fields" validate:"nonzero"`
	Hours  map[string]int `yaml:"hours" validate:"nonzero"`

	Token   string `yaml:"token"`
	OpenID  string `yaml:"open-id"`
	SendKey string `yaml:"send-key"`
	BaseURL string `yaml:"base-url" validate:"nonzero"`
	SportID int    `yaml:"sport-id" validate:"min=1"`
	Account string `yaml:"account"`

	DatabaseURL string `yaml:"database-url"`
	EncKey      string `yaml:"-"`

	LogLevel    string `yaml:"log-level"`
	LogFormat   string `yaml:"log-format"`
	MetricsAddr string `yaml:"metrics-addr"`
}

// Defaults returns the built-in configuration.
func Defaults() (RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("parse built-in defaults: %w", err)
	}
	return cfg, nil
}

// Load layers the built-in defaults, the optional YAML file at path and the environment
// (a .env file in the working directory is read first if present). Flags are applied by the
// caller afterwards; call Validate once they are.
func Load(path string) (RunConfig, error) {
	cfg, err := Defaults()
	if err != nil {
		return RunConfig{}, err
	}
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return RunConfig{}, err
		}
	}
	_ = godotenv.Load()
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// MergeFile decodes a YAML file on top of cfg. Keys absent from the file keep their value;
// a fields or hours table in the file replaces the whole table.
func (c *RunConfig) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &internaltypes.ConfigError{Field: "config", Err: err}
	}
	// score tables given in the file replace the built-in ones instead of merging
	var tables struct {
		Fields map[string]int `yaml:"fields"`
		Hours  map[string]int `yaml:"hours"`
	}
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return &internaltypes.ConfigError{Field: "config", Err: fmt.Errorf("%s: %w", path, err)}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &internaltypes.ConfigError{Field: "config", Err: fmt.Errorf("%s: %w", path, err)}
	}
	if tables.Fields != nil {
		c.Fields = tables.Fields
	}
	if tables.Hours != nil {
		c.Hours = tables.Hours
	}
	return nil
}

// ApplyEnv overrides credentials and a few process settings from the environment.
func (c *RunConfig) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("TOKEN", &c.Token)
	set("OPEN_ID", &c.OpenID)
	set("SEND_KEY", &c.SendKey)
	set("DATABASE_URL", &c.DatabaseURL)
	set("CRED_ENC_KEY", &c.EncKey)
	set("LOG_LEVEL", &c.LogLevel)
}

const minDuration = time.Millisecond

// Validate checks struct constraints first, then the cross-field rules. The first problem
// found is returned as a *internaltypes.ConfigError.
func (c *RunConfig) Validate() error {
	if err := validator.Validate(c); err != nil {
		return fromValidator(err)
	}
	for _, d := range c.Days {
		if d < 0 {
			return internaltypes.NewConfigError("days", "offset %d is negative", d)
		}
	}
	for _, d := range c.EagerDays {
		if d < 0 {
			return internaltypes.NewConfigError("eager-days", "offset %d is negative", d)
		}
	}
	if c.RetryDelay < minDuration {
		return internaltypes.NewConfigError("retry-delay", "%s is below %s", c.RetryDelay, minDuration)
	}
	if c.AttemptTimeout < minDuration {
		return internaltypes.NewConfigError("attempt-timeout", "%s is below %s", c.AttemptTimeout, minDuration)
	}
	if c.MaxReqInterval < c.ReqInterval {
		return internaltypes.NewConfigError("max-req-interval", "%d is below req-interval %d", c.MaxReqInterval, c.ReqInterval)
	}
	if _, err := c.Clock(); err != nil {
		return err
	}
	if _, err := c.Preferences(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return internaltypes.NewConfigError("log-format", "unknown format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// Clock builds the regime clock from refresh-time, eager-lead and eager-hold.
func (c *RunConfig) Clock() (modeclock.Clock, error) {
	return modeclock.New(c.RefreshTime, c.EagerLead, c.EagerHold)
}

// Preferences builds the ranking model from the score tables.
func (c *RunConfig) Preferences() (*preference.Model, error) {
	comb, err := preference.CombinerByName(strings.ToLower(c.Combine))
	if err != nil {
		return nil, err
	}
	return preference.New(c.Fields, c.Hours,
		preference.WithCombiner(comb),
		preference.WithSolo(c.ConsiderSoloFields))
}

// EagerOffsets is the day list polled in the eager regime.
func (c *RunConfig) EagerOffsets() []int {
	if len(c.EagerDays) == 0 {
		return c.Days
	}
	return c.EagerDays
}

// Seconds converts an integer-seconds option to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func fromValidator(err error) error {
	var em validator.ErrorMap
	if !errors.As(err, &em) {
		return &internaltypes.ConfigError{Err: err}
	}
	names := make([]string, 0, len(em))
	for name := range em {
		names = append(names, name)
	}
	sort.Strings(names)
	return &internaltypes.ConfigError{Field: yamlName(names[0]), Err: em[names[0]]}
}

// yamlName maps a Go field name to its option name for error messages.
func yamlName(goName string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range goName {
		upper := r >= 'A' && r <= 'Z'
		if upper && prevLower {
			b.WriteByte('-')
		}
		prevLower = !upper
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
