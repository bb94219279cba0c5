// Package config loads the intake service configuration from defaults, an
// optional YAML file and environment variables, in increasing precedence.
//
// Every key can be overridden from the environment by upper-casing it and
// replacing dots with underscores, e.g. TIMING_FETCH_TIMEOUT. The provider
// credentials and endpoints also accept their conventional names such as
// TELNYX_API_KEY and REDIS_URL.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	intake "github.com/agentplexus/omnivoice-intake"
)

// ErrInvalid is wrapped by Validate errors.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Mode       string `yaml:"mode"`

	Telephony     Telephony     `yaml:"telephony"`
	Transcription Transcription `yaml:"transcription"`
	Speech        Speech        `yaml:"speech"`
	Dashboard     Endpoint      `yaml:"dashboard"`
	Tickets       Endpoint      `yaml:"tickets"`
	Redis         Redis         `yaml:"redis"`
	Timing        Timing        `yaml:"timing"`
	Logging       Logging       `yaml:"logging"`

	// ScriptPath optionally replaces the embedded intake questionnaire.
	ScriptPath string `yaml:"script_path"`
}

// Telephony configures call control.
type Telephony struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// PublicStreamURL is the wss:// URL the provider connects media to.
	PublicStreamURL string  `yaml:"public_stream_url"`
	RateLimit       float64 `yaml:"rate_limit"`
}

// Transcription configures the live transcription engine.
type Transcription struct {
	APIKey   string `yaml:"api_key"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// Speech configures speak actions.
type Speech struct {
	Voice    string `yaml:"voice"`
	Language string `yaml:"language"`
}

// Endpoint is an authenticated HTTP collaborator.
type Endpoint struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Redis configures the optional shared context cache.
type Redis struct {
	URL    string        `yaml:"url"`
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
}

// Timing holds the call timers.
type Timing struct {
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`
	FinalizeSilence time.Duration `yaml:"finalize_silence"`
	MaxListen       time.Duration `yaml:"max_listen"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	AnchorMaxListen bool          `yaml:"anchor_max_listen"`
	ActionTimeout   time.Duration `yaml:"action_timeout"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	TicketTimeout   time.Duration `yaml:"ticket_timeout"`
	EndedRetention  time.Duration `yaml:"ended_retention"`
}

// Logging configures the default logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Mode:       intake.ModeIntake,
		Telephony: Telephony{
			BaseURL: intake.DefaultAPIBaseURL,
		},
		Transcription: Transcription{
			URL:      intake.DefaultTranscriptionURL,
			Model:    "nova-2-phonecall",
			Language: "en-US",
		},
		Speech: Speech{
			Voice:    "female",
			Language: "en-US",
		},
		Redis: Redis{
			TTL:    2 * time.Hour,
			Prefix: "intake",
		},
		Timing: Timing{
			ReplyTimeout:    9000 * time.Millisecond,
			FinalizeSilence: 2000 * time.Millisecond,
			MaxListen:       20000 * time.Millisecond,
			DuplicateWindow: 800 * time.Millisecond,
			ActionTimeout:   10 * time.Second,
			FetchTimeout:    5 * time.Second,
			TicketTimeout:   15 * time.Second,
			EndedRetention:  10 * time.Minute,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// envAliases binds keys to their conventional environment names. The
// derived name (e.g. TELEPHONY_API_KEY) is not consulted for these keys.
var envAliases = map[string]string{
	"listen_addr":                 "LISTEN_ADDR",
	"mode":                        "INTAKE_MODE",
	"telephony.api_key":           "TELNYX_API_KEY",
	"telephony.public_stream_url": "PUBLIC_STREAM_URL",
	"transcription.api_key":       "DEEPGRAM_API_KEY",
	"dashboard.url":               "DASHBOARD_URL",
	"dashboard.token":             "DASHBOARD_TOKEN",
	"tickets.url":                 "TICKET_URL",
	"tickets.token":               "TICKET_TOKEN",
	"redis.url":                   "REDIS_URL",
	"logging.level":               "LOG_LEVEL",
	"logging.format":              "LOG_FORMAT",
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.trim()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance seeded with Default so that every key is
// known to the environment lookup.
func newViper() (*viper.Viper, error) {
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (c *Config) trim() {
	for _, f := range []*string{
		&c.ListenAddr, &c.Mode,
		&c.Telephony.APIKey, &c.Telephony.PublicStreamURL,
		&c.Transcription.APIKey,
		&c.Dashboard.URL, &c.Dashboard.Token,
		&c.Tickets.URL, &c.Tickets.Token,
		&c.Redis.URL,
	} {
		*f = strings.TrimSpace(*f)
	}
}

// Validate checks the configuration for values the service cannot run with.
// Missing credentials are not errors: the affected features are skipped.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case intake.ModeIntake, intake.ModeFAQ:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", intake.ModeIntake, intake.ModeFAQ, c.Mode))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"timing.reply_timeout", c.Timing.ReplyTimeout},
		{"timing.finalize_silence", c.Timing.FinalizeSilence},
		{"timing.max_listen", c.Timing.MaxListen},
		{"timing.duplicate_window", c.Timing.DuplicateWindow},
		{"timing.action_timeout", c.Timing.ActionTimeout},
		{"timing.fetch_timeout", c.Timing.FetchTimeout},
		{"timing.ticket_timeout", c.Timing.TicketTimeout},
		{"timing.ended_retention", c.Timing.EndedRetention},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}
	if c.Timing.FinalizeSilence > 0 && c.Timing.MaxListen > 0 && c.Timing.MaxListen < c.Timing.FinalizeSilence {
		errs = append(errs, errors.New("timing.max_listen must not be shorter than timing.finalize_silence"))
	}
	if u := c.Telephony.PublicStreamURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		errs = append(errs, fmt.Errorf("telephony.public_stream_url must be a ws:// or wss:// URL, got %q", u))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
