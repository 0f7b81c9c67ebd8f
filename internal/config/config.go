// Package config loads gateway settings from defaults, an optional YAML file
// and PCG_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stoik/persuasion-gateway/internal/adapters/smtpd"
	"github.com/stoik/persuasion-gateway/internal/application"
	"github.com/stoik/persuasion-gateway/internal/domain"
	"github.com/stoik/persuasion-gateway/internal/observability"
)

// EnvPrefix prefixes every environment override: smtp.listen_addr is read
// from PCG_SMTP_LISTEN_ADDR
const EnvPrefix = "PCG"

// ErrInvalidConfig wraps every validation failure outside the threshold table
var ErrInvalidConfig = errors.New("invalid configuration")

// Evidence drivers
const (
	EvidenceNone     = "none"
	EvidenceFile     = "file"
	EvidencePostgres = "postgres"
)

// Config is the full gateway configuration
type Config struct {
	SMTP       SMTPConfig        `mapstructure:"smtp"`
	Relay      RelayConfig       `mapstructure:"relay"`
	Catalogue  CatalogueConfig   `mapstructure:"catalogue"`
	Thresholds domain.Thresholds `mapstructure:"thresholds"`
	Annotation AnnotationConfig  `mapstructure:"annotation"`
	Evidence   EvidenceConfig    `mapstructure:"evidence"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Telemetry  TelemetryConfig   `mapstructure:"telemetry"`

	// file the settings were read from, empty when none was found
	source string
}

type SMTPConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	Domain          string        `mapstructure:"domain"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	MaxRecipients   int           `mapstructure:"max_recipients"`
	MaxConnections  int           `mapstructure:"max_connections"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	HandleTimeout   time.Duration `mapstructure:"handle_timeout"`
	AllowedDomains  []string      `mapstructure:"allowed_domains"`
}

type RelayConfig struct {
	Addr    string        `mapstructure:"addr"`
	Helo    string        `mapstructure:"helo"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CatalogueConfig struct {
	// Path to a YAML rule catalogue; empty uses the built-in one
	Path string `mapstructure:"path"`
}

type AnnotationConfig struct {
	GatewayName        string `mapstructure:"gateway_name"`
	TagSubject         bool   `mapstructure:"tag_subject"`
	SubjectPrefixLevel string `mapstructure:"subject_prefix_level"`
	BannerMinLevel     string `mapstructure:"banner_min_level"`
}

type EvidenceConfig struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
	DSN    string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	Insecure       bool          `mapstructure:"insecure"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// Load reads the configuration. With an empty path the file
// persuasion-gateway.yaml is looked up in /etc/persuasion-gateway and the
// working directory, and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("persuasion-gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/persuasion-gateway/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("smtp.listen_addr", ":2525")
	v.SetDefault("smtp.domain", "localhost")
	v.SetDefault("smtp.max_message_bytes", 25<<20)
	v.SetDefault("smtp.max_recipients", 100)
	v.SetDefault("smtp.max_connections", 200)
	v.SetDefault("smtp.rate_limit", 50.0)
	v.SetDefault("smtp.rate_burst", 100)
	v.SetDefault("smtp.read_timeout", "60s")
	v.SetDefault("smtp.write_timeout", "60s")
	v.SetDefault("smtp.handle_timeout", "2m")
	v.SetDefault("smtp.allowed_domains", []string{})

	v.SetDefault("relay.addr", "")
	v.SetDefault("relay.helo", "persuasion-gateway")
	v.SetDefault("relay.timeout", "30s")

	v.SetDefault("catalogue.path", "")

	th := domain.DefaultThresholds()
	v.SetDefault("thresholds.low", th.Low)
	v.SetDefault("thresholds.medium", th.Medium)
	v.SetDefault("thresholds.high", th.High)
	v.SetDefault("thresholds.critical", th.Critical)

	policy := application.DefaultPolicy()
	v.SetDefault("annotation.gateway_name", policy.GatewayName)
	v.SetDefault("annotation.tag_subject", policy.TagSubject)
	v.SetDefault("annotation.subject_prefix_level", policy.SubjectPrefixLevel.String())
	v.SetDefault("annotation.banner_min_level", policy.BannerMinLevel.String())

	v.SetDefault("evidence.driver", EvidenceNone)
	v.SetDefault("evidence.dir", "/var/lib/persuasion-gateway/evidence")
	v.SetDefault("evidence.dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	tel := observability.DefaultConfig()
	v.SetDefault("telemetry.enabled", tel.Enabled)
	v.SetDefault("telemetry.otlp_endpoint", tel.OTLPEndpoint)
	v.SetDefault("telemetry.insecure", tel.Insecure)
	v.SetDefault("telemetry.export_interval", tel.ExportInterval.String())
}

// Validate checks values that cannot be expressed by types alone
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}

	switch c.Evidence.Driver {
	case EvidenceNone:
	case EvidenceFile:
		if c.Evidence.Dir == "" {
			return configErr("evidence.dir", "required when evidence.driver is file")
		}
	case EvidencePostgres:
		if c.Evidence.DSN == "" {
			return configErr("evidence.dsn", "required when evidence.driver is postgres")
		}
	default:
		return configErr("evidence.driver", fmt.Sprintf("unknown driver %q: want none, file or postgres", c.Evidence.Driver))
	}

	if c.SMTP.MaxMessageBytes <= 0 {
		return configErr("smtp.max_message_bytes", "must be positive")
	}
	if c.SMTP.RateLimit < 0 {
		return configErr("smtp.rate_limit", "must not be negative")
	}
	return nil
}

// Policy converts the annotation settings into the gateway policy
func (c *Config) Policy() (application.Policy, error) {
	prefix, err := domain.ParseRiskLevel(c.Annotation.SubjectPrefixLevel)
	if err != nil {
		return application.Policy{}, configErr("annotation.subject_prefix_level", err.Error())
	}
	minLevel, err := domain.ParseRiskLevel(c.Annotation.BannerMinLevel)
	if err != nil {
		return application.Policy{}, configErr("annotation.banner_min_level", err.Error())
	}
	return application.Policy{
		GatewayName:        c.Annotation.GatewayName,
		TagSubject:         c.Annotation.TagSubject,
		SubjectPrefixLevel: prefix,
		BannerMinLevel:     minLevel,
	}, nil
}

// Listener returns the inbound SMTP settings
func (c *Config) Listener() smtpd.Config {
	return smtpd.Config{
		ListenAddr:      c.SMTP.ListenAddr,
		Domain:          c.SMTP.Domain,
		MaxMessageBytes: c.SMTP.MaxMessageBytes,
		MaxRecipients:   c.SMTP.MaxRecipients,
		MaxConnections:  c.SMTP.MaxConnections,
		ReadTimeout:     c.SMTP.ReadTimeout,
		WriteTimeout:    c.SMTP.WriteTimeout,
		RateLimit:       c.SMTP.RateLimit,
		RateBurst:       c.SMTP.RateBurst,
		AllowedDomains:  c.SMTP.AllowedDomains,
		HandleTimeout:   c.SMTP.HandleTimeout,
	}
}

// Observability returns the metric exporter settings
func (c *Config) Observability(version string) observability.Config {
	return observability.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    c.Annotation.GatewayName,
		ServiceVersion: version,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		Insecure:       c.Telemetry.Insecure,
		ExportInterval: c.Telemetry.ExportInterval,
	}
}

// Source is the config file in use, or "" when running on defaults
func (c *Config) Source() string {
	return c.source
}

func configErr(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, reason)
}
