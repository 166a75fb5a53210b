// Package config provides the configuration model for gridfeed.
//
// A RunConfig describes one invocation: how to log, where stored credentials
// live, which sink receives events, optional metrics and tracing, and the set
// of configured inputs keyed by their full name (kind://name).
//
// The configuration is organized into logical sections:
//   - Logging: level, encoding and output paths
//   - Credentials: secure store backend, DSN and encryption key
//   - Sink: destination type and its options
//   - Metrics: optional Pushgateway target
//   - Tracing: optional span export
//   - Inputs: one InputConfig per configured Grid Manager input
//
// Example usage:
//
//	var cfg config.RunConfig
//	if err := config.Load("gridfeed.yaml", &cfg); err != nil {
//	    log.Fatal(err)
//	}
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/gridfeed/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIVersion is the WAPI version used when an input sets none
	DefaultAPIVersion = "2.5"
	// DefaultPageLimit is the page size used when an input sets none
	DefaultPageLimit = 1000
	// DefaultSinkType is the sink used when none is configured
	DefaultSinkType = "xmlstream"
	// DefaultCredentialsDSN is the SQLite database used by the default store
	DefaultCredentialsDSN = "gridfeed.db"
)

// RunConfig is the root configuration document
type RunConfig struct {
	Logging     logger.Config          `yaml:"logging" json:"logging"`
	Credentials CredentialsConfig      `yaml:"credentials" json:"credentials"`
	Sink        SinkConfig             `yaml:"sink" json:"sink"`
	Metrics     MetricsConfig          `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig          `yaml:"tracing" json:"tracing"`
	Interval    time.Duration          `yaml:"interval" json:"interval" validate:"gte=0"`
	Inputs      map[string]InputConfig `yaml:"inputs" json:"inputs" validate:"required,min=1,dive"`
}

// CredentialsConfig selects and configures the secure credential store
type CredentialsConfig struct {
	// Backend is one of memory, sqlite or postgres
	Backend string `yaml:"backend" json:"backend" validate:"oneof=memory sqlite postgres"`
	// DSN is the SQLite path or the PostgreSQL connection string
	DSN string `yaml:"dsn" json:"dsn" validate:"required_unless=Backend memory"`
	// Key is the master key material stored secrets are encrypted with
	Key string `yaml:"key" json:"-" validate:"required_unless=Backend memory"`
	// KeyID labels ciphertexts so a rotated key is detected
	KeyID string `yaml:"key_id" json:"key_id"`
}

// SinkConfig selects the event destination
type SinkConfig struct {
	Type        string            `yaml:"type" json:"type" validate:"required"`
	Options     map[string]string `yaml:"options" json:"options"`
	BufferSize  int               `yaml:"buffer_size" json:"buffer_size" validate:"gte=0"`
	Compression string            `yaml:"compression" json:"compression" validate:"omitempty,oneof=none gzip zstd s2 snappy lz4"`
}

// Option returns a sink option or def when unset
func (s SinkConfig) Option(key, def string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// MetricsConfig configures metric export
type MetricsConfig struct {
	PushGateway string `yaml:"push_gateway" json:"push_gateway" validate:"omitempty,url"`
	Job         string `yaml:"job" json:"job"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Output       string  `yaml:"output" json:"output"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate" validate:"gte=0,lte=1"`
}

// InputConfig is the per-input configuration surface of a Grid Manager input.
// Password holds either a literal secret or the mask sentinel.
type InputConfig struct {
	Username  string `yaml:"username" json:"username" validate:"required"`
	Password  string `yaml:"password" json:"-" validate:"required"`
	Domain    string `yaml:"domain" json:"domain" validate:"required,excludesall=/"`
	UseSSL    Flag   `yaml:"usessl" json:"usessl"`
	VerifySSL Flag   `yaml:"verifyssl" json:"verifyssl"`
	Version   string `yaml:"version" json:"version" validate:"omitempty,excludesall=/"`
	Limit     Limit  `yaml:"limit" json:"limit" validate:"gte=0"`
	Fields    string `yaml:"fields" json:"fields"`
	// RateLimit caps WAPI requests per second; zero means unlimited
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty" validate:"gte=0"`
}

// Args returns the input as scheme arguments
func (in InputConfig) Args() map[string]string {
	args := map[string]string{
		"username":  in.Username,
		"password":  in.Password,
		"domain":    in.Domain,
		"usessl":    strconv.FormatBool(bool(in.UseSSL)),
		"verifyssl": strconv.FormatBool(bool(in.VerifySSL)),
		"version":   in.Version,
		"fields":    in.Fields,
	}
	if in.Limit > 0 {
		args["limit"] = strconv.Itoa(int(in.Limit))
	}
	return args
}

// WithDefaults returns a copy with unset optional fields defaulted
func (in InputConfig) WithDefaults() InputConfig {
	if in.Version == "" {
		in.Version = DefaultAPIVersion
	}
	if in.Limit == 0 {
		in.Limit = DefaultPageLimit
	}
	return in
}

// ApplyDefaults fills unset sections with their defaults
func (c *RunConfig) ApplyDefaults() {
	if c.Sink.Type == "" {
		c.Sink.Type = DefaultSinkType
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = "sqlite"
	}
	if c.Credentials.Backend == "sqlite" && c.Credentials.DSN == "" {
		c.Credentials.DSN = DefaultCredentialsDSN
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "gridfeed"
	}
	for name, in := range c.Inputs {
		c.Inputs[name] = in.WithDefaults()
	}
}

// InputNames returns the configured input names in sorted order
func (c *RunConfig) InputNames() []string {
	names := make([]string, 0, len(c.Inputs))
	for name := range c.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseInputName splits a full input name of the form kind://name
func ParseInputName(full string) (kind, name string, err error) {
	parts := strings.Split(full, "://")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid input name %q: expected kind://name", full)
	}
	return parts[0], parts[1], nil
}

// Flag is a boolean that accepts the spellings hosts commonly write:
// 1/0, true/false, yes/no, on/off, y/n and t/f, in any case.
type Flag bool

// ParseFlag parses s using Flag spellings
func ParseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "t", "true", "on", "1":
		return true, nil
	case "n", "no", "f", "false", "off", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid truth value %q", s)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (f *Flag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a boolean scalar", value.Line)
	}
	b, err := ParseFlag(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*f = Flag(b)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (f Flag) MarshalYAML() (interface{}, error) {
	return bool(f), nil
}

// Limit is a page size that may be written as an integer or a numeric string
type Limit int

// UnmarshalYAML implements yaml.Unmarshaler
func (l *Limit) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an integer scalar", value.Line)
	}
	s := strings.TrimSpace(value.Value)
	if s == "" {
		*l = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid limit %q", value.Line, value.Value)
	}
	*l = Limit(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (l Limit) MarshalYAML() (interface{}, error) {
	return int(l), nil
}
