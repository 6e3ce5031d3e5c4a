// Copyright 2024-2026 Aiku AI

// Package config loads the relay configuration from YAML and the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/affiliate-relay/pkg/rewrite"
)

//go:embed example-config.yaml
var ExampleConfig string

const (
	TransportMattermost = "mattermost"
	TransportMatrix     = "matrix"
)

// Config is the full relay configuration.
type Config struct {
	Transport TransportConfig   `yaml:"transport"`
	Relay     RelayConfig       `yaml:"relay"`
	Affiliate AffiliateConfig   `yaml:"affiliate"`
	Admin     AdminConfig       `yaml:"admin"`
	Logging   zeroconfig.Config `yaml:"logging"`
}

type TransportConfig struct {
	Type       string           `yaml:"type"`
	Mattermost MattermostConfig `yaml:"mattermost"`
	Matrix     MatrixConfig     `yaml:"matrix"`
}

type MattermostConfig struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	// BotPrefix is a username prefix for echo prevention. Posts from
	// usernames starting with it are never relayed.
	BotPrefix string `yaml:"bot_prefix"`
}

type MatrixConfig struct {
	HomeserverURL string `yaml:"homeserver_url"`
	UserID        string `yaml:"user_id"`
	AccessToken   string `yaml:"access_token"`
}

type RelayConfig struct {
	SourceChannels     []string `yaml:"source_channels"`
	DestinationChannel string   `yaml:"destination_channel"`
	AllowKeywords      []string `yaml:"allow_keywords"`
	BlockKeywords      []string `yaml:"block_keywords"`
	// RawSubstitutions holds the "original:replacement" pairs as written.
	RawSubstitutions []string `yaml:"substitutions"`

	// Substitutions is the parsed form of RawSubstitutions, set by PostProcess.
	Substitutions []rewrite.Substitution `yaml:"-"`
}

type AffiliateConfig struct {
	AppID         string        `yaml:"app_id"`
	Secret        string        `yaml:"secret"`
	Endpoint      string        `yaml:"endpoint"`
	SubIDs        []string      `yaml:"sub_ids"`
	Timeout       time.Duration `yaml:"timeout"`
	ExpandTimeout time.Duration `yaml:"expand_timeout"`
}

type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// Error lists every missing or invalid setting found during validation.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, "; "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

func (e *Error) missing(key string) {
	e.Missing = append(e.Missing, key)
}

func (e *Error) invalid(format string, args ...any) {
	e.Invalid = append(e.Invalid, fmt.Sprintf(format, args...))
}

func (e *Error) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// Load reads the config file at path, fills in defaults from the example
// config, applies environment overrides and validates the result.
// An empty path loads only the defaults and the environment.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Parse(data, os.LookupEnv)
}

// Parse is Load without file access. lookupEnv is typically os.LookupEnv.
func Parse(data []byte, lookupEnv func(string) (string, bool)) (*Config, error) {
	var base yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &base); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if len(data) > 0 {
		var user yaml.Node
		if err := yaml.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if len(user.Content) > 0 {
			upgradeConfig(up.NewHelper(&base, &user))
		}
	}

	var cfg Config
	if err := base.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyEnv(lookupEnv)
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// upgradeConfig copies the user's values onto the example config, so keys
// missing from an older config file get their default.
func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "transport", "type")
	helper.Copy(up.Str, "transport", "mattermost", "server_url")
	helper.Copy(up.Str, "transport", "mattermost", "token")
	helper.Copy(up.Str, "transport", "mattermost", "bot_prefix")
	helper.Copy(up.Str, "transport", "matrix", "homeserver_url")
	helper.Copy(up.Str, "transport", "matrix", "user_id")
	helper.Copy(up.Str, "transport", "matrix", "access_token")

	helper.Copy(up.List, "relay", "source_channels")
	helper.Copy(up.Str, "relay", "destination_channel")
	helper.Copy(up.List, "relay", "allow_keywords")
	helper.Copy(up.List, "relay", "block_keywords")
	helper.Copy(up.List, "relay", "substitutions")

	helper.Copy(up.Str|up.Int, "affiliate", "app_id")
	helper.Copy(up.Str, "affiliate", "secret")
	helper.Copy(up.Str, "affiliate", "endpoint")
	helper.Copy(up.List, "affiliate", "sub_ids")
	helper.Copy(up.Str, "affiliate", "timeout")
	helper.Copy(up.Str, "affiliate", "expand_timeout")

	helper.Copy(up.Str, "admin", "listen_addr")

	helper.Copy(up.Map, "logging")
}

// ApplyEnv overrides settings from environment variables. Lists are
// comma-separated; substitutions are "original:replacement" items.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	list("RELAY_SOURCE_CHANNELS", &c.Relay.SourceChannels)
	str("RELAY_DESTINATION_CHANNEL", &c.Relay.DestinationChannel)
	list("RELAY_ALLOW_KEYWORDS", &c.Relay.AllowKeywords)
	list("RELAY_BLOCK_KEYWORDS", &c.Relay.BlockKeywords)
	list("RELAY_SUBSTITUTIONS", &c.Relay.RawSubstitutions)
	str("SHOPEE_APP_ID", &c.Affiliate.AppID)
	str("SHOPEE_SECRET", &c.Affiliate.Secret)
	str("MATTERMOST_SERVER_URL", &c.Transport.Mattermost.ServerURL)
	str("MATTERMOST_TOKEN", &c.Transport.Mattermost.Token)
	str("MATRIX_HOMESERVER_URL", &c.Transport.Matrix.HomeserverURL)
	str("MATRIX_USER_ID", &c.Transport.Matrix.UserID)
	str("MATRIX_ACCESS_TOKEN", &c.Transport.Matrix.AccessToken)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// PostProcess normalizes the config and validates it. It returns an *Error
// listing every problem found.
func (c *Config) PostProcess() error {
	cerr := &Error{}

	c.Relay.SourceChannels = trimAll(c.Relay.SourceChannels)
	c.Relay.AllowKeywords = lowerAll(c.Relay.AllowKeywords)
	c.Relay.BlockKeywords = lowerAll(c.Relay.BlockKeywords)

	c.Relay.Substitutions = c.Relay.Substitutions[:0]
	for _, raw := range c.Relay.RawSubstitutions {
		sub, err := rewrite.ParseSubstitution(raw)
		if err != nil {
			cerr.invalid("relay.substitutions: %v", err)
			continue
		}
		c.Relay.Substitutions = append(c.Relay.Substitutions, sub)
	}

	if len(c.Relay.SourceChannels) == 0 {
		cerr.missing("relay.source_channels")
	}
	if c.Relay.DestinationChannel == "" {
		cerr.missing("relay.destination_channel")
	}
	for _, src := range c.Relay.SourceChannels {
		if src == c.Relay.DestinationChannel {
			cerr.invalid("relay.source_channels: %q is also the destination", src)
		}
	}

	if c.Affiliate.AppID == "" {
		cerr.missing("affiliate.app_id")
	}
	if c.Affiliate.Secret == "" {
		cerr.missing("affiliate.secret")
	}
	if c.Affiliate.Timeout <= 0 {
		cerr.invalid("affiliate.timeout: must be positive")
	}
	if c.Affiliate.ExpandTimeout <= 0 {
		cerr.invalid("affiliate.expand_timeout: must be positive")
	}

	switch c.Transport.Type {
	case TransportMattermost:
		if c.Transport.Mattermost.ServerURL == "" {
			cerr.missing("transport.mattermost.server_url")
		}
		if c.Transport.Mattermost.Token == "" {
			cerr.missing("transport.mattermost.token")
		}
	case TransportMatrix:
		if c.Transport.Matrix.HomeserverURL == "" {
			cerr.missing("transport.matrix.homeserver_url")
		}
		if c.Transport.Matrix.UserID == "" {
			cerr.missing("transport.matrix.user_id")
		}
		if c.Transport.Matrix.AccessToken == "" {
			cerr.missing("transport.matrix.access_token")
		}
	default:
		cerr.invalid("transport.type: %q is not %q or %q", c.Transport.Type, TransportMattermost, TransportMatrix)
	}

	if cerr.empty() {
		return nil
	}
	return cerr
}

// IsConfigError reports whether err is a validation error.
func IsConfigError(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr)
}

func trimAll(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func lowerAll(items []string) []string {
	out := trimAll(items)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}
