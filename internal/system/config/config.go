/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package config provides structures and functions for loading the client configurations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/asgardeo/idxflow/internal/system/constants"
	"github.com/asgardeo/idxflow/internal/system/log"
)

// Duration is a time.Duration that decodes from strings such as "250ms" or "2m".
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// IdentityProviderConfig holds the identity provider connection details.
type IdentityProviderConfig struct {
	Issuer             string    `yaml:"issuer" toml:"issuer"`
	BaseURL            string    `yaml:"base_url" toml:"base_url"`
	ClientID           string    `yaml:"client_id" toml:"client_id"`
	Scopes             []string  `yaml:"scopes" toml:"scopes"`
	RedirectURI        string    `yaml:"redirect_uri" toml:"redirect_uri"`
	RequestTimeout     Duration  `yaml:"request_timeout" toml:"request_timeout"`
	MaxSessionAge      Duration  `yaml:"max_session_age" toml:"max_session_age"`
	Transport          string    `yaml:"transport" toml:"transport"`
	InsecureSkipVerify bool      `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
	TLS                TLSConfig `yaml:"tls" toml:"tls"`
}

// TLSConfig holds the client TLS material used towards the identity provider. Relative paths are
// resolved against the directory of the configuration file.
type TLSConfig struct {
	CACertFile string `yaml:"ca_cert_file" toml:"ca_cert_file"`
	CertFile   string `yaml:"cert_file" toml:"cert_file"`
	KeyFile    string `yaml:"key_file" toml:"key_file"`
}

// SideChannelConfig holds the out-of-band inbox service details.
type SideChannelConfig struct {
	BaseURL           string   `yaml:"base_url" toml:"base_url"`
	APIKey            string   `yaml:"api_key" toml:"api_key"`
	DisplayName       string   `yaml:"display_name" toml:"display_name"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int      `yaml:"burst" toml:"burst"`
	RequestTimeout    Duration `yaml:"request_timeout" toml:"request_timeout"`
}

// PollerConfig holds the out-of-band polling settings.
type PollerConfig struct {
	InitialInterval Duration `yaml:"initial_interval" toml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval" toml:"max_interval"`
	AttemptTimeout  Duration `yaml:"attempt_timeout" toml:"attempt_timeout"`
	Timeout         Duration `yaml:"timeout" toml:"timeout"`
}

// JournalConfig holds the flow journal settings.
type JournalConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Driver     string `yaml:"driver" toml:"driver"`
	DSN        string `yaml:"dsn" toml:"dsn"`
	BufferSize int    `yaml:"buffer_size" toml:"buffer_size"`
	DropIfFull bool   `yaml:"drop_if_full" toml:"drop_if_full"`
}

// Config holds the complete configuration of the client.
type Config struct {
	IdentityProvider IdentityProviderConfig `yaml:"identity_provider" toml:"identity_provider"`
	SideChannel      SideChannelConfig      `yaml:"side_channel" toml:"side_channel"`
	Poller           PollerConfig           `yaml:"poller" toml:"poller"`
	Journal          JournalConfig          `yaml:"journal" toml:"journal"`

	// HomeDir is the directory of the loaded configuration file.
	HomeDir string `yaml:"-" toml:"-"`
}

// Default returns a configuration populated with default values.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads the configurations from the specified YAML or TOML file. The format is chosen by
// the file extension, YAML being the default.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	path = filepath.Clean(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() {
			if ferr := file.Close(); ferr != nil {
				log.GetLogger().Error("Failed to close config file", log.Error(ferr))
			}
		}()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, err
		}
	}

	cfg.HomeDir = filepath.Dir(path)
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills unset values and applies environment overrides.
func (c *Config) applyDefaults() {
	idp := &c.IdentityProvider
	if len(idp.Scopes) == 0 {
		idp.Scopes = []string{"openid", "profile", "email"}
	}
	if idp.RequestTimeout <= 0 {
		idp.RequestTimeout = Duration(30 * time.Second)
	}
	if idp.MaxSessionAge <= 0 {
		idp.MaxSessionAge = Duration(10 * time.Minute)
	}
	if idp.BaseURL == "" && idp.Issuer != "" {
		idp.BaseURL = BaseURLFromIssuer(idp.Issuer)
	}

	sc := &c.SideChannel
	if sc.BaseURL == "" {
		sc.BaseURL = "https://api.a18n.help"
	}
	if sc.DisplayName == "" {
		sc.DisplayName = "idxflow"
	}
	if sc.RequestsPerSecond <= 0 {
		sc.RequestsPerSecond = 5
	}
	if sc.Burst <= 0 {
		sc.Burst = 1
	}
	if sc.RequestTimeout <= 0 {
		sc.RequestTimeout = Duration(10 * time.Second)
	}
	if apiKey := os.Getenv(constants.SideChannelAPIKeyEnvironmentVariable); apiKey != "" {
		sc.APIKey = apiKey
	}

	p := &c.Poller
	if p.InitialInterval <= 0 {
		p.InitialInterval = Duration(500 * time.Millisecond)
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = Duration(5 * time.Second)
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = Duration(5 * time.Second)
	}
	if p.Timeout <= 0 {
		p.Timeout = Duration(2 * time.Minute)
	}

	if c.Journal.BufferSize <= 0 {
		c.Journal.BufferSize = 64
	}
}

// BaseURLFromIssuer derives the identity provider origin from an authorization server issuer such as
// https://example.okta.com/oauth2/default.
func BaseURLFromIssuer(issuer string) string {
	issuer = strings.TrimRight(issuer, "/")
	if idx := strings.Index(issuer, "/oauth2"); idx > 0 {
		return issuer[:idx]
	}
	return issuer
}
