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

// Package idx assembles IDX flow engines from code or from configuration.
package idx

import (
	"context"
	"crypto/tls"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/asgardeo/idxflow/internal/cert"
	"github.com/asgardeo/idxflow/internal/idx/engine"
	"github.com/asgardeo/idxflow/internal/idx/executor"
	"github.com/asgardeo/idxflow/internal/idx/journal"
	"github.com/asgardeo/idxflow/internal/system/config"
	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
	syshttp "github.com/asgardeo/idxflow/internal/system/http"
)

const defaultRequestTimeout = 30 * time.Second

// Builder collects the settings of an engine. A builder can be built once.
type Builder struct {
	issuer             string
	baseURL            string
	clientID           string
	scopes             []string
	redirectURI        string
	transport          syshttp.ExecutorInterface
	transportName      string
	requestTimeout     time.Duration
	insecureSkipVerify bool
	tlsConfig          *tls.Config
	maxSessionAge      time.Duration
	journal            journal.Sink
	now                func() time.Time

	built bool
}

// NewBuilder returns a builder with the default scopes and transport.
func NewBuilder() *Builder {
	return &Builder{
		scopes:         []string{"openid", "profile"},
		transportName:  syshttp.DefaultExecutorName,
		requestTimeout: defaultRequestTimeout,
	}
}

// WithIssuer sets the authorization server URL, for example https://idp.example.com/oauth2/default.
func (b *Builder) WithIssuer(issuer string) *Builder {
	b.issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	return b
}

// WithBaseURL sets the org URL hosting the IDX endpoints. Derived from the issuer when not set.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return b
}

func (b *Builder) WithClientID(clientID string) *Builder {
	b.clientID = strings.TrimSpace(clientID)
	return b
}

func (b *Builder) WithScopes(scopes ...string) *Builder {
	b.scopes = append([]string(nil), scopes...)
	return b
}

func (b *Builder) WithRedirectURI(redirectURI string) *Builder {
	b.redirectURI = redirectURI
	return b
}

// WithTransport sets the request executor. It takes precedence over WithTransportName.
func (b *Builder) WithTransport(transport syshttp.ExecutorInterface) *Builder {
	b.transport = transport
	return b
}

// WithTransportName selects a transport registered through http.RegisterExecutorFactory.
func (b *Builder) WithTransportName(name string) *Builder {
	b.transportName = name
	return b
}

// WithRequestTimeout sets the timeout of the registry built transport.
func (b *Builder) WithRequestTimeout(timeout time.Duration) *Builder {
	b.requestTimeout = timeout
	return b
}

// WithInsecureSkipVerify disables TLS verification of the registry built transport. Test use only.
func (b *Builder) WithInsecureSkipVerify(skip bool) *Builder {
	b.insecureSkipVerify = skip
	return b
}

// WithTLSConfig sets the client TLS configuration of the registry built transport.
func (b *Builder) WithTLSConfig(tlsConfig *tls.Config) *Builder {
	b.tlsConfig = tlsConfig
	return b
}

// WithMaxSessionAge bounds the lifetime of every flow, on top of the provider declared expiry.
func (b *Builder) WithMaxSessionAge(maxAge time.Duration) *Builder {
	b.maxSessionAge = maxAge
	return b
}

// WithJournal sets the sink receiving flow events.
func (b *Builder) WithJournal(sink journal.Sink) *Builder {
	b.journal = sink
	return b
}

// WithClock overrides the time source of the engine.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the settings and creates the engine.
func (b *Builder) Build() (*engine.Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	transport := b.transport
	if transport == nil {
		var err error
		transport, err = syshttp.NewExecutor(b.transportName, syshttp.ExecutorConfig{
			Timeout:            b.requestTimeout,
			InsecureSkipVerify: b.insecureSkipVerify,
			TLSConfig:          b.tlsConfig,
		})
		if err != nil {
			return nil, flowerror.NewValidationError(flowerror.CodeInvalidConfiguration, err.Error(), "transport")
		}
	}

	baseURL := b.baseURL
	if baseURL == "" {
		baseURL = config.BaseURLFromIssuer(b.issuer)
	}

	b.built = true
	exec := executor.New(executor.Config{
		Issuer:      b.issuer,
		BaseURL:     baseURL,
		ClientID:    b.clientID,
		Scopes:      append([]string(nil), b.scopes...),
		RedirectURI: b.redirectURI,
	}, transport)
	return engine.New(exec, engine.Config{
		MaxSessionAge: b.maxSessionAge,
		Journal:       b.journal,
		Now:           b.now,
	}), nil
}

func (b *Builder) validate() error {
	invalid := make([]string, 0)
	if !isAbsoluteURL(b.issuer) {
		invalid = append(invalid, "issuer")
	}
	if b.baseURL != "" && !isAbsoluteURL(b.baseURL) {
		invalid = append(invalid, "base_url")
	}
	if b.clientID == "" {
		invalid = append(invalid, "client_id")
	}
	if len(b.scopes) == 0 {
		invalid = append(invalid, "scopes")
	}
	if b.redirectURI != "" && !isAbsoluteURL(b.redirectURI) {
		invalid = append(invalid, "redirect_uri")
	}
	if b.maxSessionAge < 0 {
		invalid = append(invalid, "max_session_age")
	}
	if len(invalid) > 0 {
		return flowerror.NewConfigurationError(invalid...)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Client is an engine built from configuration together with the resources it owns.
type Client struct {
	*engine.Engine
	release func()
}

// NewFromConfig builds an engine from the file configuration, opening the journal when enabled.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	idp := cfg.IdentityProvider
	tlsConfig, err := cert.GetTLSConfig(idp.TLS, cfg.HomeDir)
	if err != nil {
		return nil, flowerror.NewValidationError(flowerror.CodeInvalidConfiguration, err.Error(), "tls")
	}
	dispatcher, release, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		return nil, err
	}

	builder := NewBuilder().
		WithIssuer(idp.Issuer).
		WithBaseURL(idp.BaseURL).
		WithClientID(idp.ClientID).
		WithRedirectURI(idp.RedirectURI).
		WithTransportName(idp.Transport).
		WithRequestTimeout(idp.RequestTimeout.Std()).
		WithInsecureSkipVerify(idp.InsecureSkipVerify).
		WithTLSConfig(tlsConfig).
		WithMaxSessionAge(idp.MaxSessionAge.Std())
	if len(idp.Scopes) > 0 {
		builder.WithScopes(idp.Scopes...)
	}
	if dispatcher != nil {
		builder.WithJournal(dispatcher)
	}

	eng, err := builder.Build()
	if err != nil {
		release()
		return nil, err
	}
	return &Client{Engine: eng, release: release}, nil
}

// Close flushes the journal and releases its resources.
func (c *Client) Close() {
	c.release()
}
