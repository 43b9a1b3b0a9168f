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

package oob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/asgardeo/idxflow/internal/system/config"
	"github.com/asgardeo/idxflow/internal/system/constants"
	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
	syshttp "github.com/asgardeo/idxflow/internal/system/http"
	"github.com/asgardeo/idxflow/internal/system/log"
)

const clientLoggerComponentName = "A18NClient"

// ClientInterface is a side-channel inbox service.
type ClientInterface interface {
	CreateProfile(ctx context.Context, displayName string) (*Profile, error)
	DeleteProfile(ctx context.Context, profile *Profile) error
	// LatestContent returns the latest message of the channel, or an empty string when nothing was
	// delivered yet.
	LatestContent(ctx context.Context, profile *Profile, channel Channel) (string, error)
}

// A18NClient talks to an A18N style inbox proxy.
type A18NClient struct {
	baseURL        string
	apiKey         string
	requestTimeout time.Duration
	transport      syshttp.ExecutorInterface
	limiter        *rate.Limiter
	logger         *log.Logger
}

// NewA18NClient creates a side-channel client. Requests are throttled to the configured rate.
func NewA18NClient(cfg config.SideChannelConfig, transport syshttp.ExecutorInterface) (*A18NClient, error) {
	if cfg.APIKey == "" {
		return nil, flowerror.NewConfigurationError("side_channel.api_key")
	}
	if cfg.BaseURL == "" {
		return nil, flowerror.NewConfigurationError("side_channel.base_url")
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &A18NClient{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		requestTimeout: cfg.RequestTimeout.Std(),
		transport:      transport,
		limiter:        rate.NewLimiter(limit, burst),
		logger:         log.GetLogger().With(log.String(log.LoggerKeyComponentName, clientLoggerComponentName)),
	}, nil
}

// CreateProfile creates a new profile.
func (c *A18NClient) CreateProfile(ctx context.Context, displayName string) (*Profile, error) {
	body, err := json.Marshal(map[string]string{"displayName": displayName})
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile request: %w", err)
	}
	resp, err := c.send(ctx, http.MethodPost, c.baseURL+"/v1/profile", body)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		return nil, sideChannelError(resp)
	}

	var profile Profile
	if err := json.Unmarshal(resp.Body, &profile); err != nil {
		return nil, flowerror.NewDecodeError("malformed side-channel profile", err)
	}
	if profile.ID == "" || profile.URL == "" {
		return nil, flowerror.NewDecodeError("side-channel profile is missing profileId or url", nil)
	}
	c.logger.Debug("Created side-channel profile", log.String(log.LoggerKeyProfileID, profile.ID),
		log.String("email", log.MaskString(profile.EmailAddress)))
	return &profile, nil
}

// DeleteProfile deletes a profile. The service answers 204 on success.
func (c *A18NClient) DeleteProfile(ctx context.Context, profile *Profile) error {
	resp, err := c.send(ctx, http.MethodDelete, profile.URL, nil)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusNoContent {
		return sideChannelError(resp)
	}
	c.logger.Debug("Deleted side-channel profile", log.String(log.LoggerKeyProfileID, profile.ID))
	return nil
}

// LatestContent fetches the latest message of a channel, unmodified. 404, 204 and a blank 200 mean that
// nothing was delivered yet.
func (c *A18NClient) LatestContent(ctx context.Context, profile *Profile, channel Channel) (string, error) {
	target := strings.TrimSuffix(profile.URL, "/") + "/" + string(channel) + "/latest/content"
	resp, err := c.send(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	switch {
	case resp.Status == http.StatusNotFound, resp.Status == http.StatusNoContent:
		return "", nil
	case resp.Status == http.StatusOK:
		if strings.TrimSpace(string(resp.Body)) == "" {
			return "", nil
		}
		return string(resp.Body), nil
	default:
		return "", sideChannelError(resp)
	}
}

func (c *A18NClient) send(ctx context.Context, method, target string, body []byte) (*syshttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, flowerror.NewTransportError("side-channel request throttled", err)
	}
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	req := &syshttp.Request{Method: method, URL: target, Header: http.Header{}, Body: body}
	req.Header.Set(constants.APIKeyHeaderName, c.apiKey)
	req.Header.Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	resp, err := c.transport.ExecuteRequest(ctx, req)
	if err != nil {
		return nil, flowerror.NewTransportError("side-channel request to "+target+" failed", err)
	}
	return resp, nil
}

func sideChannelError(resp *syshttp.Response) error {
	return flowerror.NewProtocolError(flowerror.CodeSideChannelError, resp.Status, resp.Body, nil)
}

// IsTransient reports whether a side-channel failure may succeed when retried: network failures,
// server errors and throttling.
func IsTransient(err error) bool {
	if flowerror.IsRetryable(err) {
		return true
	}
	if flowerror.KindOf(err) != flowerror.KindProtocol {
		return false
	}
	var flowErr *flowerror.Error
	if !errors.As(err, &flowErr) {
		return false
	}
	return flowErr.Status >= http.StatusInternalServerError || flowErr.Status == http.StatusTooManyRequests
}
