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

// Package http provides the request executor abstraction used for all outbound calls, together with
// a registry of named executor implementations.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnsupportedMethod is returned for request methods other than GET, POST and DELETE.
var ErrUnsupportedMethod = errors.New("unsupported HTTP method")

// DefaultTimeout is the request timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// maxResponseBodySize bounds the number of bytes read from a response body.
const maxResponseBodySize = 10 << 20

// Request is a transport independent outbound request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsSuccess reports whether the response carries a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// ExecutorInterface executes requests. Implementations must be safe for concurrent use.
type ExecutorInterface interface {
	// ExecuteRequest sends the request and returns the response. A non-2xx status is not an error.
	ExecuteRequest(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorConfig holds the settings used by executor factories.
type ExecutorConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	// TLSConfig, when set, is cloned into the client transport.
	TLSConfig *tls.Config
}

// HTTPExecutor implements ExecutorInterface on top of net/http.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates a new HTTPExecutor with the given configuration.
func NewHTTPExecutor(cfg ExecutorConfig) ExecutorInterface {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	if cfg.TLSConfig != nil || cfg.InsecureSkipVerify {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLSConfig != nil {
			tlsConfig = cfg.TLSConfig.Clone()
		}
		if cfg.InsecureSkipVerify {
			// #nosec G402 -- opt-in for local identity providers with self-signed certificates.
			tlsConfig.InsecureSkipVerify = true
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		client.Transport = transport
	}
	return &HTTPExecutor{client: client}
}

// NewHTTPExecutorWithClient creates a new HTTPExecutor around an existing client.
func NewHTTPExecutorWithClient(client *http.Client) ExecutorInterface {
	return &HTTPExecutor{client: client}
}

// ExecuteRequest executes the request and reads the full response body.
func (e *HTTPExecutor) ExecuteRequest(ctx context.Context, req *Request) (*Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   respBody,
	}, nil
}
