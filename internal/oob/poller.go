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
	"time"

	"github.com/asgardeo/idxflow/internal/system/config"
	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
	"github.com/asgardeo/idxflow/internal/system/log"
)

const pollerLoggerComponentName = "OOBPoller"

// AttemptResult is the outcome of one fetch attempt.
type AttemptResult int

const (
	// AttemptEmpty means nothing was delivered yet.
	AttemptEmpty AttemptResult = iota
	// AttemptContent means content was returned.
	AttemptContent
	// AttemptError means the fetch failed.
	AttemptError
)

// Attempt records one fetch of the side channel.
type Attempt struct {
	Start   time.Time
	Elapsed time.Duration
	Result  AttemptResult
	Err     error
}

// Result is the outcome of a successful wait for content.
type Result struct {
	Content  string
	Attempts []Attempt
}

// PollerConfig holds the polling intervals.
type PollerConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AttemptTimeout bounds a single fetch. It is further bounded by the time left before the deadline.
	AttemptTimeout time.Duration
}

// PollerConfigFrom converts the file configuration.
func PollerConfigFrom(cfg config.PollerConfig) PollerConfig {
	return PollerConfig{
		InitialInterval: cfg.InitialInterval.Std(),
		MaxInterval:     cfg.MaxInterval.Std(),
		AttemptTimeout:  cfg.AttemptTimeout.Std(),
	}
}

// Poller waits for out-of-band content on a side-channel profile.
type Poller struct {
	client  ClientInterface
	clock   Clock
	backoff Backoff
	cfg     PollerConfig
	logger  *log.Logger
}

// NewPoller creates a poller. A nil clock means the wall clock.
func NewPoller(client ClientInterface, cfg PollerConfig, clock Clock) *Poller {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return &Poller{
		client:  client,
		clock:   clock,
		backoff: Backoff{Initial: cfg.InitialInterval, Max: cfg.MaxInterval},
		cfg:     cfg,
		logger:  log.GetLogger().With(log.String(log.LoggerKeyComponentName, pollerLoggerComponentName)),
	}
}

// AwaitContent polls the channel of the profile until content arrives or the timeout elapses. See Await.
func (p *Poller) AwaitContent(ctx context.Context, profile *Profile, channel Channel,
	timeout time.Duration) (string, error) {
	result, err := p.Await(ctx, profile, channel, timeout)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// Await polls the channel of the profile until content arrives or the timeout elapses.
//
// Empty fetches are retried with capped exponential backoff, each wait bounded by the time left.
// Transient failures are retried as well, unless the deadline passed during the failing fetch, in which
// case that failure is returned. Other failures are returned at once. Without content by the deadline
// the error is a timeout carrying the attempt count. Cancelling ctx interrupts waits and fetches.
func (p *Poller) Await(ctx context.Context, profile *Profile, channel Channel,
	timeout time.Duration) (*Result, error) {
	logger := p.logger.With(log.String(log.LoggerKeyProfileID, profile.ID), log.String("channel", string(channel)))
	deadline := p.clock.Now().Add(timeout)
	attempts := make([]Attempt, 0)
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			break
		}

		attempt, content, err := p.fetch(ctx, profile, channel, remaining)
		attempts = append(attempts, attempt)
		if logger.IsDebugEnabled() {
			logger.Debug("Polled side channel", log.Int("attempt", len(attempts)),
				log.Duration("elapsed", attempt.Elapsed), log.Bool("delivered", content != ""))
		}

		switch {
		case err == nil && content != "":
			return &Result{Content: content, Attempts: attempts}, nil
		case err == nil:
			lastErr = nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case !IsTransient(err):
			logger.Warn("Side channel rejected the request", log.Error(err))
			return nil, err
		case !p.clock.Now().Before(deadline):
			return nil, err
		default:
			lastErr = err
			logger.Debug("Transient side-channel failure, retrying", log.Error(err))
		}

		remaining = deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := min(p.backoff.Interval(len(attempts)), remaining)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(wait):
		}
	}

	logger.Info("No out-of-band content before the deadline", log.Int("attempts", len(attempts)))
	return nil, flowerror.NewTimeoutError(len(attempts), lastErr)
}

func (p *Poller) fetch(ctx context.Context, profile *Profile, channel Channel,
	remaining time.Duration) (Attempt, string, error) {
	attemptTimeout := remaining
	if p.cfg.AttemptTimeout > 0 {
		attemptTimeout = min(p.cfg.AttemptTimeout, remaining)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	attempt := Attempt{Start: p.clock.Now()}
	content, err := p.client.LatestContent(attemptCtx, profile, channel)
	attempt.Elapsed = p.clock.Now().Sub(attempt.Start)
	switch {
	case err != nil:
		attempt.Result, attempt.Err = AttemptError, err
	case content != "":
		attempt.Result = AttemptContent
	default:
		attempt.Result = AttemptEmpty
	}
	return attempt, content, err
}
