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

// Package flowauthn runs complete sign-in flows against in-process identity provider and inbox servers.
package flowauthn

import (
	"context"
	"fmt"
	"time"

	"github.com/asgardeo/idxflow/internal/idx"
	"github.com/asgardeo/idxflow/internal/idx/engine"
	"github.com/asgardeo/idxflow/internal/idx/executor"
	"github.com/asgardeo/idxflow/internal/idx/journal"
	"github.com/asgardeo/idxflow/internal/idx/model"
	"github.com/asgardeo/idxflow/internal/oob"
	"github.com/asgardeo/idxflow/internal/system/config"
	syshttp "github.com/asgardeo/idxflow/internal/system/http"
	"github.com/asgardeo/idxflow/tests/integration/testutils"
)

const (
	testClientID    = "flowauthn_test_client"
	testInboxAPIKey = "flowauthn_test_api_key"
	testAwaitLimit  = 5 * time.Second
)

// TestEnvironment wires an engine and an inbox client to the mock servers of one test.
type TestEnvironment struct {
	IDP     *testutils.MockIDXServer
	Inbox   *testutils.MockA18NServer
	Engine  *engine.Engine
	Client  *oob.A18NClient
	Poller  *oob.Poller
	Journal *journal.ChannelSink
}

// newTestEnvironment starts the inbox server. The identity provider is started by startIDP once the
// username, an inbox address, is known.
func newTestEnvironment() (*TestEnvironment, error) {
	inbox := testutils.NewMockA18NServer(testInboxAPIKey)
	transport := syshttp.NewHTTPExecutor(syshttp.ExecutorConfig{Timeout: 5 * time.Second})

	client, err := oob.NewA18NClient(config.SideChannelConfig{
		BaseURL:           inbox.URL(),
		APIKey:            testInboxAPIKey,
		RequestsPerSecond: 50,
		Burst:             5,
	}, transport)
	if err != nil {
		inbox.Close()
		return nil, fmt.Errorf("failed to create inbox client: %w", err)
	}

	return &TestEnvironment{
		Inbox:   inbox,
		Client:  client,
		Journal: journal.NewChannelSink(64),
		Poller: oob.NewPoller(client, oob.PollerConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     40 * time.Millisecond,
			AttemptTimeout:  time.Second,
		}, nil),
	}, nil
}

// startIDP starts the identity provider for username and forwards every issued code to the inbox
// profile.
func (env *TestEnvironment) startIDP(username string, profile *oob.Profile) error {
	env.IDP = testutils.NewMockIDXServer(testClientID, username)
	env.IDP.OnCodeIssued(func(channel, code string) {
		env.Inbox.Deliver(profile.ID, channel, fmt.Sprintf("Your one-time code is %s. It expires in 5 minutes.", code))
	})

	eng, err := idx.NewBuilder().
		WithIssuer(env.IDP.Issuer()).
		WithClientID(testClientID).
		WithScopes("openid", "email").
		WithMaxSessionAge(time.Minute).
		WithJournal(env.Journal).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	env.Engine = eng
	return nil
}

// Close stops the mock servers.
func (env *TestEnvironment) Close() {
	if env.IDP != nil {
		env.IDP.Close()
	}
	env.Inbox.Close()
}

// startAtChallenge starts a flow and walks it to the challenge of the given channel.
func (env *TestEnvironment) startAtChallenge(ctx context.Context, username string,
	channel oob.Channel) (*engine.Flow, error) {
	flow, err := env.Engine.Start(ctx, executor.InteractParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to start flow: %w", err)
	}
	if _, err := flow.Submit(ctx, testutils.RemediationIdentify, model.Inputs{"identifier": username}); err != nil {
		return nil, fmt.Errorf("failed to identify: %w", err)
	}
	if _, err := flow.Submit(ctx, testutils.RemediationSelectAuthenticator,
		model.Inputs{"authenticator": string(channel)}); err != nil {
		return nil, fmt.Errorf("failed to select authenticator: %w", err)
	}
	return flow, nil
}

// awaitCode polls the profile channel and extracts the code of the latest message.
func (env *TestEnvironment) awaitCode(ctx context.Context, profile *oob.Profile, channel oob.Channel) (string, error) {
	content, err := env.Poller.AwaitContent(ctx, profile, channel, testAwaitLimit)
	if err != nil {
		return "", err
	}
	code, ok := oob.ExtractCode(content)
	if !ok {
		return "", fmt.Errorf("no code in message %q", content)
	}
	return code, nil
}

// journalTypes drains the journal and returns the recorded event types.
func (env *TestEnvironment) journalTypes() []journal.EventType {
	types := make([]journal.EventType, 0)
	for {
		select {
		case event := <-env.Journal.Events():
			types = append(types, event.Type)
		default:
			return types
		}
	}
}
