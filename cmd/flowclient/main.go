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

// Command flowclient signs a user in through the IDX protocol, confirming the email or SMS challenge
// with a code read from a throwaway A18N inbox.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/asgardeo/idxflow/internal/idx"
	"github.com/asgardeo/idxflow/internal/idx/engine"
	"github.com/asgardeo/idxflow/internal/idx/executor"
	"github.com/asgardeo/idxflow/internal/idx/model"
	"github.com/asgardeo/idxflow/internal/oob"
	"github.com/asgardeo/idxflow/internal/system/config"
	syshttp "github.com/asgardeo/idxflow/internal/system/http"
	"github.com/asgardeo/idxflow/internal/system/log"
)

// maxSteps bounds the number of remediations submitted by one sign-in.
const maxSteps = 10

func main() {
	configPath := flag.String("config", "repository/conf/flowclient.yaml", "Path to the YAML or TOML configuration")
	channelName := flag.String("channel", "email", "Out-of-band channel used for the challenge: email or sms")
	username := flag.String("username", "", "Username to sign in with. Defaults to the inbox email address")
	flag.Parse()

	defer log.Sync()
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "FlowClient"))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configurations", log.String("path", *configPath), log.Error(err))
	}
	channel, err := oob.ParseChannel(*channelName)
	if err != nil {
		logger.Fatal("Invalid channel", log.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := signIn(ctx, cfg, channel, *username, logger); err != nil {
		logger.Error("Sign-in failed", log.Error(err))
		stop()
		log.Sync()
		os.Exit(1)
	}
}

// signIn runs one sign-in with a throwaway inbox profile. The journal is flushed before it returns.
func signIn(ctx context.Context, cfg *config.Config, channel oob.Channel, username string,
	logger *log.Logger) error {
	client, err := idx.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build the IDX client: %w", err)
	}
	defer client.Close()

	inbox, err := newInboxClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to build the side-channel client: %w", err)
	}

	runner := &signInRunner{
		client:   client,
		poller:   oob.NewPoller(inbox, oob.PollerConfigFrom(cfg.Poller), nil),
		cfg:      cfg,
		channel:  channel,
		username: username,
		logger:   logger,
	}
	displayName := cfg.SideChannel.DisplayName + "-" + uuid.NewString()[:8]
	return oob.WithProfile(ctx, inbox, displayName, runner.run)
}

func newInboxClient(cfg *config.Config) (*oob.A18NClient, error) {
	transport, err := syshttp.NewExecutor(cfg.IdentityProvider.Transport, syshttp.ExecutorConfig{
		Timeout: cfg.SideChannel.RequestTimeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	return oob.NewA18NClient(cfg.SideChannel, transport)
}

type signInRunner struct {
	client   *idx.Client
	poller   *oob.Poller
	cfg      *config.Config
	channel  oob.Channel
	username string
	logger   *log.Logger
}

// run drives one flow to a terminal state, answering identify, authenticator selection and challenge
// remediations.
func (r *signInRunner) run(ctx context.Context, profile *oob.Profile) error {
	username := r.username
	if username == "" {
		username = profile.EmailAddress
	}
	r.logger.Info("Starting sign-in", log.String("username", log.MaskString(username)),
		log.String(log.LoggerKeyProfileID, profile.ID))

	flow, err := r.client.Start(ctx, executor.InteractParams{})
	if err != nil {
		return err
	}
	logger := r.logger.With(log.String(log.LoggerKeyFlowID, flow.ID()))

	state := flow.State()
	for step := 0; !state.IsTerminal(); step++ {
		if step == maxSteps {
			return fmt.Errorf("flow did not complete after %d remediations", maxSteps)
		}

		option, inputs, err := r.nextRemediation(ctx, state, profile, username)
		if err != nil {
			if _, cancelErr := flow.Cancel(ctx); cancelErr != nil {
				logger.Warn("Failed to cancel flow", log.Error(cancelErr))
			}
			return err
		}
		logger.Debug("Submitting remediation", log.String(log.LoggerKeyStep, option))
		if state, err = flow.Submit(ctx, option, inputs); err != nil {
			return err
		}
	}

	return r.report(flow)
}

func (r *signInRunner) nextRemediation(ctx context.Context, state *model.SessionState, profile *oob.Profile,
	username string) (string, model.Inputs, error) {
	if option, ok := findOption(state, "identify"); ok {
		return option.Name(), model.Inputs{"identifier": username}, nil
	}
	if option, ok := findOption(state, "select-authenticator"); ok {
		return option.Name(), model.Inputs{"authenticator": string(r.channel)}, nil
	}
	if option, ok := findOption(state, "challenge-"); ok {
		code, err := r.awaitCode(ctx, profile)
		if err != nil {
			return "", nil, err
		}
		return option.Name(), challengeInputs(option, code), nil
	}
	return "", nil, fmt.Errorf("no automated answer for remediations [%s]", strings.Join(state.OptionNames(), ", "))
}

func (r *signInRunner) awaitCode(ctx context.Context, profile *oob.Profile) (string, error) {
	content, err := r.poller.AwaitContent(ctx, profile, r.channel, r.cfg.Poller.Timeout.Std())
	if err != nil {
		return "", err
	}
	code, ok := oob.ExtractCode(content)
	if !ok {
		return "", errors.New("the received message does not contain a code")
	}
	return code, nil
}

// challengeInputs places the code in the field the option asks for: "passcode" nested under
// "credentials", or the first required field.
func challengeInputs(option model.RemediationOption, code string) model.Inputs {
	if _, ok := option.Field("credentials"); ok {
		return model.Inputs{"passcode": code}
	}
	if required := option.RequiredFields(); len(required) > 0 {
		return model.Inputs{required[0]: code}
	}
	return model.Inputs{"code": code}
}

func findOption(state *model.SessionState, prefix string) (model.RemediationOption, bool) {
	for _, option := range state.AvailableOptions() {
		if strings.HasPrefix(option.Name(), prefix) {
			return option, true
		}
	}
	return model.RemediationOption{}, false
}

func (r *signInRunner) report(flow *engine.Flow) error {
	outcome := flow.State().Outcome()
	if outcome.Kind != model.OutcomeSuccess {
		return fmt.Errorf("flow ended with %s: %s", outcome.Kind, outcome.Reason)
	}

	fmt.Printf("Signed in (flow %s)\n", flow.ID())
	if outcome.Tokens == nil {
		fmt.Printf("Redirect: %s\n", outcome.RedirectURL)
		return nil
	}
	fmt.Printf("Token type: %s, scope: %s, expires at: %s\n", outcome.Tokens.TokenType, outcome.Tokens.Scope,
		outcome.Tokens.ExpiresAt().Format(time.RFC3339))
	if claims, err := outcome.Tokens.IDTokenClaims(); err == nil {
		fmt.Printf("Subject: %s, email: %s\n", claims.Subject, claims.Email)
	}
	return nil
}
