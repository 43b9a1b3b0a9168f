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

// Package executor performs single IDX protocol calls: interaction start, introspection, remediation
// submission and the interaction code exchange.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/asgardeo/idxflow/internal/idx/model"
	"github.com/asgardeo/idxflow/internal/idx/pkce"
	"github.com/asgardeo/idxflow/internal/system/constants"
	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
	syshttp "github.com/asgardeo/idxflow/internal/system/http"
	"github.com/asgardeo/idxflow/internal/system/log"
)

const loggerComponentName = "TransitionExecutor"

// Config holds the identity provider coordinates used by the executor.
type Config struct {
	// Issuer is the authorization server URL, for example https://idp.example.com/oauth2/default.
	Issuer string
	// BaseURL is the org URL hosting the IDX endpoints, for example https://idp.example.com.
	BaseURL     string
	ClientID    string
	Scopes      []string
	RedirectURI string
}

// InteractParams are the per flow values sent to the interact endpoint.
type InteractParams struct {
	State string
	PKCE  *pkce.Pair
	// Extra parameters are added to the interact form as is, for example login_hint.
	Extra map[string]string
}

// Interaction is the result of a successful interact call.
type Interaction struct {
	Handle       string
	CodeVerifier string
	State        string
}

// ExecutorInterface performs IDX protocol calls.
type ExecutorInterface interface {
	Interact(ctx context.Context, params InteractParams) (*Interaction, error)
	Introspect(ctx context.Context, interaction *Interaction) (*model.SessionState, error)
	Execute(ctx context.Context, session *model.SessionState, optionName string,
		inputs model.Inputs) (*model.SessionState, error)
}

// Executor is the transport backed ExecutorInterface implementation. It is safe for concurrent use
// when the transport is.
type Executor struct {
	cfg       Config
	transport syshttp.ExecutorInterface
	now       func() time.Time
	logger    *log.Logger
}

// New creates an executor.
func New(cfg Config, transport syshttp.ExecutorInterface) *Executor {
	return &Executor{
		cfg:       cfg,
		transport: transport,
		now:       time.Now,
		logger:    log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
}

// Interact starts an interaction and returns its handle.
func (e *Executor) Interact(ctx context.Context, params InteractParams) (*Interaction, error) {
	if params.PKCE == nil {
		pair, err := pkce.NewPair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
		}
		params.PKCE = pair
	}
	if params.State == "" {
		state, err := pkce.GenerateState()
		if err != nil {
			return nil, fmt.Errorf("failed to generate state: %w", err)
		}
		params.State = state
	}

	form := url.Values{}
	form.Set("client_id", e.cfg.ClientID)
	form.Set("scope", strings.Join(e.cfg.Scopes, " "))
	form.Set("redirect_uri", e.cfg.RedirectURI)
	form.Set("state", params.State)
	form.Set("code_challenge", params.PKCE.Challenge)
	form.Set("code_challenge_method", params.PKCE.Method)
	for k, v := range params.Extra {
		form.Set(k, v)
	}

	resp, err := e.send(ctx, http.MethodPost, strings.TrimSuffix(e.cfg.Issuer, "/")+"/v1/interact",
		constants.ContentTypeFormURLEncoded, constants.ContentTypeJSON, []byte(form.Encode()))
	if err != nil {
		return nil, err
	}
	handle, err := model.DecodeInteractionHandle(resp.Body)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Interaction started")
	return &Interaction{Handle: handle, CodeVerifier: params.PKCE.Verifier, State: params.State}, nil
}

// Introspect fetches the first session state of an interaction.
func (e *Executor) Introspect(ctx context.Context, interaction *Interaction) (*model.SessionState, error) {
	body, err := json.Marshal(map[string]string{"interactionHandle": interaction.Handle})
	if err != nil {
		return nil, fmt.Errorf("failed to encode introspect request: %w", err)
	}

	resp, err := e.send(ctx, http.MethodPost, strings.TrimSuffix(e.cfg.BaseURL, "/")+"/idp/idx/introspect",
		constants.ContentTypeIONJSON, constants.ContentTypeIONJSON, body)
	if err != nil {
		return nil, err
	}

	seed, err := model.DecodeSession(resp.Body, nil)
	if err != nil {
		return nil, err
	}
	state := seed.WithInteractionHandle(interaction.Handle).
		WithCodeVerifier(interaction.CodeVerifier).
		WithStep(model.StepIntrospect)
	return e.complete(ctx, state)
}

// Execute submits a remediation option of the session with the given inputs and returns the state the
// provider answered with. The session itself is not modified.
func (e *Executor) Execute(ctx context.Context, session *model.SessionState, optionName string,
	inputs model.Inputs) (*model.SessionState, error) {
	option, ok := session.Option(optionName)
	if !ok {
		option, ok = session.CancelOption()
		if !ok || option.Name() != optionName {
			return nil, flowerror.NewInvalidTransitionError(optionName, session.OptionNames())
		}
	}

	payload, err := option.Payload(inputs)
	if err != nil {
		return nil, err
	}
	if _, set := payload["stateHandle"]; !set {
		payload["stateHandle"] = session.StateHandle()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, flowerror.NewValidationError(flowerror.CodeInvalidFieldValue,
			fmt.Sprintf("inputs for remediation %q cannot be encoded: %v", optionName, err))
	}

	contentType := option.Accepts()
	if contentType == "" {
		contentType = constants.ContentTypeIONJSON
	}
	if e.logger.IsDebugEnabled() {
		e.logger.Debug("Submitting remediation", log.String(log.LoggerKeyStep, optionName),
			log.String("href", option.Href()))
	}
	resp, err := e.send(ctx, option.Method(), option.Href(), contentType, constants.ContentTypeIONJSON, body)
	if err != nil {
		return nil, err
	}

	next, err := model.DecodeSession(resp.Body, session)
	if err != nil {
		return nil, err
	}
	next = next.WithStep(optionName).WithContext(option.ContextValues(inputs))
	return e.complete(ctx, next)
}

// complete exchanges the interaction code when the provider issued one.
func (e *Executor) complete(ctx context.Context, state *model.SessionState) (*model.SessionState, error) {
	grant, ok := state.SuccessGrant()
	if !ok {
		return state, nil
	}
	tokens, err := e.exchange(ctx, state, grant)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Interaction code exchanged", log.String(log.LoggerKeyStep, state.Step()))
	return state.WithOutcome(model.SuccessOutcome(tokens)), nil
}

func (e *Executor) exchange(ctx context.Context, state *model.SessionState,
	grant model.RemediationOption) (*model.TokenSet, error) {
	form := url.Values{}
	for _, f := range grant.Fields() {
		if v, ok := f.Value(); ok {
			if s, isString := v.(string); isString {
				form.Set(f.Name, s)
			}
		}
	}
	if form.Get("grant_type") == "" {
		form.Set("grant_type", "interaction_code")
	}
	if form.Get("client_id") == "" {
		form.Set("client_id", e.cfg.ClientID)
	}
	if code, ok := state.InteractionCode(); ok {
		form.Set("interaction_code", code)
	}
	form.Set("code_verifier", state.CodeVerifier())

	href := grant.Href()
	if href == "" {
		href = strings.TrimSuffix(e.cfg.Issuer, "/") + "/v1/token"
	}
	resp, err := e.send(ctx, http.MethodPost, href, constants.ContentTypeFormURLEncoded,
		constants.ContentTypeJSON, []byte(form.Encode()))
	if err != nil {
		return nil, err
	}
	return model.DecodeTokenSet(resp.Body, e.now())
}

// send executes one request and maps transport failures and non-2xx responses to flow errors.
func (e *Executor) send(ctx context.Context, method, target, contentType, accept string,
	body []byte) (*syshttp.Response, error) {
	req := &syshttp.Request{
		Method: method,
		URL:    target,
		Header: http.Header{},
		Body:   body,
	}
	req.Header.Set(constants.ContentTypeHeaderName, contentType)
	req.Header.Set(constants.AcceptHeaderName, accept)

	resp, err := e.transport.ExecuteRequest(ctx, req)
	if err != nil {
		if errors.Is(err, syshttp.ErrUnsupportedMethod) {
			return nil, flowerror.NewDecodeError("identity provider advertised an unusable method for "+target, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, flowerror.NewTransportError("request to "+target+" was cancelled", ctxErr)
		}
		e.logger.Warn("Request to identity provider failed", log.String("url", target), log.Error(err))
		return nil, flowerror.NewTransportError("request to "+target+" failed", err)
	}
	if !resp.IsSuccess() {
		return nil, e.protocolError(resp)
	}
	return resp, nil
}

func (e *Executor) protocolError(resp *syshttp.Response) error {
	details := model.DecodeErrorDetails(resp.Body)
	if details.HasCode(model.SessionExpiredMessageKey) {
		expired := flowerror.NewSessionExpiredError("the identity provider reports the session as expired")
		expired.Code = flowerror.CodeProviderSessionExpiry
		expired.Status = resp.Status
		expired.Payload = append([]byte(nil), resp.Body...)
		expired.ProviderCodes = details.Codes
		return expired
	}

	protocolErr := flowerror.NewProtocolError(flowerror.CodeProviderError, resp.Status, resp.Body, details.Codes)
	if text := details.Text(); text != "" {
		protocolErr.Message = text
	}
	e.logger.Debug("Identity provider returned an error", log.Int("status", resp.Status),
		log.Any("providerCodes", details.Codes))
	return protocolErr
}
