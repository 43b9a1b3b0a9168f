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

package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/idxflow/internal/idx/model"
	"github.com/asgardeo/idxflow/internal/idx/pkce"
	"github.com/asgardeo/idxflow/internal/system/constants"
	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
	syshttp "github.com/asgardeo/idxflow/internal/system/http"
	"github.com/asgardeo/idxflow/tests/integration/testutils"
	"github.com/asgardeo/idxflow/tests/mocks/httpmock"
)

const selectState = `{
  "stateHandle": "sh-1",
  "remediation": {"type": "array", "value": [{
    "name": "select-authenticator",
    "href": "https://idp.example.com/idp/idx/challenge",
    "method": "POST",
    "accepts": "application/json; okta-version=1.0.0",
    "value": [
      {"name": "authenticator", "type": "object", "required": true, "options": [
        {"label": "Email", "value": {"form": {"value": [
          {"name": "id", "required": true, "value": "aut-email", "mutable": false},
          {"name": "methodType", "value": "email"}
        ]}}}
      ]},
      {"name": "stateHandle", "required": true, "value": "sh-1", "visible": false, "mutable": false}
    ]
  }]},
  "cancel": {"name": "cancel", "href": "https://idp.example.com/idp/idx/cancel", "method": "POST",
    "value": [{"name": "stateHandle", "required": true, "value": "sh-1", "mutable": false}]}
}`

const challengeState = `{
  "stateHandle": "sh-1",
  "remediation": {"type": "array", "value": [{
    "name": "challenge-email",
    "href": "https://idp.example.com/idp/idx/challenge/answer",
    "value": [{"name": "code", "required": true}]
  }]}
}`

const successState = `{
  "stateHandle": "sh-1",
  "successWithInteractionCode": {
    "name": "issue",
    "href": "https://idp.example.com/oauth2/default/v1/token",
    "method": "POST",
    "value": [
      {"name": "grant_type", "required": true, "value": "interaction_code"},
      {"name": "interaction_code", "required": true, "value": "ic-1"},
      {"name": "client_id", "required": true, "value": "client-1"},
      {"name": "code_verifier", "required": true}
    ]
  }
}`

type ExecutorTestSuite struct {
	suite.Suite
	transport *httpmock.MockExecutor
	executor  *Executor
	session   *model.SessionState
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}

func (suite *ExecutorTestSuite) SetupTest() {
	suite.transport = &httpmock.MockExecutor{}
	suite.executor = New(Config{
		Issuer:      "https://idp.example.com/oauth2/default",
		BaseURL:     "https://idp.example.com",
		ClientID:    "client-1",
		Scopes:      []string{"openid", "email"},
		RedirectURI: "https://app.example.com/callback",
	}, suite.transport)

	session, err := model.DecodeSession([]byte(selectState), nil)
	suite.Require().NoError(err)
	suite.session = session.WithInteractionHandle("ih-1").WithCodeVerifier("verifier").
		WithStep(model.StepIntrospect)
}

func (suite *ExecutorTestSuite) TestInteractSendsPKCEForm() {
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusOK, `{"interaction_handle":"ih-1"}`)
	pair, err := pkce.NewPair()
	suite.Require().NoError(err)

	interaction, err := suite.executor.Interact(context.Background(), InteractParams{
		State: "state-1",
		PKCE:  pair,
		Extra: map[string]string{"login_hint": "jane"},
	})
	suite.Require().NoError(err)
	suite.Equal("ih-1", interaction.Handle)
	suite.Equal(pair.Verifier, interaction.CodeVerifier)

	req := suite.transport.LastRequest()
	suite.Equal(http.MethodPost, req.Method)
	suite.Equal("https://idp.example.com/oauth2/default/v1/interact", req.URL)
	suite.Equal(constants.ContentTypeFormURLEncoded, req.Header.Get(constants.ContentTypeHeaderName))
	suite.Equal("client-1", testutils.FormValue(req.Body, "client_id"))
	suite.Equal("openid email", testutils.FormValue(req.Body, "scope"))
	suite.Equal("state-1", testutils.FormValue(req.Body, "state"))
	suite.Equal(pair.Challenge, testutils.FormValue(req.Body, "code_challenge"))
	suite.Equal("S256", testutils.FormValue(req.Body, "code_challenge_method"))
	suite.Equal("jane", testutils.FormValue(req.Body, "login_hint"))
}

func (suite *ExecutorTestSuite) TestInteractRejected() {
	payload := `{"error":"invalid_client","error_description":"Invalid value for 'client_id' parameter."}`
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusUnauthorized, payload)

	_, err := suite.executor.Interact(context.Background(), InteractParams{})

	var flowErr *flowerror.Error
	suite.Require().True(errors.As(err, &flowErr))
	suite.Equal(flowerror.KindProtocol, flowErr.Kind)
	suite.Equal(http.StatusUnauthorized, flowErr.Status)
	suite.Equal([]byte(payload), flowErr.Payload)
	suite.Equal([]string{"invalid_client"}, flowErr.ProviderCodes)
	suite.Equal("Invalid value for 'client_id' parameter.", flowErr.Message)
}

func (suite *ExecutorTestSuite) TestIntrospect() {
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusOK, selectState)

	state, err := suite.executor.Introspect(context.Background(),
		&Interaction{Handle: "ih-9", CodeVerifier: "v-9"})
	suite.Require().NoError(err)

	suite.Equal("ih-9", state.InteractionHandle())
	suite.Equal("v-9", state.CodeVerifier())
	suite.Equal(model.StepIntrospect, state.Step())
	suite.Equal([]string{"select-authenticator"}, state.OptionNames())

	req := suite.transport.LastRequest()
	suite.Equal("https://idp.example.com/idp/idx/introspect", req.URL)
	suite.JSONEq(`{"interactionHandle":"ih-9"}`, string(req.Body))
	suite.Equal(constants.ContentTypeIONJSON, req.Header.Get(constants.AcceptHeaderName))
}

func (suite *ExecutorTestSuite) TestExecuteResolvesOptionAndCarriesState() {
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusOK, challengeState)

	next, err := suite.executor.Execute(context.Background(), suite.session, "select-authenticator",
		model.Inputs{"authenticator": "email"})
	suite.Require().NoError(err)

	suite.Equal("select-authenticator", next.Step())
	suite.Equal("ih-1", next.InteractionHandle())
	suite.Equal("verifier", next.CodeVerifier())
	suite.Equal("email", next.Context()["authenticator"])
	suite.Equal([]string{"challenge-email"}, next.OptionNames())
	suite.Equal(model.StepIntrospect, suite.session.Step())

	req := suite.transport.LastRequest()
	suite.Equal("https://idp.example.com/idp/idx/challenge", req.URL)
	suite.Equal("application/json; okta-version=1.0.0", req.Header.Get(constants.ContentTypeHeaderName))
	var body map[string]interface{}
	suite.Require().NoError(json.Unmarshal(req.Body, &body))
	suite.Equal("sh-1", body["stateHandle"])
	suite.Equal(map[string]interface{}{"id": "aut-email", "methodType": "email"}, body["authenticator"])
}

func (suite *ExecutorTestSuite) TestExecuteExchangesInteractionCode() {
	var calls []*syshttp.Request
	suite.transport.MockExecuteRequest = func(_ context.Context, req *syshttp.Request) (*syshttp.Response, error) {
		calls = append(calls, req)
		if len(calls) == 1 {
			return &syshttp.Response{Status: http.StatusOK, Body: []byte(successState)}, nil
		}
		return &syshttp.Response{Status: http.StatusOK, Body: []byte(
			`{"access_token":"at-1","token_type":"Bearer","expires_in":3600,"scope":"openid"}`)}, nil
	}

	next, err := suite.executor.Execute(context.Background(), suite.session, "select-authenticator",
		model.Inputs{"authenticator": "email"})
	suite.Require().NoError(err)

	suite.True(next.IsTerminal())
	suite.Equal(model.OutcomeSuccess, next.Outcome().Kind)
	suite.Equal("at-1", next.Outcome().Tokens.AccessToken)
	suite.Empty(next.AvailableOptions())

	suite.Require().Len(calls, 2)
	token := calls[1]
	suite.Equal("https://idp.example.com/oauth2/default/v1/token", token.URL)
	suite.Equal("interaction_code", testutils.FormValue(token.Body, "grant_type"))
	suite.Equal("ic-1", testutils.FormValue(token.Body, "interaction_code"))
	suite.Equal("verifier", testutils.FormValue(token.Body, "code_verifier"))
	suite.Equal("client-1", testutils.FormValue(token.Body, "client_id"))
}

func (suite *ExecutorTestSuite) TestExecuteProtocolError() {
	payload := `{"version":"1.0.0","messages":{"type":"array","value":[
		{"message":"Invalid code. Try again.","i18n":{"key":"api.authn.error.PASSCODE_INVALID"},"class":"ERROR"}]}}`
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusBadRequest, payload)

	_, err := suite.executor.Execute(context.Background(), suite.session, "select-authenticator",
		model.Inputs{"authenticator": "email"})

	suite.True(errors.Is(err, flowerror.ErrProtocol))
	var flowErr *flowerror.Error
	suite.Require().True(errors.As(err, &flowErr))
	suite.Equal(http.StatusBadRequest, flowErr.Status)
	suite.Equal(payload, string(flowErr.Payload))
	suite.Equal([]string{"api.authn.error.PASSCODE_INVALID"}, flowErr.ProviderCodes)
	suite.Equal("Invalid code. Try again.", flowErr.Message)
	suite.False(flowErr.Retryable())
}

func (suite *ExecutorTestSuite) TestExecuteSessionExpiredFromProvider() {
	payload := `{"messages":{"value":[{"message":"The session has expired.","i18n":{"key":"idx.session.expired"}}]}}`
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusUnauthorized, payload)

	_, err := suite.executor.Execute(context.Background(), suite.session, "select-authenticator",
		model.Inputs{"authenticator": "email"})

	suite.True(errors.Is(err, flowerror.ErrSessionExpired))
	var flowErr *flowerror.Error
	suite.Require().True(errors.As(err, &flowErr))
	suite.Equal(flowerror.CodeProviderSessionExpiry, flowErr.Code)
	suite.Equal(payload, string(flowErr.Payload))
}

func (suite *ExecutorTestSuite) TestExecuteTransportError() {
	suite.transport.MockExecuteRequest = httpmock.Sequence(httpmock.Step{Err: errors.New("connection reset")})

	_, err := suite.executor.Execute(context.Background(), suite.session, "select-authenticator",
		model.Inputs{"authenticator": "email"})

	suite.True(errors.Is(err, flowerror.ErrTransport))
	suite.True(flowerror.IsRetryable(err))
}

func (suite *ExecutorTestSuite) TestExecuteCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	suite.transport.MockExecuteRequest = func(ctx context.Context, _ *syshttp.Request) (*syshttp.Response, error) {
		return nil, ctx.Err()
	}

	_, err := suite.executor.Execute(ctx, suite.session, "select-authenticator",
		model.Inputs{"authenticator": "email"})

	suite.True(errors.Is(err, flowerror.ErrTransport))
	suite.True(errors.Is(err, context.Canceled))
}

func (suite *ExecutorTestSuite) TestExecuteDecodeError() {
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusOK, `<html>maintenance</html>`)

	_, err := suite.executor.Execute(context.Background(), suite.session, "select-authenticator",
		model.Inputs{"authenticator": "email"})

	suite.True(errors.Is(err, flowerror.ErrDecode))
}

func (suite *ExecutorTestSuite) TestExecuteUnusableMethodIsNotRetryable() {
	session, err := model.DecodeSession([]byte(`{
  "stateHandle": "sh-1",
  "remediation": {"type": "array", "value": [{
    "name": "identify", "href": "http://127.0.0.1:1/idp/idx/identify", "method": "PUT",
    "value": [{"name": "identifier", "required": true}]
  }]}
}`), nil)
	suite.Require().NoError(err)
	executor := New(Config{Issuer: "http://127.0.0.1:1/oauth2/default", BaseURL: "http://127.0.0.1:1",
		ClientID: "client-1"}, syshttp.NewHTTPExecutor(syshttp.ExecutorConfig{Timeout: time.Second}))

	_, err = executor.Execute(context.Background(), session, "identify", model.Inputs{"identifier": "jane"})

	suite.True(errors.Is(err, flowerror.ErrDecode), "expected decode error, got %v", err)
	suite.False(flowerror.IsRetryable(err))
	suite.True(errors.Is(err, syshttp.ErrUnsupportedMethod))
}

func (suite *ExecutorTestSuite) TestExecuteUnknownOption() {
	_, err := suite.executor.Execute(context.Background(), suite.session, "challenge-sms", model.Inputs{})

	suite.True(errors.Is(err, flowerror.ErrInvalidTransition))
	suite.Equal(0, suite.transport.CallCount())
}

func (suite *ExecutorTestSuite) TestExecuteCancelOption() {
	suite.transport.MockExecuteRequest = httpmock.Respond(http.StatusOK, challengeState)

	_, err := suite.executor.Execute(context.Background(), suite.session, "cancel", nil)
	suite.Require().NoError(err)

	req := suite.transport.LastRequest()
	suite.Equal("https://idp.example.com/idp/idx/cancel", req.URL)
	suite.JSONEq(`{"stateHandle":"sh-1"}`, string(req.Body))
}

func (suite *ExecutorTestSuite) TestFullFlowAgainstMockServer() {
	server := testutils.NewMockIDXServer("client-1", "jane@example.com")
	defer server.Close()
	server.SetCode("246810")

	executor := New(Config{
		Issuer:   server.Issuer(),
		BaseURL:  server.URL(),
		ClientID: "client-1",
		Scopes:   []string{"openid", "email"},
	}, syshttp.NewHTTPExecutor(syshttp.ExecutorConfig{Timeout: 5 * time.Second}))
	ctx := context.Background()

	interaction, err := executor.Interact(ctx, InteractParams{})
	suite.Require().NoError(err)
	state, err := executor.Introspect(ctx, interaction)
	suite.Require().NoError(err)
	suite.Equal([]string{testutils.RemediationIdentify}, state.OptionNames())

	state, err = executor.Execute(ctx, state, testutils.RemediationIdentify,
		model.Inputs{"identifier": "jane@example.com"})
	suite.Require().NoError(err)
	state, err = executor.Execute(ctx, state, testutils.RemediationSelectAuthenticator,
		model.Inputs{"authenticator": "email"})
	suite.Require().NoError(err)
	suite.Equal([]string{testutils.RemediationChallengeEmail}, state.OptionNames())

	state, err = executor.Execute(ctx, state, testutils.RemediationChallengeEmail, model.Inputs{"code": "246810"})
	suite.Require().NoError(err)
	suite.True(state.IsTerminal())

	claims, err := state.Outcome().Tokens.IDTokenClaims()
	suite.Require().NoError(err)
	suite.Equal("jane@example.com", claims.Email)
	suite.Equal("jane@example.com", state.Context()["identifier"])
	suite.NotContains(state.Context(), "code")
}
