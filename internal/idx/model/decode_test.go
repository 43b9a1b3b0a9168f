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

package model

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
)

const identifyResponse = `{
  "version": "1.0.0",
  "stateHandle": "02state",
  "expiresAt": "2030-01-02T15:04:05.000Z",
  "intent": "LOGIN",
  "unknownTopLevel": {"ignored": true},
  "remediation": {
    "type": "array",
    "value": [
      {
        "rel": ["create-form"],
        "name": "identify",
        "href": "https://idp.example.com/idp/idx/identify",
        "method": "post",
        "accepts": "application/json; okta-version=1.0.0",
        "value": [
          {"name": "identifier", "label": "Username", "required": true},
          {"name": "rememberMe", "type": "boolean", "label": "Remember this device"},
          {"name": "stateHandle", "required": true, "value": "02state", "visible": false, "mutable": false}
        ]
      },
      {
        "name": "select-enroll-profile",
        "href": "https://idp.example.com/idp/idx/enroll",
        "method": "POST",
        "value": []
      }
    ]
  },
  "cancel": {
    "name": "cancel",
    "href": "https://idp.example.com/idp/idx/cancel",
    "method": "POST",
    "value": [{"name": "stateHandle", "required": true, "value": "02state", "mutable": false}]
  }
}`

const selectAuthenticatorResponse = `{
  "stateHandle": "02state",
  "remediation": {"type": "array", "value": [{
    "name": "select-authenticator-authenticate",
    "href": "https://idp.example.com/idp/idx/challenge",
    "method": "POST",
    "value": [
      {"name": "authenticator", "type": "object", "required": true, "options": [
        {"label": "Email", "value": {"form": {"value": [
          {"name": "id", "required": true, "value": "aut-email", "mutable": false},
          {"name": "methodType", "value": "email", "mutable": false}
        ]}}},
        {"label": "Phone", "value": {"form": {"value": [
          {"name": "id", "required": true, "value": "aut-phone", "mutable": false},
          {"name": "methodType", "value": "sms"}
        ]}}}
      ]},
      {"name": "stateHandle", "required": true, "value": "02state", "visible": false, "mutable": false}
    ]
  }]},
  "currentAuthenticatorEnrollment": {"type": "object", "value": {
    "id": "eae-1", "key": "okta_email", "type": "email", "displayName": "Email",
    "profile": {"email": "j***@example.com"}, "methods": [{"type": "email"}]
  }},
  "authenticatorEnrollments": {"type": "array", "value": [
    {"id": "eae-1", "key": "okta_email", "type": "email", "displayName": "Email",
     "profile": {"email": "j***@example.com"}, "methods": [{"type": "email"}]},
    {"id": "mbl-1", "key": "phone_number", "type": "phone", "displayName": "Phone",
     "profile": {"phoneNumber": "+1 XXX-XXX-1234"}, "methods": [{"type": "sms"}, {"type": "voice"}]}
  ]}
}`

const successResponse = `{
  "stateHandle": "02state",
  "successWithInteractionCode": {
    "rel": ["create-form"],
    "name": "issue",
    "href": "https://idp.example.com/oauth2/v1/token",
    "method": "POST",
    "accepts": "application/x-www-form-urlencoded",
    "value": [
      {"name": "grant_type", "required": true, "value": "interaction_code"},
      {"name": "interaction_code", "required": true, "value": "code-123"},
      {"name": "client_id", "required": true, "value": "client"},
      {"name": "code_verifier", "required": true}
    ]
  }
}`

const terminalResponse = `{
  "stateHandle": "02state",
  "messages": {"type": "array", "value": [
    {"message": "Your account is locked.", "i18n": {"key": "oie.selfservice.unlock"}, "class": "ERROR"}
  ]}
}`

type DecodeTestSuite struct {
	suite.Suite
}

func TestDecodeSuite(t *testing.T) {
	suite.Run(t, new(DecodeTestSuite))
}

func (suite *DecodeTestSuite) TestDecodeSessionIdentify() {
	state, err := DecodeSession([]byte(identifyResponse), nil)
	suite.Require().NoError(err)

	suite.Equal("02state", state.StateHandle())
	suite.False(state.IsTerminal())
	suite.Equal(OutcomeNone, state.Outcome().Kind)
	suite.Equal(time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC), state.ExpiresAt().UTC())
	suite.Equal([]string{"identify", "select-enroll-profile"}, state.OptionNames())

	identify, ok := state.Option("identify")
	suite.Require().True(ok)
	suite.Equal("POST", identify.Method())
	suite.Equal("https://idp.example.com/idp/idx/identify", identify.Href())
	suite.Equal([]string{"identifier"}, identify.RequiredFields())

	remember, ok := identify.Field("rememberMe")
	suite.Require().True(ok)
	suite.Equal(FieldTypeBoolean, remember.Type)
	suite.False(remember.Required)

	stateHandle, ok := identify.Field("stateHandle")
	suite.Require().True(ok)
	suite.False(stateHandle.Mutable)
	suite.False(stateHandle.Visible)
	value, hasValue := stateHandle.Value()
	suite.True(hasValue)
	suite.Equal("02state", value)

	cancel, ok := state.CancelOption()
	suite.True(ok)
	suite.Equal("cancel", cancel.Name())
	suite.NotContains(state.OptionNames(), "cancel")
}

func (suite *DecodeTestSuite) TestDecodeSessionCarriesPreviousState() {
	first, err := DecodeSession([]byte(identifyResponse), nil)
	suite.Require().NoError(err)
	first = first.WithInteractionHandle("ih-1").WithContext(map[string]string{"identifier": "jane"})

	next, err := DecodeSession([]byte(selectAuthenticatorResponse), first)
	suite.Require().NoError(err)

	suite.Equal("ih-1", next.InteractionHandle())
	suite.Equal("jane", next.Context()["identifier"])
	suite.Equal(first.CreatedAt(), next.CreatedAt())
	suite.True(next.ExpiresAt().IsZero())
}

func (suite *DecodeTestSuite) TestDecodeSessionOptionsAndEnrollments() {
	state, err := DecodeSession([]byte(selectAuthenticatorResponse), nil)
	suite.Require().NoError(err)

	option, ok := state.Option("select-authenticator-authenticate")
	suite.Require().True(ok)
	field, ok := option.Field("authenticator")
	suite.Require().True(ok)
	suite.Equal(FieldTypeObject, field.Type)

	options := field.Options()
	suite.Require().Len(options, 2)
	suite.True(options[0].Matches("EMAIL"))
	suite.True(options[1].Matches("sms"))
	suite.False(options[1].Matches("email"))
	suite.Equal(map[string]interface{}{"id": "aut-email", "methodType": "email"}, options[0].Value())

	current, ok := state.CurrentEnrollment()
	suite.Require().True(ok)
	suite.Equal("okta_email", current.Key)
	suite.Equal("j***@example.com", current.Profile()["email"])

	enrollments := state.Enrollments()
	suite.Require().Len(enrollments, 2)
	suite.True(enrollments[1].HasMethod("voice"))
	suite.Equal("+1 XXX-XXX-1234", enrollments[1].Profile()["phoneNumber"])
}

func (suite *DecodeTestSuite) TestDecodeSessionSuccessWithInteractionCode() {
	state, err := DecodeSession([]byte(successResponse), nil)
	suite.Require().NoError(err)

	suite.False(state.IsTerminal())
	suite.Empty(state.AvailableOptions())
	code, ok := state.InteractionCode()
	suite.True(ok)
	suite.Equal("code-123", code)

	grant, ok := state.SuccessGrant()
	suite.Require().True(ok)
	suite.Equal("https://idp.example.com/oauth2/v1/token", grant.Href())
	suite.Equal([]string{"code_verifier"}, grant.RequiredFields())
}

func (suite *DecodeTestSuite) TestDecodeSessionTerminalFailure() {
	state, err := DecodeSession([]byte(terminalResponse), nil)
	suite.Require().NoError(err)

	suite.True(state.IsTerminal())
	suite.Empty(state.AvailableOptions())
	suite.Equal(OutcomeFailure, state.Outcome().Kind)
	suite.Equal("Your account is locked.", state.Outcome().Reason)
}

func (suite *DecodeTestSuite) TestDecodeSessionWithoutOptionsOrMessages() {
	state, err := DecodeSession([]byte(`{"stateHandle":"02state"}`), nil)
	suite.Require().NoError(err)

	suite.True(state.IsTerminal())
	suite.Equal("no remediation available", state.Outcome().Reason)
}

func (suite *DecodeTestSuite) TestDecodeSessionSuccessRedirect() {
	state, err := DecodeSession([]byte(`{"stateHandle":"s","success":{"name":"success-redirect","href":"https://app/cb"}}`), nil)
	suite.Require().NoError(err)

	suite.True(state.IsTerminal())
	suite.Equal(OutcomeSuccess, state.Outcome().Kind)
	suite.Equal("https://app/cb", state.Outcome().RedirectURL)
}

func (suite *DecodeTestSuite) TestDecodeSessionRejectsMalformedPayloads() {
	testCases := []struct {
		name string
		body string
	}{
		{"NotJSON", `<html>gateway</html>`},
		{"RemediationValueNotArray", `{"stateHandle":"s","remediation":{"type":"array","value":{"name":"identify"}}}`},
		{"OptionWithoutName", `{"stateHandle":"s","remediation":{"value":[{"href":"https://x"}]}}`},
		{"OptionWithoutHref", `{"stateHandle":"s","remediation":{"value":[{"name":"identify"}]}}`},
		{"MissingStateHandle", `{"remediation":{"value":[{"name":"identify","href":"https://x"}]}}`},
		{"BadExpiry", `{"stateHandle":"s","expiresAt":"tomorrow"}`},
		{"EmptyObject", `{}`},
		{"Null", `null`},
		{"OnlyUnknownFields", `{"unexpected":true}`},
		{"FieldWithoutName", `{"stateHandle":"s","remediation":{"value":[{"name":"identify","href":"https://x","value":[{"label":"x"}]}]}}`},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			state, err := DecodeSession([]byte(tc.body), nil)
			suite.Nil(state)
			suite.True(errors.Is(err, flowerror.ErrDecode), "expected decode error, got %v", err)
		})
	}
}

func (suite *DecodeTestSuite) TestAccessorsReturnCopies() {
	state, err := DecodeSession([]byte(selectAuthenticatorResponse), nil)
	suite.Require().NoError(err)

	options := state.AvailableOptions()
	options[0] = NewRemediationOption("tampered", "https://evil", "POST")
	suite.Equal("select-authenticator-authenticate", state.AvailableOptions()[0].Name())

	field, _ := state.AvailableOptions()[0].Field("authenticator")
	value := field.Options()[0].Value().(map[string]interface{})
	value["id"] = "tampered"
	field, _ = state.AvailableOptions()[0].Field("authenticator")
	suite.Equal("aut-email", field.Options()[0].Value().(map[string]interface{})["id"])

	enrollments := state.Enrollments()
	methods := enrollments[1].Methods()
	methods[0].Type = "tampered"
	enrollments[1].Profile()["phoneNumber"] = "tampered"
	suite.Equal("sms", state.Enrollments()[1].Methods()[0].Type)
	suite.Equal("+1 XXX-XXX-1234", state.Enrollments()[1].Profile()["phoneNumber"])

	ctx := state.Context()
	ctx["identifier"] = "tampered"
	suite.Empty(state.Context())
}

func (suite *DecodeTestSuite) TestWithOutcomeIsTerminalAndLeavesOriginalUntouched() {
	state, err := DecodeSession([]byte(identifyResponse), nil)
	suite.Require().NoError(err)

	done := state.WithOutcome(SuccessOutcome(&TokenSet{AccessToken: "at"}))

	suite.True(done.IsTerminal())
	suite.Empty(done.AvailableOptions())
	_, hasCancel := done.CancelOption()
	suite.False(hasCancel)
	suite.Equal("at", done.Outcome().Tokens.AccessToken)
	suite.False(state.IsTerminal())
	suite.Len(state.AvailableOptions(), 2)
}

func (suite *DecodeTestSuite) TestDecodeTokenSet() {
	received := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens, err := DecodeTokenSet([]byte(`{"access_token":"at","id_token":"it","token_type":"Bearer",
		"expires_in":3600,"scope":"openid email","refresh_token":"rt"}`), received)
	suite.Require().NoError(err)

	suite.Equal("at", tokens.AccessToken)
	suite.Equal("rt", tokens.RefreshToken)
	suite.Equal(received.Add(time.Hour), tokens.ExpiresAt())

	_, err = DecodeTokenSet([]byte(`{"id_token":"it"}`), received)
	suite.True(errors.Is(err, flowerror.ErrDecode))
	_, err = DecodeTokenSet([]byte(`not json`), received)
	suite.True(errors.Is(err, flowerror.ErrDecode))
}

func (suite *DecodeTestSuite) TestIDTokenClaims() {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "00u1",
			Issuer:    "https://idp.example.com/oauth2/default",
			ExpiresAt: jwt.NewNumericDate(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
		Email: "jane@example.com",
	})
	signed, err := token.SignedString([]byte("any-key"))
	suite.Require().NoError(err)

	claims, err := (&TokenSet{AccessToken: "at", IDToken: signed}).IDTokenClaims()
	suite.Require().NoError(err)
	suite.Equal("00u1", claims.Subject)
	suite.Equal("jane@example.com", claims.Email)
	suite.Equal("https://idp.example.com/oauth2/default", claims.Issuer)

	_, err = (&TokenSet{AccessToken: "at"}).IDTokenClaims()
	suite.Error(err)
	_, err = (&TokenSet{AccessToken: "at", IDToken: "not-a-jwt"}).IDTokenClaims()
	suite.Error(err)
}

func (suite *DecodeTestSuite) TestDecodeInteractionHandle() {
	handle, err := DecodeInteractionHandle([]byte(`{"interaction_handle":"ih-1"}`))
	suite.Require().NoError(err)
	suite.Equal("ih-1", handle)

	_, err = DecodeInteractionHandle([]byte(`{}`))
	suite.True(errors.Is(err, flowerror.ErrDecode))
}

func (suite *DecodeTestSuite) TestDecodeErrorDetails() {
	details := DecodeErrorDetails([]byte(`{"version":"1.0.0","messages":{"type":"array","value":[
		{"message":"The session has expired.","i18n":{"key":"idx.session.expired"},"class":"ERROR"}]}}`))
	suite.True(details.HasCode(SessionExpiredMessageKey))
	suite.Equal("The session has expired.", details.Text())

	details = DecodeErrorDetails([]byte(`{"error":"invalid_grant","error_description":"PKCE verification failed."}`))
	suite.Equal([]string{"invalid_grant"}, details.Codes)
	suite.Equal("PKCE verification failed.", details.Text())

	details = DecodeErrorDetails([]byte(`{"errorCode":"E0000011","errorSummary":"Invalid token provided"}`))
	suite.True(details.HasCode("E0000011"))

	suite.Empty(DecodeErrorDetails([]byte("bad gateway")).Codes)
}
