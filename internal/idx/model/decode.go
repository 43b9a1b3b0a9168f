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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
)

// SessionExpiredMessageKey is the provider message key of an expired IDX session.
const SessionExpiredMessageKey = "idx.session.expired"

var errNoIDToken = errors.New("token set carries no id_token")

type wireCollection[T any] struct {
	Type  string `json:"type"`
	Value T      `json:"value"`
}

type wireForm struct {
	Value []wireField `json:"value"`
}

type wireField struct {
	Name     string          `json:"name"`
	Label    string          `json:"label"`
	Type     string          `json:"type"`
	Required bool            `json:"required"`
	Secret   bool            `json:"secret"`
	Visible  *bool           `json:"visible"`
	Mutable  *bool           `json:"mutable"`
	Value    json.RawMessage `json:"value"`
	Options  []wireOption    `json:"options"`
	Form     *wireForm       `json:"form"`
}

type wireOption struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}

type wireRemediation struct {
	Rel     []string    `json:"rel"`
	Name    string      `json:"name"`
	Href    string      `json:"href"`
	Method  string      `json:"method"`
	Accepts string      `json:"accepts"`
	Value   []wireField `json:"value"`
}

type wireEnrollment struct {
	ID          string                 `json:"id"`
	Key         string                 `json:"key"`
	Type        string                 `json:"type"`
	DisplayName string                 `json:"displayName"`
	Profile     map[string]interface{} `json:"profile"`
	Methods     []MethodType           `json:"methods"`
}

type wireMessage struct {
	Message string `json:"message"`
	Class   string `json:"class"`
	I18n    struct {
		Key string `json:"key"`
	} `json:"i18n"`
}

type wireResponse struct {
	StateHandle                    string                             `json:"stateHandle"`
	ExpiresAt                      string                             `json:"expiresAt"`
	Remediation                    *wireCollection[[]wireRemediation] `json:"remediation"`
	Messages                       *wireCollection[[]wireMessage]     `json:"messages"`
	CurrentAuthenticatorEnrollment *wireCollection[*wireEnrollment]   `json:"currentAuthenticatorEnrollment"`
	AuthenticatorEnrollments       *wireCollection[[]wireEnrollment]  `json:"authenticatorEnrollments"`
	SuccessWithInteractionCode     *wireRemediation                   `json:"successWithInteractionCode"`
	Success                        *wireRemediation                   `json:"success"`
	Cancel                         *wireRemediation                   `json:"cancel"`
}

type wireToken struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

type wireInteract struct {
	InteractionHandle string `json:"interaction_handle"`
}

type wireError struct {
	ErrorCode   string                         `json:"errorCode"`
	Error       string                         `json:"error"`
	Description string                         `json:"error_description"`
	Summary     string                         `json:"errorSummary"`
	Messages    *wireCollection[[]wireMessage] `json:"messages"`
}

// DecodeSession decodes an IDX response body into a session state. The interaction handle, context
// and creation time are carried over from previous, which is nil for the first state of a flow.
// Unknown fields are ignored.
func DecodeSession(body []byte, previous *SessionState) (*SessionState, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, flowerror.NewDecodeError("malformed IDX response", err)
	}

	state := &SessionState{
		stateHandle: wire.StateHandle,
		context:     map[string]string{},
		createdAt:   time.Now(),
	}
	if previous != nil {
		state.interactionHandle = previous.interactionHandle
		state.codeVerifier = previous.codeVerifier
		state.context = previous.Context()
		state.createdAt = previous.createdAt
	}

	if wire.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, wire.ExpiresAt)
		if err != nil {
			return nil, flowerror.NewDecodeError("invalid expiresAt in IDX response", err)
		}
		state.expiresAt = expiresAt
	}

	if wire.Messages != nil {
		state.messages = decodeMessages(wire.Messages.Value)
	}
	if wire.CurrentAuthenticatorEnrollment != nil && wire.CurrentAuthenticatorEnrollment.Value != nil {
		e := decodeEnrollment(*wire.CurrentAuthenticatorEnrollment.Value)
		state.currentEnrollment = &e
	}
	if wire.AuthenticatorEnrollments != nil {
		for _, e := range wire.AuthenticatorEnrollments.Value {
			state.enrollments = append(state.enrollments, decodeEnrollment(e))
		}
	}
	if wire.Cancel != nil {
		cancel, err := decodeRemediation(*wire.Cancel)
		if err != nil {
			return nil, err
		}
		state.cancel = &cancel
	}

	if wire.SuccessWithInteractionCode != nil {
		grant, err := decodeRemediation(*wire.SuccessWithInteractionCode)
		if err != nil {
			return nil, err
		}
		state.successGrant = &grant
		return state, nil
	}
	if wire.Success != nil {
		state.terminal = true
		state.cancel = nil
		state.outcome = Outcome{Kind: OutcomeSuccess, RedirectURL: wire.Success.Href}
		return state, nil
	}

	if wire.Remediation != nil {
		for _, r := range wire.Remediation.Value {
			option, err := decodeRemediation(r)
			if err != nil {
				return nil, err
			}
			state.options = append(state.options, option)
		}
	}

	if len(state.options) == 0 {
		if state.stateHandle == "" && len(state.messages) == 0 {
			return nil, flowerror.NewDecodeError("IDX response has no remediation", nil)
		}
		// The provider ended the flow, usually with an explanatory message.
		reason := state.MessageText()
		if reason == "" {
			reason = "no remediation available"
		}
		state.terminal = true
		state.cancel = nil
		state.outcome = FailureOutcome(reason)
		return state, nil
	}
	if state.stateHandle == "" {
		return nil, flowerror.NewDecodeError("IDX response is missing stateHandle", nil)
	}
	return state, nil
}

// DecodeTokenSet decodes a token endpoint response.
func DecodeTokenSet(body []byte, receivedAt time.Time) (*TokenSet, error) {
	var wire wireToken
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, flowerror.NewDecodeError("malformed token response", err)
	}
	if wire.AccessToken == "" {
		return nil, flowerror.NewDecodeError("token response is missing access_token", nil)
	}
	return &TokenSet{
		AccessToken:  wire.AccessToken,
		IDToken:      wire.IDToken,
		RefreshToken: wire.RefreshToken,
		TokenType:    wire.TokenType,
		Scope:        wire.Scope,
		ExpiresIn:    wire.ExpiresIn,
		ReceivedAt:   receivedAt,
	}, nil
}

// DecodeInteractionHandle decodes the interact endpoint response.
func DecodeInteractionHandle(body []byte) (string, error) {
	var wire wireInteract
	if err := json.Unmarshal(body, &wire); err != nil {
		return "", flowerror.NewDecodeError("malformed interact response", err)
	}
	if wire.InteractionHandle == "" {
		return "", flowerror.NewDecodeError("interact response is missing interaction_handle", nil)
	}
	return wire.InteractionHandle, nil
}

// ErrorDetails holds what could be read from a provider error body.
type ErrorDetails struct {
	Codes    []string
	Messages []Message
}

// Text returns a human readable summary of the error body.
func (d ErrorDetails) Text() string {
	texts := make([]string, 0, len(d.Messages))
	for _, m := range d.Messages {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	return strings.Join(texts, "; ")
}

// HasCode reports whether the error body carried the given code or message key.
func (d ErrorDetails) HasCode(code string) bool {
	for _, c := range d.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// DecodeErrorDetails extracts error codes and message keys from an error body. Bodies that are not
// JSON yield empty details.
func DecodeErrorDetails(body []byte) ErrorDetails {
	var wire wireError
	details := ErrorDetails{}
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &wire) != nil {
		return details
	}
	for _, code := range []string{wire.ErrorCode, wire.Error} {
		if code != "" {
			details.Codes = append(details.Codes, code)
		}
	}
	if wire.Messages != nil {
		details.Messages = decodeMessages(wire.Messages.Value)
		for _, m := range details.Messages {
			if m.Key != "" {
				details.Codes = append(details.Codes, m.Key)
			}
		}
	}
	for _, text := range []string{wire.Description, wire.Summary} {
		if text != "" {
			details.Messages = append(details.Messages, Message{Text: text, Class: "ERROR"})
		}
	}
	return details
}

func decodeRemediation(w wireRemediation) (RemediationOption, error) {
	if w.Name == "" {
		return RemediationOption{}, flowerror.NewDecodeError("remediation option is missing name", nil)
	}
	if w.Href == "" {
		return RemediationOption{}, flowerror.NewDecodeError(
			fmt.Sprintf("remediation option %q is missing href", w.Name), nil)
	}
	fields, err := decodeFields(w.Value)
	if err != nil {
		return RemediationOption{}, err
	}
	return RemediationOption{
		name:    w.Name,
		href:    w.Href,
		method:  strings.ToUpper(w.Method),
		accepts: w.Accepts,
		rel:     w.Rel,
		fields:  fields,
	}, nil
}

func decodeFields(wire []wireField) ([]FormField, error) {
	fields := make([]FormField, 0, len(wire))
	for _, w := range wire {
		if w.Name == "" {
			return nil, flowerror.NewDecodeError("form field is missing name", nil)
		}
		f := FormField{
			Name:     w.Name,
			Label:    w.Label,
			Type:     w.Type,
			Required: w.Required,
			Secret:   w.Secret,
			Mutable:  w.Mutable == nil || *w.Mutable,
			Visible:  w.Visible == nil || *w.Visible,
		}
		if f.Type == "" {
			f.Type = FieldTypeString
		}
		if len(w.Value) > 0 && !bytes.Equal(bytes.TrimSpace(w.Value), []byte("null")) {
			v, err := decodeValue(w.Value)
			if err != nil {
				return nil, err
			}
			f.value, f.hasValue = v, true
		}
		for _, o := range w.Options {
			v, err := decodeValue(o.Value)
			if err != nil {
				return nil, err
			}
			f.options = append(f.options, FieldOption{Label: o.Label, value: v})
		}
		if w.Form != nil {
			nested, err := decodeFields(w.Form.Value)
			if err != nil {
				return nil, err
			}
			f.form = nested
			f.Type = FieldTypeObject
		}
		if len(f.options) > 0 {
			f.Type = FieldTypeObject
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// decodeValue resolves a field or option value. Values of the form {"form": {"value": [...]}} become a
// map of the nested field names to their values.
func decodeValue(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wrapped struct {
		Form *wireForm `json:"form"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Form != nil {
			out := make(map[string]interface{}, len(wrapped.Form.Value))
			for _, nested := range wrapped.Form.Value {
				v, err := decodeValue(nested.Value)
				if err != nil {
					return nil, err
				}
				out[nested.Name] = v
			}
			return out, nil
		}
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, flowerror.NewDecodeError("invalid field value", err)
	}
	return v, nil
}

func decodeMessages(wire []wireMessage) []Message {
	messages := make([]Message, 0, len(wire))
	for _, m := range wire {
		messages = append(messages, Message{Text: m.Message, Key: m.I18n.Key, Class: m.Class})
	}
	return messages
}

func decodeEnrollment(w wireEnrollment) AuthenticatorEnrollment {
	profile := make(map[string]string, len(w.Profile))
	for k, v := range w.Profile {
		if s, ok := v.(string); ok {
			profile[k] = s
		} else if v != nil {
			profile[k] = fmt.Sprint(v)
		}
	}
	return AuthenticatorEnrollment{
		ID:          w.ID,
		Key:         w.Key,
		Type:        w.Type,
		DisplayName: w.DisplayName,
		profile:     profile,
		methods:     append([]MethodType(nil), w.Methods...),
	}
}
