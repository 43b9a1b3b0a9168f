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

// Package model holds the immutable session, remediation and token types of the IDX protocol and
// decodes them from provider responses.
package model

import (
	"strings"
	"time"
)

// StepIntrospect is the step identifier of the first state of a flow.
const StepIntrospect = "introspect"

// OutcomeKind is the kind of outcome a session reached.
type OutcomeKind int

const (
	// OutcomeNone means the session is still in progress.
	OutcomeNone OutcomeKind = iota
	// OutcomeSuccess means the flow completed and tokens (or a redirect) were issued.
	OutcomeSuccess
	// OutcomeFailure means the provider ended the flow without success.
	OutcomeFailure
)

// String returns the name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "none"
	}
}

// Outcome is the result of a session.
type Outcome struct {
	Kind        OutcomeKind
	Tokens      *TokenSet
	RedirectURL string
	Reason      string
}

// SuccessOutcome builds a success outcome carrying tokens.
func SuccessOutcome(tokens *TokenSet) Outcome {
	return Outcome{Kind: OutcomeSuccess, Tokens: tokens}
}

// FailureOutcome builds a failure outcome.
func FailureOutcome(reason string) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason}
}

// Message is a provider message attached to a response.
type Message struct {
	Text  string
	Key   string
	Class string
}

// SessionState is a snapshot of an authentication flow. A state never changes once built; every
// transition produces a new one.
type SessionState struct {
	interactionHandle string
	codeVerifier      string
	stateHandle       string
	step              string
	options           []RemediationOption
	cancel            *RemediationOption
	successGrant      *RemediationOption
	context           map[string]string
	terminal          bool
	outcome           Outcome
	expiresAt         time.Time
	createdAt         time.Time
	messages          []Message
	currentEnrollment *AuthenticatorEnrollment
	enrollments       []AuthenticatorEnrollment
}

// InteractionHandle returns the handle obtained at interaction start.
func (s *SessionState) InteractionHandle() string {
	return s.interactionHandle
}

// CodeVerifier returns the PKCE verifier of the interaction. It is kept out of Context.
func (s *SessionState) CodeVerifier() string {
	return s.codeVerifier
}

// StateHandle returns the provider state handle submitted with every transition.
func (s *SessionState) StateHandle() string {
	return s.stateHandle
}

// Step returns the name of the remediation that produced this state.
func (s *SessionState) Step() string {
	return s.step
}

// AvailableOptions returns a copy of the remediation options, in provider order.
func (s *SessionState) AvailableOptions() []RemediationOption {
	out := make([]RemediationOption, len(s.options))
	for i, o := range s.options {
		out[i] = o.clone()
	}
	return out
}

// Option returns the named remediation option.
func (s *SessionState) Option(name string) (RemediationOption, bool) {
	for _, o := range s.options {
		if o.name == name {
			return o.clone(), true
		}
	}
	return RemediationOption{}, false
}

// OptionNames returns the names of the available options.
func (s *SessionState) OptionNames() []string {
	names := make([]string, len(s.options))
	for i, o := range s.options {
		names[i] = o.name
	}
	return names
}

// CancelOption returns the cancel remediation if the provider advertised one.
func (s *SessionState) CancelOption() (RemediationOption, bool) {
	if s.cancel == nil {
		return RemediationOption{}, false
	}
	return s.cancel.clone(), true
}

// SuccessGrant returns the interaction code remediation if the provider issued one.
func (s *SessionState) SuccessGrant() (RemediationOption, bool) {
	if s.successGrant == nil {
		return RemediationOption{}, false
	}
	return s.successGrant.clone(), true
}

// InteractionCode returns the interaction code of the success grant.
func (s *SessionState) InteractionCode() (string, bool) {
	if s.successGrant == nil {
		return "", false
	}
	f, ok := s.successGrant.Field("interaction_code")
	if !ok {
		return "", false
	}
	code, ok := f.value.(string)
	return code, ok && code != ""
}

// Context returns a copy of the non-secret values supplied in prior steps.
func (s *SessionState) Context() map[string]string {
	out := make(map[string]string, len(s.context))
	for k, v := range s.context {
		out[k] = v
	}
	return out
}

// IsTerminal reports whether no further transitions are possible.
func (s *SessionState) IsTerminal() bool {
	return s.terminal
}

// Outcome returns the outcome of the session. It is OutcomeNone while the session is in progress.
func (s *SessionState) Outcome() Outcome {
	return s.outcome
}

// ExpiresAt returns the provider declared expiry. The zero time means no expiry was declared.
func (s *SessionState) ExpiresAt() time.Time {
	return s.expiresAt
}

// CreatedAt returns the local time the flow's first state was built.
func (s *SessionState) CreatedAt() time.Time {
	return s.createdAt
}

// IsExpired reports whether the provider declared expiry has passed at the given time.
func (s *SessionState) IsExpired(now time.Time) bool {
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

// Messages returns a copy of the provider messages.
func (s *SessionState) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

// CurrentEnrollment returns the authenticator enrollment being challenged, if any.
func (s *SessionState) CurrentEnrollment() (AuthenticatorEnrollment, bool) {
	if s.currentEnrollment == nil {
		return AuthenticatorEnrollment{}, false
	}
	return s.currentEnrollment.clone(), true
}

// Enrollments returns a copy of the authenticator enrollments of the user.
func (s *SessionState) Enrollments() []AuthenticatorEnrollment {
	out := make([]AuthenticatorEnrollment, len(s.enrollments))
	for i, e := range s.enrollments {
		out[i] = e.clone()
	}
	return out
}

// WithInteractionHandle returns a copy of the state bound to the given interaction handle.
func (s *SessionState) WithInteractionHandle(handle string) *SessionState {
	c := s.copy()
	c.interactionHandle = handle
	return c
}

// WithCodeVerifier returns a copy of the state carrying the PKCE verifier of the interaction.
func (s *SessionState) WithCodeVerifier(verifier string) *SessionState {
	c := s.copy()
	c.codeVerifier = verifier
	return c
}

// WithStep returns a copy of the state labelled with the step that produced it.
func (s *SessionState) WithStep(step string) *SessionState {
	c := s.copy()
	c.step = step
	return c
}

// WithContext returns a copy of the state with the given values merged into its context.
func (s *SessionState) WithContext(values map[string]string) *SessionState {
	c := s.copy()
	for k, v := range values {
		c.context[k] = v
	}
	return c
}

// WithOutcome returns a terminal copy of the state carrying the outcome. Terminal states have no options.
func (s *SessionState) WithOutcome(outcome Outcome) *SessionState {
	c := s.copy()
	c.terminal = true
	c.outcome = outcome
	c.options = nil
	c.cancel = nil
	return c
}

// MessageText joins the provider messages into one line.
func (s *SessionState) MessageText() string {
	texts := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	return strings.Join(texts, "; ")
}

func (s *SessionState) copy() *SessionState {
	c := *s
	c.options = s.AvailableOptions()
	if len(s.options) == 0 {
		c.options = nil
	}
	c.context = s.Context()
	c.messages = s.Messages()
	c.enrollments = s.Enrollments()
	if s.cancel != nil {
		o := s.cancel.clone()
		c.cancel = &o
	}
	if s.successGrant != nil {
		o := s.successGrant.clone()
		c.successGrant = &o
	}
	if s.currentEnrollment != nil {
		e := s.currentEnrollment.clone()
		c.currentEnrollment = &e
	}
	return &c
}

func (r RemediationOption) clone() RemediationOption {
	r.rel = append([]string(nil), r.rel...)
	r.fields = cloneFields(r.fields)
	return r
}
