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

// Package testutils provides in-process identity provider and inbox servers for the integration tests.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/asgardeo/idxflow/internal/idx/pkce"
)

// Remediation names served by MockIDXServer.
const (
	RemediationIdentify            = "identify"
	RemediationSelectAuthenticator = "select-authenticator"
	RemediationChallengeEmail      = "challenge-email"
	RemediationChallengeSMS        = "challenge-sms"
)

// Authenticator ids served by MockIDXServer.
const (
	EmailAuthenticatorID = "aut-email"
	PhoneAuthenticatorID = "aut-phone"
)

// MockIDXServer is an in-process identity provider speaking the IDX remediation protocol. It walks a
// fixed identify, select-authenticator, challenge, success sequence.
type MockIDXServer struct {
	server     *httptest.Server
	mutex      sync.Mutex
	clientID   string
	username   string
	email      string
	code       string
	signingKey []byte

	interactionHandle string
	codeChallenge     string
	stateHandle       string
	interactionCode   string
	expired           bool
	expiresAt         time.Time
	onCodeIssued      func(channel, code string)
	requests          map[string]int
}

// NewMockIDXServer starts a mock identity provider for the given client and user.
func NewMockIDXServer(clientID, username string) *MockIDXServer {
	m := &MockIDXServer{
		clientID:   clientID,
		username:   username,
		email:      username,
		code:       "123456",
		signingKey: []byte("mock-idx-signing-key"),
		requests:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/default/v1/interact", m.handleInteract)
	mux.HandleFunc("POST /oauth2/default/v1/token", m.handleToken)
	mux.HandleFunc("POST /idp/idx/introspect", m.handleIntrospect)
	mux.HandleFunc("POST /idp/idx/identify", m.handleIdentify)
	mux.HandleFunc("POST /idp/idx/challenge", m.handleChallenge)
	mux.HandleFunc("POST /idp/idx/challenge/answer", m.handleAnswer)
	mux.HandleFunc("POST /idp/idx/cancel", m.handleCancel)
	m.server = httptest.NewServer(m.count(mux))
	return m
}

// URL returns the org URL of the server.
func (m *MockIDXServer) URL() string {
	return m.server.URL
}

// Issuer returns the authorization server URL of the server.
func (m *MockIDXServer) Issuer() string {
	return m.server.URL + "/oauth2/default"
}

// Close stops the server.
func (m *MockIDXServer) Close() {
	m.server.Close()
}

// SetCode sets the one-time code the server issues and expects.
func (m *MockIDXServer) SetCode(code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.code = code
}

// SetEmail sets the address the email authenticator delivers to.
func (m *MockIDXServer) SetEmail(email string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.email = email
}

// SetExpiresAt sets the expiresAt advertised in every IDX response.
func (m *MockIDXServer) SetExpiresAt(t time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.expiresAt = t
}

// OnCodeIssued registers a callback invoked whenever a challenge sends a code.
func (m *MockIDXServer) OnCodeIssued(fn func(channel, code string)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onCodeIssued = fn
}

// ExpireSession makes every following remediation fail with idx.session.expired.
func (m *MockIDXServer) ExpireSession() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.expired = true
}

// RequestCount returns the number of requests received on a path.
func (m *MockIDXServer) RequestCount(path string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requests[path]
}

// TotalRequests returns the number of requests received on all paths.
func (m *MockIDXServer) TotalRequests() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

func (m *MockIDXServer) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mutex.Lock()
		m.requests[r.URL.Path]++
		m.mutex.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (m *MockIDXServer) handleInteract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oauthError("invalid_request", err.Error()))
		return
	}
	if r.PostForm.Get("client_id") != m.clientID {
		writeJSON(w, http.StatusUnauthorized, oauthError("invalid_client", "Invalid value for 'client_id' parameter."))
		return
	}
	if r.PostForm.Get("code_challenge_method") != pkce.CodeChallengeMethodS256 {
		writeJSON(w, http.StatusBadRequest, oauthError("invalid_request", "PKCE code challenge is required."))
		return
	}

	m.mutex.Lock()
	m.interactionHandle = "ih-" + uuid.NewString()
	m.codeChallenge = r.PostForm.Get("code_challenge")
	m.stateHandle = "sh-" + uuid.NewString()
	m.expired = false
	handle := m.interactionHandle
	m.mutex.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"interaction_handle": handle})
}

func (m *MockIDXServer) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InteractionHandle string `json:"interactionHandle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, idxError("Malformed request.", "api.error.malformed"))
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if req.InteractionHandle == "" || req.InteractionHandle != m.interactionHandle {
		writeJSON(w, http.StatusBadRequest, idxError("The interaction handle is invalid.", "idx.invalid.handle"))
		return
	}
	writeJSON(w, http.StatusOK, m.identifyState())
}

func (m *MockIDXServer) handleIdentify(w http.ResponseWriter, r *http.Request) {
	body, ok := m.readRemediation(w, r)
	if !ok {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if body["identifier"] != m.username {
		writeJSON(w, http.StatusBadRequest, idxError("There is no account with that username.",
			"idx.unknown.user"))
		return
	}
	writeJSON(w, http.StatusOK, m.selectState())
}

func (m *MockIDXServer) handleChallenge(w http.ResponseWriter, r *http.Request) {
	body, ok := m.readRemediation(w, r)
	if !ok {
		return
	}
	selected, _ := body["authenticator"].(map[string]interface{})

	m.mutex.Lock()
	var channel, name string
	switch selected["id"] {
	case EmailAuthenticatorID:
		channel, name = "email", RemediationChallengeEmail
	case PhoneAuthenticatorID:
		channel, name = "sms", RemediationChallengeSMS
	default:
		m.mutex.Unlock()
		writeJSON(w, http.StatusBadRequest, idxError("Unknown authenticator.", "idx.unknown.authenticator"))
		return
	}
	state := m.challengeState(name, channel)
	notify, code := m.onCodeIssued, m.code
	m.mutex.Unlock()

	if notify != nil {
		notify(channel, code)
	}
	writeJSON(w, http.StatusOK, state)
}

func (m *MockIDXServer) handleAnswer(w http.ResponseWriter, r *http.Request) {
	body, ok := m.readRemediation(w, r)
	if !ok {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if body["code"] != m.code {
		writeJSON(w, http.StatusBadRequest, idxError("Invalid code. Try again.",
			"api.authn.error.PASSCODE_INVALID"))
		return
	}
	m.interactionCode = "ic-" + uuid.NewString()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":     "1.0.0",
		"stateHandle": m.stateHandle,
		"successWithInteractionCode": map[string]interface{}{
			"rel":     []string{"create-form"},
			"name":    "issue",
			"href":    m.Issuer() + "/v1/token",
			"method":  "POST",
			"accepts": "application/x-www-form-urlencoded",
			"value": []interface{}{
				field("grant_type", true, "interaction_code"),
				field("interaction_code", true, m.interactionCode),
				field("client_id", true, m.clientID),
				field("code_verifier", true, nil),
			},
		},
	})
}

func (m *MockIDXServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.readRemediation(w, r); !ok {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stateHandle = "sh-" + uuid.NewString()
	writeJSON(w, http.StatusOK, m.identifyState())
}

func (m *MockIDXServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oauthError("invalid_request", err.Error()))
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	form := r.PostForm
	if form.Get("grant_type") != "interaction_code" || form.Get("interaction_code") != m.interactionCode ||
		m.interactionCode == "" {
		writeJSON(w, http.StatusBadRequest, oauthError("invalid_grant", "The interaction code is invalid."))
		return
	}
	if err := pkce.ValidatePKCE(m.codeChallenge, pkce.CodeChallengeMethodS256,
		form.Get("code_verifier")); err != nil {
		writeJSON(w, http.StatusBadRequest, oauthError("invalid_grant", "PKCE verification failed."))
		return
	}
	m.interactionCode = ""

	now := time.Now()
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "00u-" + m.username,
		"iss":   m.Issuer(),
		"aud":   m.clientID,
		"email": m.email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}).SignedString(m.signingKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, oauthError("server_error", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token_type":    "Bearer",
		"expires_in":    3600,
		"access_token":  "at-" + uuid.NewString(),
		"refresh_token": "rt-" + uuid.NewString(),
		"id_token":      idToken,
		"scope":         form.Get("scope"),
	})
}

// readRemediation decodes a remediation body and rejects stale or expired state handles.
func (m *MockIDXServer) readRemediation(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, idxError("Malformed request.", "api.error.malformed"))
		return nil, false
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.expired {
		writeJSON(w, http.StatusUnauthorized, idxError("The session has expired.", "idx.session.expired"))
		return nil, false
	}
	if body["stateHandle"] != m.stateHandle {
		writeJSON(w, http.StatusUnauthorized, idxError("The session has expired.", "idx.session.expired"))
		return nil, false
	}
	return body, true
}

func (m *MockIDXServer) envelope(remediations ...interface{}) map[string]interface{} {
	state := map[string]interface{}{
		"version":     "1.0.0",
		"stateHandle": m.stateHandle,
		"intent":      "LOGIN",
		"remediation": map[string]interface{}{"type": "array", "value": remediations},
		"cancel": map[string]interface{}{
			"rel":    []string{"create-form"},
			"name":   "cancel",
			"href":   m.URL() + "/idp/idx/cancel",
			"method": "POST",
			"value":  []interface{}{m.stateHandleField()},
		},
	}
	if !m.expiresAt.IsZero() {
		state["expiresAt"] = m.expiresAt.UTC().Format(time.RFC3339)
	}
	return state
}

func (m *MockIDXServer) identifyState() map[string]interface{} {
	return m.envelope(remediation(RemediationIdentify, m.URL()+"/idp/idx/identify",
		map[string]interface{}{"name": "identifier", "label": "Username", "required": true},
		m.stateHandleField()))
}

func (m *MockIDXServer) selectState() map[string]interface{} {
	state := m.envelope(remediation(RemediationSelectAuthenticator, m.URL()+"/idp/idx/challenge",
		map[string]interface{}{
			"name":     "authenticator",
			"type":     "object",
			"required": true,
			"options": []interface{}{
				authenticatorOption("Email", EmailAuthenticatorID, "email"),
				authenticatorOption("Phone", PhoneAuthenticatorID, "sms"),
			},
		},
		m.stateHandleField()))
	state["authenticatorEnrollments"] = map[string]interface{}{
		"type": "array",
		"value": []interface{}{
			m.emailEnrollment(),
			map[string]interface{}{
				"id": "mbl-1", "key": "phone_number", "type": "phone", "displayName": "Phone",
				"profile": map[string]string{"phoneNumber": "+1 XXX-XXX-0100"},
				"methods": []map[string]string{{"type": "sms"}},
			},
		},
	}
	return state
}

func (m *MockIDXServer) challengeState(name, channel string) map[string]interface{} {
	state := m.envelope(remediation(name, m.URL()+"/idp/idx/challenge/answer",
		map[string]interface{}{"name": "code", "label": "Enter code", "required": true},
		m.stateHandleField()))
	if channel == "email" {
		state["currentAuthenticatorEnrollment"] = map[string]interface{}{
			"type":  "object",
			"value": m.emailEnrollment(),
		}
	}
	return state
}

func (m *MockIDXServer) emailEnrollment() map[string]interface{} {
	return map[string]interface{}{
		"id": "eae-1", "key": "okta_email", "type": "email", "displayName": "Email",
		"profile": map[string]string{"email": m.email},
		"methods": []map[string]string{{"type": "email"}},
	}
}

func (m *MockIDXServer) stateHandleField() map[string]interface{} {
	return map[string]interface{}{
		"name": "stateHandle", "required": true, "value": m.stateHandle, "visible": false, "mutable": false,
	}
}

func remediation(name, href string, fields ...interface{}) map[string]interface{} {
	return map[string]interface{}{
		"rel":     []string{"create-form"},
		"name":    name,
		"href":    href,
		"method":  "POST",
		"accepts": "application/json; okta-version=1.0.0",
		"value":   fields,
	}
}

func authenticatorOption(label, id, methodType string) map[string]interface{} {
	return map[string]interface{}{
		"label": label,
		"value": map[string]interface{}{
			"form": map[string]interface{}{
				"value": []interface{}{
					map[string]interface{}{"name": "id", "required": true, "value": id, "mutable": false},
					map[string]interface{}{"name": "methodType", "required": false, "value": methodType},
				},
			},
		},
	}
}

func field(name string, required bool, value interface{}) map[string]interface{} {
	f := map[string]interface{}{"name": name, "required": required}
	if value != nil {
		f["value"] = value
	}
	return f
}

func idxError(message, key string) map[string]interface{} {
	return map[string]interface{}{
		"version": "1.0.0",
		"messages": map[string]interface{}{
			"type": "array",
			"value": []interface{}{
				map[string]interface{}{"message": message, "i18n": map[string]string{"key": key}, "class": "ERROR"},
			},
		},
	}
}

func oauthError(code, description string) map[string]string {
	return map[string]string{"error": code, "error_description": description}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Printf("mock server failed to write response: %v\n", err)
	}
}

// FormValue reads a value of an url-encoded body. Mostly useful for assertions on recorded requests.
func FormValue(body []byte, key string) string {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	return values.Get(key)
}
