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

package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"
)

// A18NProfile is a throwaway inbox served by MockA18NServer.
type A18NProfile struct {
	ProfileID    string `json:"profileId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	PhoneNumber  string `json:"phoneNumber"`
	URL          string `json:"url"`
}

// MockA18NServer provides an in-process A18N style inbox proxy: profiles with an email address and a
// phone number whose latest received message can be fetched.
type MockA18NServer struct {
	server   *httptest.Server
	apiKey   string
	mutex    sync.Mutex
	profiles map[string]*A18NProfile
	latest   map[string]map[string]string
	// failures holds scripted statuses returned by the next content fetches.
	failures   []int
	fetchCount int
	deleted    []string
	sequence   int
}

// NewMockA18NServer starts a mock inbox server that requires the given API key.
func NewMockA18NServer(apiKey string) *MockA18NServer {
	m := &MockA18NServer{
		apiKey:   apiKey,
		profiles: make(map[string]*A18NProfile),
		latest:   make(map[string]map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/profile", m.handleCreate)
	mux.HandleFunc("DELETE /v1/profile/{id}", m.handleDelete)
	mux.HandleFunc("GET /v1/profile/{id}/{channel}/latest/content", m.handleLatest)
	m.server = httptest.NewServer(m.authenticate(mux))
	return m
}

// URL returns the base URL of the server.
func (m *MockA18NServer) URL() string {
	return m.server.URL
}

// Close stops the server.
func (m *MockA18NServer) Close() {
	m.server.Close()
}

// Deliver stores content as the latest message of a profile channel ("email" or "sms").
func (m *MockA18NServer) Deliver(profileID, channel, content string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.latest[profileID] == nil {
		m.latest[profileID] = make(map[string]string)
	}
	m.latest[profileID][channel] = content
}

// DeliverToAll stores content as the latest message of every active profile.
func (m *MockA18NServer) DeliverToAll(channel, content string) {
	m.mutex.Lock()
	ids := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		ids = append(ids, id)
	}
	m.mutex.Unlock()
	for _, id := range ids {
		m.Deliver(id, channel, content)
	}
}

// FailNextFetches makes the next content fetches answer with the given statuses, in order.
func (m *MockA18NServer) FailNextFetches(statuses ...int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures = append(m.failures, statuses...)
}

// FetchCount returns the number of content fetches received.
func (m *MockA18NServer) FetchCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.fetchCount
}

// ActiveProfiles returns the number of profiles not yet deleted.
func (m *MockA18NServer) ActiveProfiles() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.profiles)
}

// DeletedProfiles returns the ids of the deleted profiles.
func (m *MockA18NServer) DeletedProfiles() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *MockA18NServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != m.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *MockA18NServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	m.mutex.Lock()
	m.sequence++
	id := uuid.NewString()
	profile := &A18NProfile{
		ProfileID:    id,
		DisplayName:  req.DisplayName,
		EmailAddress: id + "@a18n.help",
		PhoneNumber:  fmt.Sprintf("+1555%07d", m.sequence),
		URL:          m.server.URL + "/v1/profile/" + id,
	}
	m.profiles[id] = profile
	m.mutex.Unlock()

	writeJSON(w, http.StatusOK, profile)
}

func (m *MockA18NServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.profiles[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "profile not found"})
		return
	}
	delete(m.profiles, id)
	delete(m.latest, id)
	m.deleted = append(m.deleted, id)
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockA18NServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	id, channel := r.PathValue("id"), r.PathValue("channel")

	m.mutex.Lock()
	m.fetchCount++
	if len(m.failures) > 0 {
		status := m.failures[0]
		m.failures = m.failures[1:]
		m.mutex.Unlock()
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}
	_, exists := m.profiles[id]
	content := m.latest[id][channel]
	m.mutex.Unlock()

	if !exists || content == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no message"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}
