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

// Package httpmock provides a mock implementation of the request executor for testing.
package httpmock

import (
	"context"
	"sync"

	syshttp "github.com/asgardeo/idxflow/internal/system/http"
)

// MockExecutor is a mock implementation of the ExecutorInterface.
type MockExecutor struct {
	// MockExecuteRequest defines the behavior for the ExecuteRequest method.
	MockExecuteRequest func(ctx context.Context, req *syshttp.Request) (*syshttp.Response, error)

	mutex sync.Mutex
	// ExecuteRequestCalls tracks the requests passed to ExecuteRequest.
	ExecuteRequestCalls []*syshttp.Request
}

// ExecuteRequest mocks the ExecuteRequest method of the ExecutorInterface.
func (m *MockExecutor) ExecuteRequest(ctx context.Context, req *syshttp.Request) (*syshttp.Response, error) {
	m.mutex.Lock()
	m.ExecuteRequestCalls = append(m.ExecuteRequestCalls, req)
	m.mutex.Unlock()

	if m.MockExecuteRequest != nil {
		return m.MockExecuteRequest(ctx, req)
	}
	return &syshttp.Response{Status: 200, Body: []byte("{}")}, nil
}

// CallCount returns the number of ExecuteRequest calls made so far.
func (m *MockExecutor) CallCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.ExecuteRequestCalls)
}

// LastRequest returns the most recent request, or nil when none was made.
func (m *MockExecutor) LastRequest() *syshttp.Request {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.ExecuteRequestCalls) == 0 {
		return nil
	}
	return m.ExecuteRequestCalls[len(m.ExecuteRequestCalls)-1]
}

// Respond returns a MockExecuteRequest function that always answers with the given status and body.
func Respond(status int, body string) func(context.Context, *syshttp.Request) (*syshttp.Response, error) {
	return func(context.Context, *syshttp.Request) (*syshttp.Response, error) {
		return &syshttp.Response{Status: status, Body: []byte(body)}, nil
	}
}

// Sequence returns a MockExecuteRequest function that answers with the given responses in order and
// repeats the last one once exhausted. An entry with a non-nil Err is returned as a transport error.
func Sequence(steps ...Step) func(context.Context, *syshttp.Request) (*syshttp.Response, error) {
	var mutex sync.Mutex
	index := 0
	return func(context.Context, *syshttp.Request) (*syshttp.Response, error) {
		mutex.Lock()
		defer mutex.Unlock()
		step := steps[index]
		if index < len(steps)-1 {
			index++
		}
		if step.Err != nil {
			return nil, step.Err
		}
		return &syshttp.Response{Status: step.Status, Body: []byte(step.Body)}, nil
	}
}

// Step is one scripted response of Sequence.
type Step struct {
	Status int
	Body   string
	Err    error
}
