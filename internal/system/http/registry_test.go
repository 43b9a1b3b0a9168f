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

package http

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	cfg ExecutorConfig
}

func (s *stubExecutor) ExecuteRequest(context.Context, *Request) (*Response, error) {
	return &Response{Status: 204}, nil
}

func TestNewExecutorDefault(t *testing.T) {
	executor, err := NewExecutor("", ExecutorConfig{})
	require.NoError(t, err)
	assert.IsType(t, &HTTPExecutor{}, executor)
}

func TestRegisterExecutorFactory(t *testing.T) {
	err := RegisterExecutorFactory("stub", func(cfg ExecutorConfig) (ExecutorInterface, error) {
		return &stubExecutor{cfg: cfg}, nil
	})
	require.NoError(t, err)

	executor, err := NewExecutor("stub", ExecutorConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	stub, ok := executor.(*stubExecutor)
	require.True(t, ok)
	assert.True(t, stub.cfg.InsecureSkipVerify)
	assert.Contains(t, RegisteredExecutors(), "stub")
	assert.Contains(t, RegisteredExecutors(), DefaultExecutorName)
}

func TestRegisterExecutorFactoryRejectsInvalid(t *testing.T) {
	assert.Error(t, RegisterExecutorFactory("", func(ExecutorConfig) (ExecutorInterface, error) { return nil, nil }))
	assert.Error(t, RegisterExecutorFactory("nil-factory", nil))
}

func TestNewExecutorUnknown(t *testing.T) {
	_, err := NewExecutor("does-not-exist", ExecutorConfig{})
	assert.ErrorContains(t, err, "does-not-exist")
}
