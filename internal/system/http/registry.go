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
	"fmt"
	"sort"
	"sync"
)

// DefaultExecutorName is the registry name of the net/http based executor.
const DefaultExecutorName = "default"

// ExecutorFactory constructs an executor from configuration.
type ExecutorFactory func(cfg ExecutorConfig) (ExecutorInterface, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ExecutorFactory{
		DefaultExecutorName: func(cfg ExecutorConfig) (ExecutorInterface, error) {
			return NewHTTPExecutor(cfg), nil
		},
	}
)

// RegisterExecutorFactory registers a named executor factory, replacing any previous registration.
func RegisterExecutorFactory(name string, factory ExecutorFactory) error {
	if name == "" {
		return fmt.Errorf("executor name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("executor factory for %q must not be nil", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
	return nil
}

// NewExecutor builds the executor registered under name. An empty name selects the default executor.
func NewExecutor(name string, cfg ExecutorConfig) (ExecutorInterface, error) {
	if name == "" {
		name = DefaultExecutorName
	}
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no executor registered under %q, available: %v", name, RegisteredExecutors())
	}
	return factory(cfg)
}

// RegisteredExecutors returns the sorted names of all registered executors.
func RegisteredExecutors() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
