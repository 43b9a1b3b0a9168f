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

// Package engine drives IDX authentication flows. A Flow holds the current session state of one
// interaction and only lets through transitions the identity provider most recently advertised.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/asgardeo/idxflow/internal/idx/executor"
	"github.com/asgardeo/idxflow/internal/idx/journal"
	"github.com/asgardeo/idxflow/internal/idx/model"
	"github.com/asgardeo/idxflow/internal/system/log"
)

const loggerComponentName = "FlowEngine"

// Config holds the engine settings.
type Config struct {
	// MaxSessionAge bounds the lifetime of a flow measured from its start. Zero disables the local bound;
	// the provider declared expiry still applies.
	MaxSessionAge time.Duration
	// Journal receives flow events. Nil disables the journal.
	Journal journal.Sink
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// EngineInterface starts authentication flows.
type EngineInterface interface {
	Start(ctx context.Context, params executor.InteractParams) (*Flow, error)
}

// Engine starts flows against one identity provider. It is safe for concurrent use.
type Engine struct {
	executor      executor.ExecutorInterface
	journal       journal.Sink
	maxSessionAge time.Duration
	now           func() time.Time
	logger        *log.Logger
}

// New creates an engine on top of the given executor.
func New(exec executor.ExecutorInterface, cfg Config) *Engine {
	e := &Engine{
		executor:      exec,
		journal:       cfg.Journal,
		maxSessionAge: cfg.MaxSessionAge,
		now:           cfg.Now,
		logger:        log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
	if e.journal == nil {
		e.journal = journal.NoOpSink{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Start begins an interaction and introspects it. The returned flow holds the first session state.
func (e *Engine) Start(ctx context.Context, params executor.InteractParams) (*Flow, error) {
	flowID := uuid.NewString()
	logger := e.logger.With(log.String(log.LoggerKeyFlowID, flowID))
	startedAt := e.now()

	state, err := e.begin(ctx, params)
	if err != nil {
		logger.Debug("Failed to start flow", log.Error(err))
		e.journal.Emit(ctx, journal.NewEvent(flowID, journal.EventFlowStartFailed, e.now()).WithError(err))
		return nil, err
	}

	flow := &Flow{
		id:        flowID,
		engine:    e,
		startedAt: startedAt,
		logger:    logger,
	}
	flow.state.Store(state)
	logger.Debug("Flow started", log.Any("options", state.OptionNames()))
	flow.emit(ctx, journal.EventFlowStarted, state.Step(), "", nil)
	flow.emitTerminal(ctx, state)
	return flow, nil
}

func (e *Engine) begin(ctx context.Context, params executor.InteractParams) (*model.SessionState, error) {
	interaction, err := e.executor.Interact(ctx, params)
	if err != nil {
		return nil, err
	}
	return e.executor.Introspect(ctx, interaction)
}
