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

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asgardeo/idxflow/internal/idx/journal"
	"github.com/asgardeo/idxflow/internal/idx/model"
	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
	"github.com/asgardeo/idxflow/internal/system/log"
)

// CancelledReason is the failure reason of a cancelled flow.
const CancelledReason = "cancelled"

// Flow is one authentication flow. Submissions are serialized; a failed submission leaves the current
// state unchanged. Reads of the current state never wait for an in-flight submission.
type Flow struct {
	id     string
	engine *Engine
	// mutex serializes Submit and Cancel.
	mutex     sync.Mutex
	state     atomic.Pointer[model.SessionState]
	startedAt time.Time
	logger    *log.Logger
}

// ID returns the local flow id.
func (f *Flow) ID() string {
	return f.id
}

// StartedAt returns the local time the flow was started.
func (f *Flow) StartedAt() time.Time {
	return f.startedAt
}

// State returns the current session state.
func (f *Flow) State() *model.SessionState {
	return f.state.Load()
}

// AvailableOptions returns a copy of the remediation options of the current state.
func (f *Flow) AvailableOptions() []model.RemediationOption {
	return f.State().AvailableOptions()
}

// Submit performs the named remediation with the given inputs. The checks run in order: terminal
// session, expiry, option availability, then input validation. Only then is a request sent.
func (f *Flow) Submit(ctx context.Context, optionName string, inputs model.Inputs) (*model.SessionState, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	current := f.state.Load()
	option, err := f.checkTransition(current, optionName)
	if err == nil {
		err = option.Validate(inputs)
	}
	if err != nil {
		f.logger.Debug("Remediation rejected", log.String(log.LoggerKeyStep, optionName), log.Error(err))
		f.emit(ctx, journal.EventTransitionFailed, current.Step(), optionName, err)
		return nil, err
	}

	next, err := f.engine.executor.Execute(ctx, current, optionName, inputs)
	if err != nil {
		f.logger.Debug("Remediation failed", log.String(log.LoggerKeyStep, optionName), log.Error(err))
		f.emit(ctx, journal.EventTransitionFailed, current.Step(), optionName, err)
		return nil, err
	}

	f.state.Store(next)
	f.logger.Debug("Remediation completed", log.String(log.LoggerKeyStep, optionName),
		log.Any("options", next.OptionNames()), log.Bool("terminal", next.IsTerminal()))
	f.emit(ctx, journal.EventTransitionSucceeded, next.Step(), optionName, nil)
	f.emitTerminal(ctx, next)
	return next, nil
}

// Cancel abandons the flow through the provider's cancel remediation. The flow becomes terminal with a
// failure outcome. An expired flow is cancelled locally without contacting the provider.
func (f *Flow) Cancel(ctx context.Context) (*model.SessionState, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	current := f.state.Load()
	if current.IsTerminal() {
		return nil, flowerror.NewTerminalSessionError("cancel")
	}
	cancel, ok := current.CancelOption()
	if !ok {
		return nil, flowerror.NewInvalidTransitionError("cancel", current.OptionNames())
	}

	if f.expiryError(current) == nil {
		if _, err := f.engine.executor.Execute(ctx, current, cancel.Name(), nil); err != nil {
			f.emit(ctx, journal.EventTransitionFailed, current.Step(), cancel.Name(), err)
			return nil, err
		}
	}

	cancelled := current.WithStep(cancel.Name()).WithOutcome(model.FailureOutcome(CancelledReason))
	f.state.Store(cancelled)
	f.logger.Debug("Flow cancelled")
	f.emit(ctx, journal.EventFlowCancelled, cancelled.Step(), cancel.Name(), nil)
	return cancelled, nil
}

func (f *Flow) checkTransition(state *model.SessionState, optionName string) (model.RemediationOption, error) {
	if state.IsTerminal() {
		return model.RemediationOption{}, flowerror.NewTerminalSessionError(optionName)
	}
	if err := f.expiryError(state); err != nil {
		return model.RemediationOption{}, err
	}
	option, ok := state.Option(optionName)
	if !ok {
		return model.RemediationOption{}, flowerror.NewInvalidTransitionError(optionName, state.OptionNames())
	}
	return option, nil
}

func (f *Flow) expiryError(state *model.SessionState) error {
	now := f.engine.now()
	if state.IsExpired(now) {
		return flowerror.NewSessionExpiredError("the session expired at " + state.ExpiresAt().Format(time.RFC3339))
	}
	if maxAge := f.engine.maxSessionAge; maxAge > 0 && now.Sub(f.startedAt) >= maxAge {
		return flowerror.NewSessionExpiredError("the session exceeded its maximum age of " + maxAge.String())
	}
	return nil
}

func (f *Flow) emitTerminal(ctx context.Context, state *model.SessionState) {
	switch state.Outcome().Kind {
	case model.OutcomeSuccess:
		f.emit(ctx, journal.EventFlowSucceeded, state.Step(), "", nil)
	case model.OutcomeFailure:
		f.emit(ctx, journal.EventFlowFailed, state.Step(), "", nil)
	}
}

func (f *Flow) emit(ctx context.Context, eventType journal.EventType, step, option string, err error) {
	event := journal.NewEvent(f.id, eventType, f.engine.now()).WithError(err)
	event.Step = step
	event.Option = option
	if eventType == journal.EventFlowFailed {
		event.Success = false
	}
	f.engine.journal.Emit(ctx, event)
}
