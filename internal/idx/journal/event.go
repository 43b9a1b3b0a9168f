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

// Package journal records flow lifecycle events for observability. Events never carry input values,
// codes or tokens, and flows never read them back.
package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
)

// EventType identifies a flow lifecycle event.
type EventType string

// Flow lifecycle events.
const (
	EventFlowStarted         EventType = "flow_started"
	EventFlowStartFailed     EventType = "flow_start_failed"
	EventTransitionSucceeded EventType = "transition_succeeded"
	EventTransitionFailed    EventType = "transition_failed"
	EventFlowSucceeded       EventType = "flow_succeeded"
	EventFlowFailed          EventType = "flow_failed"
	EventFlowCancelled       EventType = "flow_cancelled"
)

// Event is a single journal entry.
type Event struct {
	ID        string    `json:"id"`
	FlowID    string    `json:"flow_id"`
	Type      EventType `json:"type"`
	Step      string    `json:"step,omitempty"`
	Option    string    `json:"option,omitempty"`
	Success   bool      `json:"success"`
	ErrorKind string    `json:"error_kind,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(flowID string, eventType EventType, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		FlowID:    flowID,
		Type:      eventType,
		Success:   true,
		Timestamp: at.UTC(),
	}
}

// WithError marks the event as failed and records the error classification. Messages are not kept
// since provider messages may echo user input.
func (e Event) WithError(err error) Event {
	if err == nil {
		return e
	}
	e.Success = false
	e.ErrorKind = string(flowerror.KindOf(err))
	e.ErrorCode = flowerror.CodeOf(err)
	if e.ErrorKind == "" {
		e.ErrorKind = "internal"
	}
	return e
}
