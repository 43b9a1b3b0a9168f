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

package journal

import (
	"context"

	"github.com/asgardeo/idxflow/internal/system/log"
)

// Sink receives journal events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, Event) {}

// LogSink writes events to the application log.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a sink that writes to the given logger, or to the application logger when nil.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &LogSink{logger: logger.With(log.String(log.LoggerKeyComponentName, "FlowJournal"))}
}

// Emit logs the event at info level, or warn level for failures.
func (s *LogSink) Emit(_ context.Context, event Event) {
	fields := []log.Field{
		log.String("eventID", event.ID),
		log.String(log.LoggerKeyFlowID, event.FlowID),
		log.String("eventType", string(event.Type)),
		log.String(log.LoggerKeyStep, event.Step),
		log.String("option", event.Option),
		log.Bool("success", event.Success),
	}
	if event.Success {
		s.logger.Info("Flow event", fields...)
		return
	}
	fields = append(fields, log.String("errorKind", event.ErrorKind), log.String("errorCode", event.ErrorCode))
	s.logger.Warn("Flow event", fields...)
}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Emit forwards the event, giving up when ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the channel.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}
