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
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/asgardeo/idxflow/internal/system/config"
	"github.com/asgardeo/idxflow/internal/system/database"
	dbmodel "github.com/asgardeo/idxflow/internal/system/database/model"
	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
	"github.com/asgardeo/idxflow/internal/system/log"
)

var eventTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestNewEventWithError(t *testing.T) {
	event := NewEvent("flow-1", EventTransitionFailed, eventTime)
	assert.NotEmpty(t, event.ID)
	assert.True(t, event.Success)

	failed := event.WithError(flowerror.NewMissingFieldsError("identify", []string{"identifier"}))
	assert.False(t, failed.Success)
	assert.Equal(t, "validation", failed.ErrorKind)
	assert.Equal(t, flowerror.CodeMissingRequiredFields, failed.ErrorCode)
	assert.True(t, event.Success, "original event must not change")

	other := event.WithError(errors.New("boom"))
	assert.Equal(t, "internal", other.ErrorKind)
	assert.Empty(t, other.ErrorCode)

	assert.Equal(t, event, event.WithError(nil))
}

func TestDispatcherDeliversAndFlushesOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(DispatcherConfig{BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), NewEvent("flow-1", EventTransitionSucceeded, eventTime))
	}
	d.Close()

	assert.EqualValues(t, 10, sink.count.Load())
	d.Emit(context.Background(), NewEvent("flow-1", EventFlowSucceeded, eventTime))
	assert.EqualValues(t, 10, sink.count.Load(), "events after close are ignored")
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(DispatcherConfig{BufferSize: 1, DropIfFull: true}, sink)

	// The first event may be taken by the worker, which then blocks on the gate; the buffer holds one more.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), NewEvent("flow-1", EventTransitionSucceeded, eventTime))
	}
	assert.GreaterOrEqual(t, d.Dropped(), uint64(3))

	close(sink.gate)
	d.Close()
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(DispatcherConfig{BufferSize: 1}, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		d.Emit(ctx, NewEvent("flow-1", EventTransitionSucceeded, eventTime))
	}
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	assert.Zero(t, d.Dropped())

	close(sink.gate)
	d.Close()
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Emit(context.Background(), NewEvent("flow-1", EventFlowStarted, eventTime))
		d.Close()
	})
	assert.Zero(t, d.Dropped())
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(log.NewLogger(zap.New(core)))

	sink.Emit(context.Background(), NewEvent("flow-1", EventFlowStarted, eventTime))
	failed := NewEvent("flow-1", EventTransitionFailed, eventTime).
		WithError(flowerror.NewTransportError("connection refused", nil))
	failed.Option = "identify"
	sink.Emit(context.Background(), failed)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "flow-1", entries[0].ContextMap()[log.LoggerKeyFlowID])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, flowerror.CodeTransportFailure, entries[1].ContextMap()["errorCode"])
	assert.Equal(t, "FlowJournal", entries[1].ContextMap()[log.LoggerKeyComponentName])
}

type SQLSinkTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	sink *SQLSink
}

func TestSQLSinkSuite(t *testing.T) {
	suite.Run(t, new(SQLSinkTestSuite))
}

func (suite *SQLSinkTestSuite) SetupTest() {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	suite.Require().NoError(err)
	suite.mock = mock
	suite.sink = NewSQLSink(database.NewDBClient(dbmodel.NewDB(db), dbmodel.DBTypePostgres))
}

func (suite *SQLSinkTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *SQLSinkTestSuite) TestCreateSchema() {
	suite.mock.ExpectExec(QueryCreateEventTable.Query).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(suite.T(), suite.sink.CreateSchema(context.Background()))
}

func (suite *SQLSinkTestSuite) TestCreateSchemaError() {
	suite.mock.ExpectExec(QueryCreateEventTable.Query).WillReturnError(errors.New("permission denied"))
	err := suite.sink.CreateSchema(context.Background())
	assert.EqualError(suite.T(), err, "failed to create journal table: permission denied")
}

func (suite *SQLSinkTestSuite) TestEmitInsertsEvent() {
	event := NewEvent("flow-1", EventTransitionFailed, eventTime).
		WithError(flowerror.NewSessionExpiredError("session expired"))
	event.Step = "challenge-email"
	event.Option = "challenge-email"

	suite.mock.ExpectExec(QueryInsertEvent.Query).
		WithArgs(event.ID, "flow-1", "transition_failed", "challenge-email", "challenge-email", false,
			"session_expired", flowerror.CodeSessionExpired, "2025-03-14T09:26:53.000000000Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	suite.sink.Emit(context.Background(), event)
}

func (suite *SQLSinkTestSuite) TestEmitFailureIsSwallowed() {
	suite.mock.ExpectExec(QueryInsertEvent.Query).WillReturnError(errors.New("connection reset"))
	assert.NotPanics(suite.T(), func() {
		suite.sink.Emit(context.Background(), NewEvent("flow-1", EventFlowStarted, eventTime))
	})
}

func (suite *SQLSinkTestSuite) TestFlowEvents() {
	rows := sqlmock.NewRows([]string{"EVENT_ID", "FLOW_ID", "EVENT_TYPE", "STEP", "OPTION_NAME", "SUCCESS",
		"ERROR_KIND", "ERROR_CODE", "CREATED_AT"}).
		AddRow("e-1", "flow-1", "flow_started", "introspect", "", true, "", "", "2025-03-14T09:26:53Z").
		AddRow("e-2", "flow-1", "transition_failed", "introspect", "identify", false, "validation",
			flowerror.CodeMissingRequiredFields, []byte("2025-03-14T09:26:54Z"))
	suite.mock.ExpectQuery(QueryGetFlowEvents.Query).WithArgs("flow-1").WillReturnRows(rows)

	events, err := suite.sink.FlowEvents(context.Background(), "flow-1")

	suite.Require().NoError(err)
	suite.Require().Len(events, 2)
	assert.Equal(suite.T(), EventFlowStarted, events[0].Type)
	assert.True(suite.T(), events[0].Success)
	assert.Equal(suite.T(), "identify", events[1].Option)
	assert.False(suite.T(), events[1].Success)
	assert.Equal(suite.T(), eventTime.Add(time.Second), events[1].Timestamp)
}

func TestSQLSinkWithSQLite(t *testing.T) {
	ctx := context.Background()
	client, err := database.Open(ctx, dbmodel.DBTypeSQLite, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	sink := NewSQLSink(client)
	defer func() {
		assert.NoError(t, sink.Close())
	}()
	require.NoError(t, sink.CreateSchema(ctx))

	started := NewEvent("flow-1", EventFlowStarted, eventTime)
	started.Step = "introspect"
	failed := NewEvent("flow-1", EventTransitionFailed, eventTime.Add(time.Second)).
		WithError(flowerror.NewInvalidTransitionError("skip", []string{"identify"}))
	failed.Option = "skip"
	sink.Emit(ctx, started)
	sink.Emit(ctx, failed)
	sink.Emit(ctx, NewEvent("flow-2", EventFlowStarted, eventTime))

	events, err := sink.FlowEvents(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, started.ID, events[0].ID)
	assert.True(t, events[0].Success)
	assert.Equal(t, "introspect", events[0].Step)
	assert.False(t, events[1].Success)
	assert.Equal(t, flowerror.CodeOptionNotAvailable, events[1].ErrorCode)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	d, closeFn, err := Open(ctx, config.JournalConfig{})
	assert.NoError(t, err)
	assert.Nil(t, d)
	closeFn()

	d, closeFn, err = Open(ctx, config.JournalConfig{Enabled: true, Driver: DriverLog, BufferSize: 4})
	require.NoError(t, err)
	assert.NotNil(t, d)
	closeFn()

	d, closeFn, err = Open(ctx, config.JournalConfig{Enabled: true, Driver: dbmodel.DBTypeSQLite,
		DSN: filepath.Join(t.TempDir(), "journal.db"), BufferSize: 4})
	require.NoError(t, err)
	d.Emit(ctx, NewEvent("flow-1", EventFlowStarted, eventTime))
	closeFn()

	_, _, err = Open(ctx, config.JournalConfig{Enabled: true, Driver: "mongodb"})
	assert.EqualError(t, err, "unsupported journal driver: mongodb")
}
