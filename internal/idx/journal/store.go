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
	"fmt"
	"time"

	"github.com/asgardeo/idxflow/internal/system/database"
	dbmodel "github.com/asgardeo/idxflow/internal/system/database/model"
	"github.com/asgardeo/idxflow/internal/system/log"
)

// timestampLayout keeps a fixed fraction width so that CREATED_AT sorts chronologically as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// QueryCreateEventTable creates the journal table.
	QueryCreateEventTable = dbmodel.DBQuery{
		ID: "JRQ-00001",
		Query: "CREATE TABLE IF NOT EXISTS FLOW_EVENT (" +
			"EVENT_ID VARCHAR(36) PRIMARY KEY, " +
			"FLOW_ID VARCHAR(36) NOT NULL, " +
			"EVENT_TYPE VARCHAR(32) NOT NULL, " +
			"STEP VARCHAR(128), " +
			"OPTION_NAME VARCHAR(128), " +
			"SUCCESS BOOLEAN NOT NULL, " +
			"ERROR_KIND VARCHAR(32), " +
			"ERROR_CODE VARCHAR(16), " +
			"CREATED_AT VARCHAR(40) NOT NULL)",
	}
	// QueryInsertEvent inserts one event.
	QueryInsertEvent = dbmodel.DBQuery{
		ID: "JRQ-00002",
		Query: "INSERT INTO FLOW_EVENT (EVENT_ID, FLOW_ID, EVENT_TYPE, STEP, OPTION_NAME, SUCCESS, " +
			"ERROR_KIND, ERROR_CODE, CREATED_AT) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		SQLiteQuery: "INSERT INTO FLOW_EVENT (EVENT_ID, FLOW_ID, EVENT_TYPE, STEP, OPTION_NAME, SUCCESS, " +
			"ERROR_KIND, ERROR_CODE, CREATED_AT) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
	}
	// QueryGetFlowEvents lists the events of a flow in insertion order.
	QueryGetFlowEvents = dbmodel.DBQuery{
		ID: "JRQ-00003",
		Query: "SELECT EVENT_ID, FLOW_ID, EVENT_TYPE, STEP, OPTION_NAME, SUCCESS, ERROR_KIND, ERROR_CODE, " +
			"CREATED_AT FROM FLOW_EVENT WHERE FLOW_ID = $1 ORDER BY CREATED_AT",
		SQLiteQuery: "SELECT EVENT_ID, FLOW_ID, EVENT_TYPE, STEP, OPTION_NAME, SUCCESS, ERROR_KIND, ERROR_CODE, " +
			"CREATED_AT FROM FLOW_EVENT WHERE FLOW_ID = ? ORDER BY CREATED_AT",
	}
)

// SQLSink persists events through a database client.
type SQLSink struct {
	client database.DBClientInterface
	logger *log.Logger
}

// NewSQLSink creates a sink writing to the given database client.
func NewSQLSink(client database.DBClientInterface) *SQLSink {
	return &SQLSink{
		client: client,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, "FlowJournalStore")),
	}
}

// CreateSchema creates the journal table when it does not exist.
func (s *SQLSink) CreateSchema(ctx context.Context) error {
	if _, err := s.client.Execute(ctx, QueryCreateEventTable); err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

// Emit inserts the event. Failures are logged; the journal never fails a flow.
func (s *SQLSink) Emit(ctx context.Context, event Event) {
	_, err := s.client.Execute(ctx, QueryInsertEvent,
		event.ID, event.FlowID, string(event.Type), event.Step, event.Option, event.Success,
		event.ErrorKind, event.ErrorCode, event.Timestamp.UTC().Format(timestampLayout))
	if err != nil {
		s.logger.Error("Failed to persist flow event", log.String("eventID", event.ID),
			log.String(log.LoggerKeyFlowID, event.FlowID), log.Error(err))
	}
}

// FlowEvents returns the recorded events of a flow.
func (s *SQLSink) FlowEvents(ctx context.Context, flowID string) ([]Event, error) {
	rows, err := s.client.Query(ctx, QueryGetFlowEvents, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		event, err := buildEventFromResultRow(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Close closes the underlying database client.
func (s *SQLSink) Close() error {
	return s.client.Close()
}

func buildEventFromResultRow(row map[string]interface{}) (Event, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, stringColumn(row["created_at"]))
	if err != nil {
		return Event{}, fmt.Errorf("failed to parse event timestamp: %w", err)
	}

	var success bool
	switch v := row["success"].(type) {
	case bool:
		success = v
	case int64:
		success = v != 0
	}

	return Event{
		ID:        stringColumn(row["event_id"]),
		FlowID:    stringColumn(row["flow_id"]),
		Type:      EventType(stringColumn(row["event_type"])),
		Step:      stringColumn(row["step"]),
		Option:    stringColumn(row["option_name"]),
		Success:   success,
		ErrorKind: stringColumn(row["error_kind"]),
		ErrorCode: stringColumn(row["error_code"]),
		Timestamp: createdAt,
	}, nil
}

// stringColumn reads a text column, which drivers return as string or []byte.
func stringColumn(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return ""
}
