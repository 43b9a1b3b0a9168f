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

	"github.com/asgardeo/idxflow/internal/system/config"
	"github.com/asgardeo/idxflow/internal/system/database"
	dbmodel "github.com/asgardeo/idxflow/internal/system/database/model"
	"github.com/asgardeo/idxflow/internal/system/log"
)

// DriverLog selects the log sink.
const DriverLog = "log"

// Open builds the dispatcher described by the journal configuration. It returns nil when the journal
// is disabled. The returned close function stops the dispatcher and releases the sink.
func Open(ctx context.Context, cfg config.JournalConfig) (*Dispatcher, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	var sink Sink
	release := func() {}
	switch cfg.Driver {
	case "", DriverLog:
		sink = NewLogSink(nil)
	case dbmodel.DBTypePostgres, dbmodel.DBTypeSQLite:
		client, err := database.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		sqlSink := NewSQLSink(client)
		if err := sqlSink.CreateSchema(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		sink = sqlSink
		release = func() {
			if err := sqlSink.Close(); err != nil {
				log.GetLogger().Error("Failed to close journal database", log.Error(err))
			}
		}
	default:
		return nil, nil, fmt.Errorf("unsupported journal driver: %s", cfg.Driver)
	}

	dispatcher := NewDispatcher(DispatcherConfig{BufferSize: cfg.BufferSize, DropIfFull: cfg.DropIfFull}, sink)
	return dispatcher, func() {
		dispatcher.Close()
		release()
	}, nil
}
