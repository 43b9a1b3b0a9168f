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

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/idxflow/internal/oob"
	"github.com/asgardeo/idxflow/internal/system/config"
	"github.com/asgardeo/idxflow/internal/system/database"
	dbmodel "github.com/asgardeo/idxflow/internal/system/database/model"
	"github.com/asgardeo/idxflow/internal/system/log"
	"github.com/asgardeo/idxflow/tests/integration/testutils"
)

const (
	testClientID = "client-1"
	testUsername = "jane@example.com"
	testAPIKey   = "key-1"
)

var queryEventTypes = dbmodel.DBQuery{
	ID:    "FCT-00001",
	Query: "SELECT EVENT_TYPE FROM FLOW_EVENT ORDER BY CREATED_AT",
}

type SignInTestSuite struct {
	suite.Suite
	idp     *testutils.MockIDXServer
	inbox   *testutils.MockA18NServer
	cfg     *config.Config
	journal string
}

func TestSignInSuite(t *testing.T) {
	suite.Run(t, new(SignInTestSuite))
}

func (suite *SignInTestSuite) SetupTest() {
	suite.idp = testutils.NewMockIDXServer(testClientID, testUsername)
	suite.inbox = testutils.NewMockA18NServer(testAPIKey)
	suite.journal = filepath.Join(suite.T().TempDir(), "journal.db")

	cfg := config.Default()
	cfg.IdentityProvider.Issuer = suite.idp.Issuer()
	cfg.IdentityProvider.BaseURL = config.BaseURLFromIssuer(suite.idp.Issuer())
	cfg.IdentityProvider.ClientID = testClientID
	cfg.IdentityProvider.RedirectURI = "http://localhost:8080/login/callback"
	cfg.SideChannel.BaseURL = suite.inbox.URL()
	cfg.SideChannel.APIKey = testAPIKey
	cfg.SideChannel.RequestsPerSecond = 0
	cfg.Poller = config.PollerConfig{
		InitialInterval: config.Duration(10 * time.Millisecond),
		MaxInterval:     config.Duration(50 * time.Millisecond),
		AttemptTimeout:  config.Duration(time.Second),
		Timeout:         config.Duration(300 * time.Millisecond),
	}
	cfg.Journal = config.JournalConfig{
		Enabled:    true,
		Driver:     "sqlite",
		DSN:        suite.journal,
		BufferSize: 64,
		DropIfFull: true,
	}
	suite.cfg = cfg
}

func (suite *SignInTestSuite) TearDownTest() {
	suite.idp.Close()
	suite.inbox.Close()
}

func (suite *SignInTestSuite) eventTypes() []string {
	client, err := database.Open(context.Background(), dbmodel.DBTypeSQLite, suite.journal)
	suite.Require().NoError(err)
	defer func() {
		_ = client.Close()
	}()

	rows, err := client.Query(context.Background(), queryEventTypes)
	suite.Require().NoError(err)
	types := make([]string, 0, len(rows))
	for _, row := range rows {
		types = append(types, row["event_type"].(string))
	}
	return types
}

func (suite *SignInTestSuite) TestSuccessfulSignIn() {
	suite.idp.OnCodeIssued(func(channel, code string) {
		suite.inbox.DeliverToAll(channel, "Your verification code is "+code)
	})

	err := signIn(context.Background(), suite.cfg, oob.ChannelEmail, testUsername, log.GetLogger())
	suite.Require().NoError(err)

	types := suite.eventTypes()
	suite.Equal("flow_started", types[0])
	suite.Equal("flow_succeeded", types[len(types)-1])
	suite.Equal(0, suite.inbox.ActiveProfiles())
}

func (suite *SignInTestSuite) TestFailedSignInStillFlushesJournal() {
	err := signIn(context.Background(), suite.cfg, oob.ChannelEmail, testUsername, log.GetLogger())
	suite.Require().Error(err)

	types := suite.eventTypes()
	suite.Require().NotEmpty(types)
	suite.Equal("flow_started", types[0])
	suite.Equal("flow_cancelled", types[len(types)-1])
	suite.Equal(0, suite.inbox.ActiveProfiles())
}
