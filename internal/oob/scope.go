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

package oob

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/asgardeo/idxflow/internal/system/log"
)

// cleanupTimeout bounds the profile deletion that runs after fn returns.
const cleanupTimeout = 10 * time.Second

// WithProfile creates a profile, runs fn with it and deletes the profile on every exit path, including
// a panic in fn. Deletion runs even when ctx is already cancelled. A deletion failure is combined
// with the error of fn.
func WithProfile(ctx context.Context, client ClientInterface, displayName string,
	fn func(ctx context.Context, profile *Profile) error) (err error) {
	profile, err := client.CreateProfile(ctx, displayName)
	if err != nil {
		return err
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if deleteErr := client.DeleteProfile(cleanupCtx, profile); deleteErr != nil {
			log.GetLogger().Warn("Failed to delete side-channel profile",
				log.String(log.LoggerKeyProfileID, profile.ID), log.Error(deleteErr))
			err = multierr.Append(err, deleteErr)
		}
	}()

	return fn(ctx, profile)
}
