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

import "time"

// Backoff is a capped exponential backoff with multiplier 2.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Interval returns the wait before the attempt following the given number of completed attempts.
func (b Backoff) Interval(completed int) time.Duration {
	if completed < 1 {
		completed = 1
	}
	interval := b.Initial
	for i := 1; i < completed; i++ {
		interval *= 2
		if b.Max > 0 && interval >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && interval > b.Max {
		return b.Max
	}
	return interval
}
