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

package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSet is the token endpoint response of a completed flow.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
	ReceivedAt   time.Time
}

// IDTokenClaims are the claims of an id_token read without signature verification.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	AuthTime          int64  `json:"auth_time,omitempty"`
}

// ExpiresAt returns the access token expiry derived from the receive time.
func (t *TokenSet) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.ReceivedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IDTokenClaims parses the id_token claims. The signature is not verified; callers that rely on the
// claims for authorization decisions must validate the token against the provider keys.
func (t *TokenSet) IDTokenClaims() (*IDTokenClaims, error) {
	if t.IDToken == "" {
		return nil, errNoIDToken
	}
	claims := &IDTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.IDToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
