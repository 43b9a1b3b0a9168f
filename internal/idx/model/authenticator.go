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

// Authenticator types used by the engine and the out-of-band poller.
const (
	AuthenticatorTypeEmail    = "email"
	AuthenticatorTypePhone    = "phone"
	AuthenticatorTypeApp      = "app"
	AuthenticatorTypePassword = "password"
)

// MethodType is one way an authenticator can be used, such as "email", "sms" or "voice".
type MethodType struct {
	Type string `json:"type"`
}

// AuthenticatorEnrollment is an authenticator the user has enrolled.
type AuthenticatorEnrollment struct {
	ID          string
	Key         string
	Type        string
	DisplayName string

	profile map[string]string
	methods []MethodType
}

// NewAuthenticatorEnrollment creates an enrollment. The profile and methods are copied.
func NewAuthenticatorEnrollment(id, key, typ, displayName string, profile map[string]string,
	methods ...MethodType) AuthenticatorEnrollment {
	e := AuthenticatorEnrollment{
		ID:          id,
		Key:         key,
		Type:        typ,
		DisplayName: displayName,
		profile:     profile,
		methods:     methods,
	}
	return e.clone()
}

// Profile returns a copy of the channel metadata of the enrollment, for example the masked email.
func (e AuthenticatorEnrollment) Profile() map[string]string {
	out := make(map[string]string, len(e.profile))
	for k, v := range e.profile {
		out[k] = v
	}
	return out
}

// Methods returns a copy of the method types of the enrollment.
func (e AuthenticatorEnrollment) Methods() []MethodType {
	return append([]MethodType(nil), e.methods...)
}

// HasMethod reports whether the enrollment supports the given method type.
func (e AuthenticatorEnrollment) HasMethod(method string) bool {
	for _, m := range e.methods {
		if m.Type == method {
			return true
		}
	}
	return false
}

func (e AuthenticatorEnrollment) clone() AuthenticatorEnrollment {
	e.profile = e.Profile()
	e.methods = e.Methods()
	return e
}
