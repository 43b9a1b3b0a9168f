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

// Package oob confirms out-of-band possession factors: it manages throwaway inbox profiles on an
// A18N style side channel and polls them until a delivered email or SMS shows up.
package oob

import "fmt"

// Channel is a delivery channel of a side-channel profile.
type Channel string

const (
	// ChannelEmail is the email inbox of a profile.
	ChannelEmail Channel = "email"
	// ChannelSMS is the SMS inbox of a profile.
	ChannelSMS Channel = "sms"
)

// ParseChannel maps a channel or authenticator method name to a Channel.
func ParseChannel(name string) (Channel, error) {
	switch name {
	case "email":
		return ChannelEmail, nil
	case "sms", "phone":
		return ChannelSMS, nil
	}
	return "", fmt.Errorf("unsupported out-of-band channel %q", name)
}

// Profile is a throwaway side-channel identity with an email address and a phone number.
type Profile struct {
	ID           string `json:"profileId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	PhoneNumber  string `json:"phoneNumber"`
	// URL is the retrieval endpoint of the profile.
	URL string `json:"url"`
}

// Address returns the address of the profile on the given channel.
func (p *Profile) Address(channel Channel) string {
	if channel == ChannelSMS {
		return p.PhoneNumber
	}
	return p.EmailAddress
}
