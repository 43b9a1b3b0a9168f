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

// Package pkce provides PKCE (Proof Key for Code Exchange) helpers used when starting an interaction.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

// PKCE Code Challenge Methods.
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// verifierEntropyBytes yields a 43 character verifier once base64url encoded.
const verifierEntropyBytes = 32

// PKCE errors
var (
	ErrInvalidCodeVerifier    = errors.New("invalid code verifier")
	ErrInvalidChallengeMethod = errors.New("invalid code challenge method")
	ErrPKCEValidationFailed   = errors.New("PKCE validation failed")
)

// Pair is a code verifier and the challenge derived from it.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPair generates a random verifier and its S256 challenge.
func NewPair() (*Pair, error) {
	return newPair(rand.Reader)
}

func newPair(entropy io.Reader) (*Pair, error) {
	verifier, err := randomString(entropy, verifierEntropyBytes)
	if err != nil {
		return nil, err
	}
	challenge, err := GenerateCodeChallenge(verifier, CodeChallengeMethodS256)
	if err != nil {
		return nil, err
	}
	return &Pair{Verifier: verifier, Challenge: challenge, Method: CodeChallengeMethodS256}, nil
}

// GenerateState returns a random value for the OAuth state parameter.
func GenerateState() (string, error) {
	return randomString(rand.Reader, 16)
}

func randomString(entropy io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(entropy, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// isValidASCIIUnreserved validates that a character is in the unreserved set.
func isValidASCIIUnreserved(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// validateCodeVerifier validates the format of a code verifier according to RFC 7636.
func validateCodeVerifier(codeVerifier string) error {
	if len(codeVerifier) < 43 || len(codeVerifier) > 128 {
		return ErrInvalidCodeVerifier
	}
	for _, c := range codeVerifier {
		if !isValidASCIIUnreserved(c) {
			return ErrInvalidCodeVerifier
		}
	}
	return nil
}

// GenerateCodeChallenge generates a code challenge from a code verifier using the specified method.
func GenerateCodeChallenge(codeVerifier, method string) (string, error) {
	if err := validateCodeVerifier(codeVerifier); err != nil {
		return "", err
	}

	switch method {
	case CodeChallengeMethodPlain:
		return codeVerifier, nil
	case CodeChallengeMethodS256:
		hash := sha256.Sum256([]byte(codeVerifier))
		return base64.RawURLEncoding.EncodeToString(hash[:]), nil
	default:
		return "", ErrInvalidChallengeMethod
	}
}

// ValidatePKCE checks a code verifier against a code challenge. The mock identity provider in tests
// uses it to verify token requests.
func ValidatePKCE(codeChallenge, codeChallengeMethod, codeVerifier string) error {
	if codeChallengeMethod == "" {
		codeChallengeMethod = CodeChallengeMethodPlain
	}
	expected, err := GenerateCodeChallenge(codeVerifier, codeChallengeMethod)
	if err != nil {
		return err
	}
	if expected != codeChallenge {
		return ErrPKCEValidationFailed
	}
	return nil
}
