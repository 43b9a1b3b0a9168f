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

// Package cert loads the client TLS material used towards the identity provider.
package cert

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/asgardeo/idxflow/internal/system/config"
)

// GetTLSConfig builds a client TLS configuration from the configured CA bundle and client key pair.
// It returns nil when no TLS material is configured. Relative paths are resolved against baseDir.
func GetTLSConfig(cfg config.TLSConfig, baseDir string) (*tls.Config, error) {
	if cfg.CACertFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" {
		return nil, nil
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("cert_file and key_file must be configured together")
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CACertFile != "" {
		caFilePath := resolve(baseDir, cfg.CACertFile)
		pem, err := os.ReadFile(caFilePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.New("CA certificate file not found at " + caFilePath)
			}
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in " + caFilePath)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" {
		certFilePath := resolve(baseDir, cfg.CertFile)
		keyFilePath := resolve(baseDir, cfg.KeyFile)

		// Check if the certificate and key files exist.
		if _, err := os.Stat(certFilePath); os.IsNotExist(err) {
			return nil, errors.New("certificate file not found at " + certFilePath)
		}
		if _, err := os.Stat(keyFilePath); os.IsNotExist(err) {
			return nil, errors.New("key file not found at " + keyFilePath)
		}

		cert, err := tls.LoadX509KeyPair(certFilePath, keyFilePath)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func resolve(baseDir, file string) string {
	if filepath.IsAbs(file) || baseDir == "" {
		return file
	}
	return filepath.Join(baseDir, file)
}
