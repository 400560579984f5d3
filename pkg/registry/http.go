/*
 *     Copyright 2024 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/go-playground/validator/v10"

	"d7y.io/peerprobe/pkg/peer"
	"d7y.io/peerprobe/version"
)

const (
	// DefaultTimeout is the default timeout of the snapshot request.
	DefaultTimeout = 30 * time.Second

	// contentTypeJSON is the accepted snapshot media type.
	contentTypeJSON = "application/json"
)

// HTTPConfig is the configuration of the http source.
type HTTPConfig struct {
	// URL of the latest snapshot.
	URL string `validate:"required,url"`

	// NodesField is the snapshot field holding the peer map.
	NodesField string

	// Timeout of the snapshot request.
	Timeout time.Duration `validate:"gte=0"`

	// UserAgent sent with the snapshot request.
	UserAgent string
}

type httpSource struct {
	config     *HTTPConfig
	httpClient *http.Client
}

// HTTPOption is a functional option for configuring the http source.
type HTTPOption func(s *httpSource)

// WithHTTPClient sets the http client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *httpSource) {
		s.httpClient = client
	}
}

// NewHTTP returns a Source fetching the snapshot from a registry.
func NewHTTP(cfg *HTTPConfig, options ...HTTPOption) (Source, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}

	config := *cfg
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	if config.UserAgent == "" {
		config.UserAgent = fmt.Sprintf("peerprobe/%s", version.GitVersion)
	}

	s := &httpSource{
		config:     &config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Fetch gets the latest snapshot and returns its peers sorted by key.
func (s *httpSource) Fetch(ctx context.Context) ([]peer.Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	req.Header.Set(headers.Accept, contentTypeJSON)
	req.Header.Set(headers.UserAgent, s.config.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrRegistryUnavailable, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot: %v", ErrRegistryUnavailable, err)
	}

	return parseSnapshot(data, s.config.NodesField)
}
