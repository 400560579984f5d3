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
	"errors"
	"net/http"
	"testing"

	"github.com/go-http-utils/headers"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/suite"

	"d7y.io/peerprobe/pkg/peer"
)

var (
	normalRawURL    = "https://registry.example.com/api/v1/snapshots/latest/"
	errorRawURL     = "https://error.example.com/api/v1/snapshots/latest/"
	forbiddenRawURL = "https://forbidden.example.com/api/v1/snapshots/latest/"
	notfoundRawURL  = "https://notfound.example.com/api/v1/snapshots/latest/"
	malformedRawURL = "https://malformed.example.com/api/v1/snapshots/latest/"
)

var testSnapshot = `{"timestamp": 1700000000, "total_nodes": 2, "nodes": {"198.51.100.4:8333": [70016], "[2001:db8::2]:8333": [70015]}}`

func TestHTTPSourceTestSuite(t *testing.T) {
	suite.Run(t, new(HTTPSourceTestSuite))
}

type HTTPSourceTestSuite struct {
	suite.Suite
	httpClient *http.Client
}

func (suite *HTTPSourceTestSuite) SetupSuite() {
	suite.httpClient = &http.Client{}
	httpmock.ActivateNonDefault(suite.httpClient)
}

func (suite *HTTPSourceTestSuite) TearDownSuite() {
	httpmock.DeactivateAndReset()
}

func (suite *HTTPSourceTestSuite) SetupTest() {
	httpmock.Reset()
	httpmock.RegisterResponder(http.MethodGet, normalRawURL, func(request *http.Request) (*http.Response, error) {
		if request.Header.Get(headers.Accept) != contentTypeJSON || request.Header.Get(headers.UserAgent) != "peerprobe-test" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad request"), nil
		}

		return httpmock.NewStringResponse(http.StatusOK, testSnapshot), nil
	})
	httpmock.RegisterResponder(http.MethodGet, forbiddenRawURL, httpmock.NewStringResponder(http.StatusForbidden, "forbidden"))
	httpmock.RegisterResponder(http.MethodGet, notfoundRawURL, httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	httpmock.RegisterResponder(http.MethodGet, malformedRawURL, httpmock.NewStringResponder(http.StatusOK, "<html></html>"))
	httpmock.RegisterResponder(http.MethodGet, errorRawURL, httpmock.NewErrorResponder(errors.New("error")))
}

func (suite *HTTPSourceTestSuite) newSource(rawURL string) Source {
	s, err := NewHTTP(&HTTPConfig{
		URL:        rawURL,
		NodesField: DefaultNodesField,
		UserAgent:  "peerprobe-test",
	}, WithHTTPClient(suite.httpClient))
	suite.Require().NoError(err)
	return s
}

func (suite *HTTPSourceTestSuite) TestNewHTTP() {
	s, err := NewHTTP(&HTTPConfig{URL: normalRawURL})
	suite.NoError(err)
	suite.Equal(DefaultTimeout, s.(*httpSource).httpClient.Timeout)
	suite.Contains(s.(*httpSource).config.UserAgent, "peerprobe/")

	_, err = NewHTTP(&HTTPConfig{})
	suite.Error(err)

	_, err = NewHTTP(&HTTPConfig{URL: "registry"})
	suite.Error(err)
}

func (suite *HTTPSourceTestSuite) TestFetch() {
	addrs, err := suite.newSource(normalRawURL).Fetch(context.Background())
	suite.NoError(err)
	suite.Equal([]peer.Address{
		peer.New("198.51.100.4", 8333),
		peer.New("2001:db8::2", 8333),
	}, addrs)
	suite.Equal(1, httpmock.GetCallCountInfo()["GET "+normalRawURL])
}

func (suite *HTTPSourceTestSuite) TestFetchFailed() {
	for _, rawURL := range []string{forbiddenRawURL, notfoundRawURL, malformedRawURL, errorRawURL} {
		addrs, err := suite.newSource(rawURL).Fetch(context.Background())
		suite.Nil(addrs, rawURL)
		suite.True(errors.Is(err, ErrRegistryUnavailable), rawURL)
	}

	_, err := suite.newSource(notfoundRawURL).Fetch(context.Background())
	suite.Contains(err.Error(), "unexpected status 404")
}
