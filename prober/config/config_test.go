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

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"d7y.io/peerprobe/cmd/dependency/base"
	logger "d7y.io/peerprobe/internal/dflog"
	"d7y.io/peerprobe/pkg/wire"
)

var (
	mockMetricsConfig = MetricsConfig{
		Enable: true,
		Addr:   DefaultMetricsAddr,
	}
)

func TestConfig_Load(t *testing.T) {
	config := &Config{
		Options: base.Options{
			Console:   true,
			Verbose:   true,
			PProfPort: 8090,
		},
		WorkHome: "/tmp/peerprobe",
		Log: LogConfig{
			Dir: "/tmp/peerprobe/logs",
			LogRotateConfig: logger.LogRotateConfig{
				MaxSize:    512,
				MaxAge:     5,
				MaxBackups: 3,
				Compress:   true,
			},
		},
		Registry: RegistryConfig{
			URL:              "https://registry.example.com/api/v1/snapshots/latest/",
			File:             "snapshot.json",
			Peers:            []string{"192.0.2.1:8333", "[2001:db8::1]:8333"},
			NodesField:       "nodes",
			Timeout:          10 * time.Second,
			RetryAttempts:    5,
			RetryInitBackoff: time.Second,
			RetryMaxBackoff:  10 * time.Second,
			UserAgent:        "peerprobe-test",
		},
		Network: NetworkConfig{
			Name:            "testnet3",
			Magic:           "0b110907",
			Dial:            "tcp4",
			ProtocolVersion: 70016,
			UserAgent:       "/peerprobe-test:0.0.1/",
			Services:        1,
			StartHeight:     100,
			Relay:           false,
		},
		Probe: ProbeConfig{
			Workers:   50,
			Timeout:   2 * time.Second,
			Deadline:  time.Minute,
			Limit:     10,
			RateLimit: 100,
			RateBurst: 10,
			ShowBar:   true,
		},
		Report: ReportConfig{
			CSV: "timeline.csv",
		},
		Metrics: MetricsConfig{
			Enable: true,
			Addr:   ":8001",
		},
	}

	proberConfigYAML := &Config{}
	contentYAML, _ := os.ReadFile("./testdata/prober.yaml")
	if err := yaml.Unmarshal(contentYAML, &proberConfigYAML); err != nil {
		t.Fatal(err)
	}
	assert := assert.New(t)
	assert.EqualValues(config, proberConfigYAML)
	assert.NoError(proberConfigYAML.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		mock   func(cfg *Config)
		expect func(t *testing.T, err error)
	}{
		{
			name:   "valid config",
			config: New(),
			mock:   func(cfg *Config) {},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.NoError(err)
			},
		},
		{
			name:   "valid config with peers only",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Registry.URL = ""
				cfg.Registry.Peers = []string{"192.0.2.1:8333"}
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.NoError(err)
			},
		},
		{
			name:   "registry requires parameter url, file or peers",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Registry.URL = ""
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "registry requires parameter url, file or peers")
			},
		},
		{
			name:   "registry requires parameter timeout",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Registry.Timeout = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "registry requires parameter timeout")
			},
		},
		{
			name:   "registry requires parameter retryAttempts",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Registry.RetryAttempts = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "registry requires parameter retryAttempts")
			},
		},
		{
			name:   "registry requires parameter retryInitBackoff",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Registry.RetryInitBackoff = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "registry requires parameter retryInitBackoff")
			},
		},
		{
			name:   "registry requires parameter retryMaxBackoff",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Registry.RetryMaxBackoff = time.Millisecond
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "registry requires parameter retryMaxBackoff")
			},
		},
		{
			name:   "network requires a known parameter name",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Network.Name = "foo"
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "network requires a known parameter name or a valid magic")
			},
		},
		{
			name:   "network requires a valid magic",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Network.Magic = "foo"
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "network requires a known parameter name or a valid magic")
			},
		},
		{
			name:   "network requires parameter dial",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Network.Dial = "udp"
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "network requires parameter dial")
			},
		},
		{
			name:   "probe requires parameter workers",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Probe.Workers = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "probe requires parameter workers")
			},
		},
		{
			name:   "probe requires parameter timeout",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Probe.Timeout = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "probe requires parameter timeout")
			},
		},
		{
			name:   "probe requires parameter deadline",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Probe.Deadline = -time.Second
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "probe requires parameter deadline")
			},
		},
		{
			name:   "probe requires parameter limit",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Probe.Limit = -1
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "probe requires parameter limit")
			},
		},
		{
			name:   "probe requires parameter rateLimit",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Probe.RateLimit = -1
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "probe requires parameter rateLimit")
			},
		},
		{
			name:   "probe requires parameter rateBurst",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Probe.RateLimit = 10
				cfg.Probe.RateBurst = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "probe requires parameter rateBurst")
			},
		},
		{
			name:   "metrics requires parameter addr",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Metrics = mockMetricsConfig
				cfg.Metrics.Addr = ""
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "metrics requires parameter addr")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mock(tc.config)
			tc.expect(t, tc.config.Validate())
		})
	}
}

func TestNetworkConfig_Profile(t *testing.T) {
	tests := []struct {
		name   string
		config NetworkConfig
		expect func(t *testing.T, network wire.Network, err error)
	}{
		{
			name:   "default profile",
			config: New().Network,
			expect: func(t *testing.T, network wire.Network, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(wire.MainNet, network)
			},
		},
		{
			name: "profile with overrides",
			config: NetworkConfig{
				Name:            "regtest",
				ProtocolVersion: 70016,
				UserAgent:       "/foo:1.0/",
				Services:        8,
				StartHeight:     200,
			},
			expect: func(t *testing.T, network wire.Network, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal("regtest", network.Name)
				assert.Equal(wire.RegTest.Magic, network.Magic)
				assert.Equal(int32(70016), network.ProtocolVersion)
				assert.Equal("/foo:1.0/", network.UserAgent)
				assert.Equal(uint64(8), network.Services)
				assert.Equal(int32(200), network.StartHeight)
				assert.False(network.Relay)
			},
		},
		{
			name:   "custom magic",
			config: NetworkConfig{Magic: "0a0b0c0d", Relay: true},
			expect: func(t *testing.T, network wire.Network, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal("custom", network.Name)
				assert.Equal([4]byte{0x0a, 0x0b, 0x0c, 0x0d}, network.Magic)
				assert.Equal(wire.DefaultProtocolVersion, network.ProtocolVersion)
			},
		},
		{
			name:   "unknown name",
			config: NetworkConfig{Name: "foo"},
			expect: func(t *testing.T, network wire.Network, err error) {
				assert := assert.New(t)
				assert.EqualError(err, `unknown network "foo"`)
			},
		},
		{
			name:   "empty profile",
			config: NetworkConfig{},
			expect: func(t *testing.T, network wire.Network, err error) {
				assert := assert.New(t)
				assert.Error(err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			network, err := tc.config.Profile()
			tc.expect(t, network, err)
		})
	}
}
