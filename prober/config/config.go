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
	"errors"
	"time"

	"d7y.io/peerprobe/cmd/dependency/base"
	logger "d7y.io/peerprobe/internal/dflog"
	"d7y.io/peerprobe/pkg/wire"
)

type Config struct {
	// Base options.
	base.Options `yaml:",inline" mapstructure:",squash"`

	// WorkHome is the root of the log and data directories.
	WorkHome string `yaml:"workHome" mapstructure:"workHome"`

	// Log configuration.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Registry configuration.
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`

	// Network configuration.
	Network NetworkConfig `yaml:"network" mapstructure:"network"`

	// Probe configuration.
	Probe ProbeConfig `yaml:"probe" mapstructure:"probe"`

	// Report configuration.
	Report ReportConfig `yaml:"report" mapstructure:"report"`

	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

type LogConfig struct {
	// Dir is the log directory, defaults to the logs directory of the work home.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Rotation policy of log files.
	logger.LogRotateConfig `yaml:",inline" mapstructure:",squash"`
}

type RegistryConfig struct {
	// URL of the latest registry snapshot.
	URL string `yaml:"url" mapstructure:"url"`

	// File is a snapshot saved on disk, it takes precedence over URL.
	File string `yaml:"file" mapstructure:"file"`

	// Peers are explicit addresses, they take precedence over File and URL.
	Peers []string `yaml:"peers" mapstructure:"peers"`

	// NodesField is the snapshot field holding the peer map,
	// empty means the top-level object.
	NodesField string `yaml:"nodesField" mapstructure:"nodesField"`

	// Timeout of one snapshot request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RetryAttempts is the number of snapshot requests before giving up.
	RetryAttempts int `yaml:"retryAttempts" mapstructure:"retryAttempts"`

	// RetryInitBackoff is the first wait between snapshot requests.
	RetryInitBackoff time.Duration `yaml:"retryInitBackoff" mapstructure:"retryInitBackoff"`

	// RetryMaxBackoff caps the wait between snapshot requests.
	RetryMaxBackoff time.Duration `yaml:"retryMaxBackoff" mapstructure:"retryMaxBackoff"`

	// UserAgent of snapshot requests.
	UserAgent string `yaml:"userAgent" mapstructure:"userAgent"`
}

type NetworkConfig struct {
	// Name of the network profile: mainnet, testnet3, regtest or signet.
	Name string `yaml:"name" mapstructure:"name"`

	// Magic overrides the frame magic of the profile, e.g. f9beb4d9.
	Magic string `yaml:"magic" mapstructure:"magic"`

	// Dial is the dial network: tcp, tcp4 or tcp6.
	Dial string `yaml:"dial" mapstructure:"dial"`

	// ProtocolVersion announced to peers, zero keeps the profile value.
	ProtocolVersion int32 `yaml:"protocolVersion" mapstructure:"protocolVersion"`

	// UserAgent announced to peers, empty keeps the profile value.
	UserAgent string `yaml:"userAgent" mapstructure:"userAgent"`

	// Services bitfield announced to peers.
	Services uint64 `yaml:"services" mapstructure:"services"`

	// StartHeight announced to peers.
	StartHeight int32 `yaml:"startHeight" mapstructure:"startHeight"`

	// Relay asks peers to relay transactions.
	Relay bool `yaml:"relay" mapstructure:"relay"`
}

type ProbeConfig struct {
	// Workers is the number of concurrent attempts.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// Timeout of one attempt.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Deadline of the whole run, zero means no deadline.
	Deadline time.Duration `yaml:"deadline" mapstructure:"deadline"`

	// Limit caps the number of probed addresses, zero means no limit.
	Limit int `yaml:"limit" mapstructure:"limit"`

	// RateLimit is the number of dials started per second, zero means no limit.
	RateLimit float64 `yaml:"rateLimit" mapstructure:"rateLimit"`

	// RateBurst is the burst of the dial rate limiter.
	RateBurst int `yaml:"rateBurst" mapstructure:"rateBurst"`

	// ShowBar renders a progress bar on stderr.
	ShowBar bool `yaml:"showBar" mapstructure:"showBar"`
}

type ReportConfig struct {
	// CSV is the path of the exported timeline, empty disables the export.
	CSV string `yaml:"csv" mapstructure:"csv"`
}

type MetricsConfig struct {
	// Enable metrics service.
	Enable bool `yaml:"enable" mapstructure:"enable"`

	// Metrics service address.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// New default configuration.
func New() *Config {
	return &Config{
		Options: base.NewOptions(),
		Log: LogConfig{
			LogRotateConfig: DefaultLogRotateConfig,
		},
		Registry: RegistryConfig{
			URL:              DefaultRegistryURL,
			NodesField:       DefaultRegistryNodesField,
			Timeout:          DefaultRegistryTimeout,
			RetryAttempts:    DefaultRegistryRetryAttempts,
			RetryInitBackoff: DefaultRegistryRetryInitBackoff,
			RetryMaxBackoff:  DefaultRegistryRetryMaxBackoff,
		},
		Network: NetworkConfig{
			Name:  DefaultNetworkName,
			Dial:  DefaultNetworkDial,
			Relay: true,
		},
		Probe: ProbeConfig{
			Workers:   DefaultProbeWorkers,
			Timeout:   DefaultProbeTimeout,
			RateBurst: DefaultProbeRateBurst,
		},
		Metrics: MetricsConfig{
			Enable: false,
			Addr:   DefaultMetricsAddr,
		},
	}
}

// Validate config parameters.
func (cfg *Config) Validate() error {
	if cfg.Registry.URL == "" && cfg.Registry.File == "" && len(cfg.Registry.Peers) == 0 {
		return errors.New("registry requires parameter url, file or peers")
	}

	if cfg.Registry.Timeout <= 0 {
		return errors.New("registry requires parameter timeout")
	}

	if cfg.Registry.RetryAttempts <= 0 {
		return errors.New("registry requires parameter retryAttempts")
	}

	if cfg.Registry.RetryInitBackoff <= 0 {
		return errors.New("registry requires parameter retryInitBackoff")
	}

	if cfg.Registry.RetryMaxBackoff < cfg.Registry.RetryInitBackoff {
		return errors.New("registry requires parameter retryMaxBackoff")
	}

	if _, err := cfg.Network.Profile(); err != nil {
		return errors.New("network requires a known parameter name or a valid magic")
	}

	switch cfg.Network.Dial {
	case "tcp", "tcp4", "tcp6":
	default:
		return errors.New("network requires parameter dial")
	}

	if cfg.Probe.Workers <= 0 {
		return errors.New("probe requires parameter workers")
	}

	if cfg.Probe.Timeout <= 0 {
		return errors.New("probe requires parameter timeout")
	}

	if cfg.Probe.Deadline < 0 {
		return errors.New("probe requires parameter deadline")
	}

	if cfg.Probe.Limit < 0 {
		return errors.New("probe requires parameter limit")
	}

	if cfg.Probe.RateLimit < 0 {
		return errors.New("probe requires parameter rateLimit")
	}

	if cfg.Probe.RateLimit > 0 && cfg.Probe.RateBurst <= 0 {
		return errors.New("probe requires parameter rateBurst")
	}

	if cfg.Metrics.Enable {
		if cfg.Metrics.Addr == "" {
			return errors.New("metrics requires parameter addr")
		}
	}

	return nil
}

// Profile returns the network profile announced to peers.
func (cfg *NetworkConfig) Profile() (wire.Network, error) {
	network := wire.MainNet
	if cfg.Name != "" || cfg.Magic == "" {
		var err error
		if network, err = wire.LookupNetwork(cfg.Name); err != nil {
			return wire.Network{}, err
		}
	}

	if cfg.Magic != "" {
		magic, err := wire.ParseMagic(cfg.Magic)
		if err != nil {
			return wire.Network{}, err
		}

		if cfg.Name == "" {
			network.Name = "custom"
		}
		network.Magic = magic
	}

	if cfg.ProtocolVersion > 0 {
		network.ProtocolVersion = cfg.ProtocolVersion
	}

	if cfg.UserAgent != "" {
		network.UserAgent = cfg.UserAgent
	}

	network.Services = cfg.Services
	network.StartHeight = cfg.StartHeight
	network.Relay = cfg.Relay
	return network, nil
}
