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
	"time"

	logger "d7y.io/peerprobe/internal/dflog"
	"d7y.io/peerprobe/pkg/handshake"
	"d7y.io/peerprobe/pkg/registry"
	"d7y.io/peerprobe/pkg/wire"
)

const (
	// DefaultRegistryURL is the latest snapshot of the public node registry.
	DefaultRegistryURL = "https://bitnodes.io/api/v1/snapshots/latest/"

	// DefaultRegistryNodesField is the snapshot field holding the peer map.
	DefaultRegistryNodesField = registry.DefaultNodesField

	// DefaultRegistryTimeout is the timeout of one snapshot request.
	DefaultRegistryTimeout = registry.DefaultTimeout

	// DefaultRegistryRetryAttempts is the number of snapshot requests before giving up.
	DefaultRegistryRetryAttempts = 3

	// DefaultRegistryRetryInitBackoff is the first wait between snapshot requests.
	DefaultRegistryRetryInitBackoff = 500 * time.Millisecond

	// DefaultRegistryRetryMaxBackoff caps the wait between snapshot requests.
	DefaultRegistryRetryMaxBackoff = 5 * time.Second
)

var (
	// DefaultNetworkName is the default network profile.
	DefaultNetworkName = wire.MainNet.Name

	// DefaultNetworkDial is the default dial network.
	DefaultNetworkDial = handshake.DefaultNetwork
)

const (
	// DefaultProbeWorkers is the default number of concurrent attempts.
	DefaultProbeWorkers = 20

	// DefaultProbeTimeout is the default timeout of one attempt.
	DefaultProbeTimeout = handshake.DefaultTimeout

	// DefaultProbeRateBurst is the default burst of the dial rate limiter.
	DefaultProbeRateBurst = 1
)

const (
	// DefaultMetricsAddr is default address for metrics server.
	DefaultMetricsAddr = ":8000"
)

var (
	// DefaultLogRotateConfig is default rotation policy of log files.
	DefaultLogRotateConfig = logger.DefaultLogRotateConfig()
)
