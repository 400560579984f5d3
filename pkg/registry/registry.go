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

//go:generate mockgen -destination mocks/registry_mock.go -source registry.go -package mocks

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"d7y.io/peerprobe/pkg/peer"
)

const (
	// DefaultNodesField is the snapshot field holding the peer map.
	DefaultNodesField = "nodes"

	// MaxSnapshotSize bounds the snapshot body read from a registry.
	MaxSnapshotSize = 64 << 20
)

// ErrRegistryUnavailable is returned when the registry cannot be reached,
// answers with a non-2xx status or serves a malformed snapshot.
var ErrRegistryUnavailable = errors.New("registry unavailable")

// Source produces the candidate peer addresses of one run.
type Source interface {
	// Fetch returns the addresses in submission order.
	Fetch(ctx context.Context) ([]peer.Address, error)
}

// parseSnapshot returns the sorted keys of the peer map of a snapshot.
// With an empty nodesField the top-level object is the peer map.
func parseSnapshot(data []byte, nodesField string) ([]peer.Address, error) {
	var nodes map[string]json.RawMessage
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("%w: malformed snapshot: %v", ErrRegistryUnavailable, err)
	}

	if nodesField != "" {
		raw, ok := nodes[nodesField]
		if !ok {
			return nil, fmt.Errorf("%w: snapshot has no %q field", ErrRegistryUnavailable, nodesField)
		}

		nodes = nil
		if err := json.Unmarshal(raw, &nodes); err != nil {
			return nil, fmt.Errorf("%w: malformed %q field: %v", ErrRegistryUnavailable, nodesField, err)
		}
	}

	keys := make([]string, 0, len(nodes))
	for key := range nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var (
		addrs  = make([]peer.Address, 0, len(keys))
		result *multierror.Error
	)
	for _, key := range keys {
		addr, err := peer.ParseAddress(key)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		addrs = append(addrs, addr)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return addrs, nil
}
