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
	"os"

	"d7y.io/peerprobe/pkg/peer"
)

type fileSource struct {
	path       string
	nodesField string
}

// NewFile returns a Source reading a snapshot saved on disk.
func NewFile(path, nodesField string) Source {
	return &fileSource{path: path, nodesField: nodesField}
}

// Fetch reads the snapshot and returns its peers sorted by key.
func (s *fileSource) Fetch(ctx context.Context) ([]peer.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return parseSnapshot(data, s.nodesField)
}

type staticSource struct {
	addrs []peer.Address
}

// NewStatic returns a Source serving addrs in the given order.
func NewStatic(addrs ...peer.Address) Source {
	return &staticSource{addrs: append([]peer.Address(nil), addrs...)}
}

func (s *staticSource) Fetch(ctx context.Context) ([]peer.Address, error) {
	return append([]peer.Address(nil), s.addrs...), nil
}
