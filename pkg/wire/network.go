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

package wire

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultProtocolVersion is the protocol version announced in version messages.
	DefaultProtocolVersion int32 = 70015

	// DefaultUserAgent is the user agent announced in version messages.
	DefaultUserAgent = "/peerprobe:0.1.0/"
)

// Network is the profile of the probed network. The magic bytes prefix
// every frame, so profiles with different magics never decode each other.
type Network struct {
	// Name of the network profile.
	Name string

	// Magic is the 4-byte frame prefix.
	Magic [4]byte

	// ProtocolVersion announced in the version request.
	ProtocolVersion int32

	// Services bitfield announced in the version request.
	Services uint64

	// UserAgent announced in the version request.
	UserAgent string

	// StartHeight announced in the version request.
	StartHeight int32

	// Relay asks the peer to relay transactions.
	Relay bool
}

var (
	// MainNet is the main network profile.
	MainNet = Network{
		Name:            "mainnet",
		Magic:           [4]byte{0xf9, 0xbe, 0xb4, 0xd9},
		ProtocolVersion: DefaultProtocolVersion,
		UserAgent:       DefaultUserAgent,
		Relay:           true,
	}

	// TestNet3 is the public test network profile.
	TestNet3 = Network{
		Name:            "testnet3",
		Magic:           [4]byte{0x0b, 0x11, 0x09, 0x07},
		ProtocolVersion: DefaultProtocolVersion,
		UserAgent:       DefaultUserAgent,
		Relay:           true,
	}

	// RegTest is the regression test network profile.
	RegTest = Network{
		Name:            "regtest",
		Magic:           [4]byte{0xfa, 0xbf, 0xb5, 0xda},
		ProtocolVersion: DefaultProtocolVersion,
		UserAgent:       DefaultUserAgent,
		Relay:           true,
	}

	// SigNet is the default signet profile.
	SigNet = Network{
		Name:            "signet",
		Magic:           [4]byte{0x0a, 0x03, 0xcf, 0x40},
		ProtocolVersion: DefaultProtocolVersion,
		UserAgent:       DefaultUserAgent,
		Relay:           true,
	}
)

// Networks lists the built-in profiles.
var Networks = []Network{MainNet, TestNet3, RegTest, SigNet}

// LookupNetwork returns the built-in profile by name.
func LookupNetwork(name string) (Network, error) {
	for _, n := range Networks {
		if strings.EqualFold(n.Name, name) {
			return n, nil
		}
	}

	return Network{}, fmt.Errorf("unknown network %q", name)
}

// ParseMagic parses 8 hex digits, e.g. "f9beb4d9", into frame magic bytes.
func ParseMagic(s string) ([4]byte, error) {
	var magic [4]byte
	b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return magic, fmt.Errorf("invalid magic %q: %w", s, err)
	}

	if len(b) != len(magic) {
		return magic, fmt.Errorf("invalid magic %q: want %d bytes, got %d", s, len(magic), len(b))
	}

	copy(magic[:], b)
	return magic, nil
}
