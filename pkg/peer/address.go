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

// Package peer defines the address of a remote node in the probed network.
package peer

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	// ErrInvalidAddress is returned for a "host:port" string that cannot be parsed.
	ErrInvalidAddress = errors.New("invalid peer address")

	// ErrBareIPv6 is returned for a host containing colons without brackets,
	// e.g. "2001:db8::1:8333", whose port boundary is ambiguous.
	ErrBareIPv6 = errors.New("bare ipv6 host must be bracketed")
)

// Address is the host and port of a peer.
type Address struct {
	Host string
	Port uint16
}

// New returns an address from host and port.
func New(host string, port uint16) Address {
	return Address{Host: host, Port: port}
}

// String returns the dialable "host:port" form, IPv6 hosts are bracketed.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.FormatUint(uint64(a.Port), 10))
}

// ParseAddress splits a "host:port" string on its last colon.
//
// A bracketed host ("[2001:db8::1]:8333") must be an IPv6 literal and is
// returned without brackets. An unbracketed host that still contains a colon
// is rejected with ErrBareIPv6.
func ParseAddress(s string) (Address, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Address{}, fmt.Errorf("%w %q: missing port", ErrInvalidAddress, s)
	}

	host, rawPort := s[:i], s[i+1:]
	if strings.HasPrefix(host, "[") || strings.HasSuffix(host, "]") {
		if len(host) < 2 || host[0] != '[' || host[len(host)-1] != ']' {
			return Address{}, fmt.Errorf("%w %q: unbalanced brackets", ErrInvalidAddress, s)
		}

		host = host[1 : len(host)-1]
		if ip := net.ParseIP(host); ip == nil || ip.To4() != nil {
			return Address{}, fmt.Errorf("%w %q: bracketed host is not an ipv6 literal", ErrInvalidAddress, s)
		}
	} else if strings.Contains(host, ":") {
		return Address{}, fmt.Errorf("%w %q", ErrBareIPv6, s)
	}

	if host == "" {
		return Address{}, fmt.Errorf("%w %q: empty host", ErrInvalidAddress, s)
	}

	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w %q: port: %v", ErrInvalidAddress, s, err)
	}

	return Address{Host: host, Port: uint16(port)}, nil
}

// ParseAddresses parses every string with ParseAddress and stops at the first error.
func ParseAddresses(ss []string) ([]Address, error) {
	addrs := make([]Address, 0, len(ss))
	for _, s := range ss {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}

		addrs = append(addrs, addr)
	}

	return addrs, nil
}
