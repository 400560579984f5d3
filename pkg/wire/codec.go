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

//go:generate mockgen -destination mocks/codec_mock.go -source codec.go -package mocks

package wire

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrUnexpectedCommand is returned when the peer answers the handshake with
// something other than a version message.
var ErrUnexpectedCommand = errors.New("unexpected command")

// Codec encodes the handshake request and decodes the peer's response.
type Codec interface {
	// EncodeHandshakeRequest returns the framed version request.
	EncodeHandshakeRequest() ([]byte, error)

	// DecodeResponse reads exactly one framed message from r and decodes it as a version message.
	DecodeResponse(r io.Reader) (*VersionMessage, error)
}

// codec implements Codec for one network profile.
type codec struct {
	network Network
	now     func() time.Time
	nonce   func() uint64
}

// Option is a functional option for configuring the codec.
type Option func(c *codec)

// WithNow sets the time source of the version timestamp.
func WithNow(now func() time.Time) Option {
	return func(c *codec) {
		c.now = now
	}
}

// WithNonce sets the nonce generator of version requests.
func WithNonce(nonce func() uint64) Option {
	return func(c *codec) {
		c.nonce = nonce
	}
}

// NewCodec returns a new Codec for network.
func NewCodec(network Network, options ...Option) Codec {
	c := &codec{
		network: network,
		now:     time.Now,
		nonce:   randomNonce,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// EncodeHandshakeRequest returns the framed version request.
func (c *codec) EncodeHandshakeRequest() ([]byte, error) {
	msg := &VersionMessage{
		ProtocolVersion: c.network.ProtocolVersion,
		Services:        c.network.Services,
		Timestamp:       c.now(),
		AddrRecv:        NetAddress{IP: net.IPv6zero},
		AddrFrom:        NetAddress{Services: c.network.Services, IP: net.IPv6zero},
		Nonce:           c.nonce(),
		UserAgent:       c.network.UserAgent,
		StartHeight:     c.network.StartHeight,
		Relay:           c.network.Relay,
	}

	return EncodeMessage(c.network.Magic, CommandVersion, msg.Encode())
}

// DecodeResponse reads exactly one framed message from r and decodes it as a version message.
func (c *codec) DecodeResponse(r io.Reader) (*VersionMessage, error) {
	h, err := ReadHeader(r, c.network.Magic)
	if err != nil {
		return nil, err
	}

	if h.Command != CommandVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedCommand, h.Command)
	}

	if h.Length > MaxVersionPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes of %s", ErrPayloadTooLarge, h.Length, h.Command)
	}

	payload, err := ReadPayload(r, h)
	if err != nil {
		return nil, err
	}

	return DecodeVersionMessage(payload)
}

func randomNonce() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}

	return binary.LittleEndian.Uint64(b[:])
}
