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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	// MaxUserAgentLen bounds the user agent accepted from a peer.
	MaxUserAgentLen = 256

	// MaxVersionPayloadSize bounds the version payload accepted from a peer.
	MaxVersionPayloadSize = 4 * 1024
)

// ErrMalformedPayload is returned when a version payload cannot be decoded.
var ErrMalformedPayload = errors.New("malformed version payload")

// NetAddress is the address record embedded in a version message.
type NetAddress struct {
	Services uint64
	IP       net.IP
	Port     uint16
}

// VersionMessage is the payload of the version command.
type VersionMessage struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       time.Time
	AddrRecv        NetAddress
	AddrFrom        NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// Encode serializes the version payload.
func (m *VersionMessage) Encode() []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, m.ProtocolVersion)
	_ = binary.Write(buf, binary.LittleEndian, m.Services)
	_ = binary.Write(buf, binary.LittleEndian, m.Timestamp.Unix())
	writeNetAddress(buf, m.AddrRecv)
	writeNetAddress(buf, m.AddrFrom)
	_ = binary.Write(buf, binary.LittleEndian, m.Nonce)
	writeVarString(buf, m.UserAgent)
	_ = binary.Write(buf, binary.LittleEndian, m.StartHeight)
	if m.Relay {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

// DecodeVersionMessage parses a version payload. The trailing relay flag
// is optional, older peers omit it.
func DecodeVersionMessage(payload []byte) (*VersionMessage, error) {
	r := bytes.NewReader(payload)
	m := &VersionMessage{}

	var timestamp int64
	for _, field := range []any{&m.ProtocolVersion, &m.Services, &timestamp} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	m.Timestamp = time.Unix(timestamp, 0)

	var err error
	if m.AddrRecv, err = readNetAddress(r); err != nil {
		return nil, fmt.Errorf("%w: addr_recv: %v", ErrMalformedPayload, err)
	}

	if m.AddrFrom, err = readNetAddress(r); err != nil {
		return nil, fmt.Errorf("%w: addr_from: %v", ErrMalformedPayload, err)
	}

	if err := binary.Read(r, binary.LittleEndian, &m.Nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrMalformedPayload, err)
	}

	if m.UserAgent, err = readVarString(r, MaxUserAgentLen); err != nil {
		return nil, fmt.Errorf("%w: user agent: %v", ErrMalformedPayload, err)
	}

	if err := binary.Read(r, binary.LittleEndian, &m.StartHeight); err != nil {
		return nil, fmt.Errorf("%w: start height: %v", ErrMalformedPayload, err)
	}

	relay, err := r.ReadByte()
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		return nil, fmt.Errorf("%w: relay: %v", ErrMalformedPayload, err)
	default:
		m.Relay = relay != 0
	}

	return m, nil
}

func writeNetAddress(buf *bytes.Buffer, addr NetAddress) {
	_ = binary.Write(buf, binary.LittleEndian, addr.Services)
	ip := addr.IP.To16()
	if ip == nil {
		ip = net.IPv6zero
	}
	buf.Write(ip)
	_ = binary.Write(buf, binary.BigEndian, addr.Port)
}

func readNetAddress(r io.Reader) (NetAddress, error) {
	var (
		addr NetAddress
		ip   [net.IPv6len]byte
	)
	if err := binary.Read(r, binary.LittleEndian, &addr.Services); err != nil {
		return addr, err
	}

	if _, err := io.ReadFull(r, ip[:]); err != nil {
		return addr, err
	}
	addr.IP = net.IP(ip[:])

	if err := binary.Read(r, binary.BigEndian, &addr.Port); err != nil {
		return addr, err
	}

	return addr, nil
}

func writeVarInt(buf *bytes.Buffer, n uint64) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		_ = binary.Write(buf, binary.LittleEndian, uint16(n))
	case n <= 0xffffffff:
		buf.WriteByte(0xfe)
		_ = binary.Write(buf, binary.LittleEndian, uint32(n))
	default:
		buf.WriteByte(0xff)
		_ = binary.Write(buf, binary.LittleEndian, n)
	}
}

func readVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}

	switch prefix[0] {
	case 0xfd:
		var n uint16
		err := binary.Read(r, binary.LittleEndian, &n)
		return uint64(n), err
	case 0xfe:
		var n uint32
		err := binary.Read(r, binary.LittleEndian, &n)
		return uint64(n), err
	case 0xff:
		var n uint64
		err := binary.Read(r, binary.LittleEndian, &n)
		return n, err
	}

	return uint64(prefix[0]), nil
}

func writeVarString(buf *bytes.Buffer, s string) {
	writeVarInt(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readVarString(r io.Reader, max uint64) (string, error) {
	n, err := readVarInt(r)
	if err != nil {
		return "", err
	}

	if n > max {
		return "", fmt.Errorf("length %d exceeds %d", n, max)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}

	return string(b), nil
}
