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

// Package wire implements the framing and the version message of a
// Bitcoin-style peer protocol, enough to drive a liveness handshake.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	sha256 "github.com/minio/sha256-simd"
)

const (
	// HeaderSize is the size of a frame header.
	HeaderSize = 24

	// CommandSize is the size of the NUL padded command field.
	CommandSize = 12

	// MaxPayloadSize bounds the payload accepted from a peer.
	MaxPayloadSize = 32 * 1024 * 1024

	// payloadChunkSize is the initial buffer of a payload read.
	payloadChunkSize = 4 * 1024

	// CommandVersion is the command of version messages.
	CommandVersion = "version"
)

var (
	// ErrBadMagic is returned when a frame carries another network's magic.
	ErrBadMagic = errors.New("bad network magic")

	// ErrChecksumMismatch is returned when the payload checksum does not match the header.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrPayloadTooLarge is returned when the header announces more than MaxPayloadSize bytes.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidCommand is returned for a command that does not fit the header.
	ErrInvalidCommand = errors.New("invalid command")
)

// Header is the fixed frame header preceding every payload.
type Header struct {
	Magic    [4]byte
	Command  string
	Length   uint32
	Checksum [4]byte
}

// Checksum returns the first four bytes of the double SHA-256 of payload.
func Checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])

	var sum [4]byte
	copy(sum[:], second[:4])
	return sum
}

// EncodeMessage frames payload under command for the network identified by magic.
func EncodeMessage(magic [4]byte, command string, payload []byte) ([]byte, error) {
	if len(command) == 0 || len(command) > CommandSize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}

	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	var cmd [CommandSize]byte
	copy(cmd[:], command)
	checksum := Checksum(payload)

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(payload)))
	buf.Write(magic[:])
	buf.Write(cmd[:])
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(checksum[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// ReadHeader reads and validates one frame header.
func ReadHeader(r io.Reader, magic [4]byte) (*Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := &Header{}
	copy(h.Magic[:], raw[0:4])
	if h.Magic != magic {
		return nil, fmt.Errorf("%w: got %x, want %x", ErrBadMagic, h.Magic, magic)
	}

	cmd := raw[4 : 4+CommandSize]
	if i := bytes.IndexByte(cmd, 0); i >= 0 {
		// Everything after the first NUL must be padding.
		if bytes.IndexFunc(cmd[i:], func(r rune) bool { return r != 0 }) >= 0 {
			return nil, fmt.Errorf("%w: non-zero padding", ErrInvalidCommand)
		}
		cmd = cmd[:i]
	}
	h.Command = string(cmd)

	h.Length = binary.LittleEndian.Uint32(raw[16:20])
	if h.Length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.Length)
	}

	copy(h.Checksum[:], raw[20:24])
	return h, nil
}

// ReadMessage reads exactly one frame and returns its header and verified payload.
func ReadMessage(r io.Reader, magic [4]byte) (*Header, []byte, error) {
	h, err := ReadHeader(r, magic)
	if err != nil {
		return nil, nil, err
	}

	payload, err := ReadPayload(r, h)
	if err != nil {
		return nil, nil, err
	}

	return h, payload, nil
}

// ReadPayload reads and verifies the payload announced by h. Memory grows
// with the bytes received from r, never with the length announced by h.
func ReadPayload(r io.Reader, h *Header) ([]byte, error) {
	size := h.Length
	if size > payloadChunkSize {
		size = payloadChunkSize
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.CopyN(buf, r, int64(h.Length)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %s payload: %w", h.Command, err)
	}

	payload := buf.Bytes()
	if Checksum(payload) != h.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, h.Command)
	}

	return payload, nil
}
