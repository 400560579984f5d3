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

//go:generate mockgen -destination mocks/client_mock.go -source client.go -package mocks

package handshake

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"d7y.io/peerprobe/pkg/peer"
	"d7y.io/peerprobe/pkg/types"
	"d7y.io/peerprobe/pkg/wire"
)

const (
	// DefaultNetwork is the default dial network.
	DefaultNetwork = "tcp"

	// DefaultTimeout is the default timeout of one attempt.
	DefaultTimeout = 1 * time.Second
)

// aLongTimeAgo is a non-zero time in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Dialer opens connections to peers, *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Outcome is the result of one handshake attempt.
type Outcome struct {
	// Kind is FailureKindNone when the handshake succeeded.
	Kind types.FailureKind

	// Err is the cause of a failed attempt.
	Err error

	// Message is the version message answered by the peer.
	Message *wire.VersionMessage
}

// Succeeded reports whether the peer answered with a well-formed message.
func (o Outcome) Succeeded() bool {
	return o.Kind == types.FailureKindNone
}

// Client performs single handshake attempts.
type Client interface {
	// Attempt dials addr, sends the handshake request and reads one framed
	// response, all within timeout. Ordinary network failures are reported
	// in the outcome.
	Attempt(ctx context.Context, addr peer.Address, timeout time.Duration) Outcome
}

// client implements Client.
type client struct {
	codec   wire.Codec
	dialer  Dialer
	network string
}

// Option is a functional option for configuring the client.
type Option func(c *client)

// WithDialer sets the dialer.
func WithDialer(dialer Dialer) Option {
	return func(c *client) {
		c.dialer = dialer
	}
}

// WithNetwork sets the dial network, e.g. tcp4.
func WithNetwork(network string) Option {
	return func(c *client) {
		c.network = network
	}
}

// New returns a new Client speaking codec.
func New(codec wire.Codec, options ...Option) Client {
	c := &client{
		codec:   codec,
		dialer:  &net.Dialer{},
		network: DefaultNetwork,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Attempt dials addr, sends the handshake request and reads one framed response.
func (c *client) Attempt(ctx context.Context, addr peer.Address, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(attemptCtx, c.network, addr.String())
	if err != nil {
		return dialFailure(ctx, err)
	}
	defer conn.Close()

	deadline, _ := attemptCtx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return handshakeFailure(ctx, fmt.Errorf("set deadline: %w", err))
	}

	// Cancellation of the run unblocks the pending read at once.
	stop := context.AfterFunc(attemptCtx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	req, err := c.codec.EncodeHandshakeRequest()
	if err != nil {
		return handshakeFailure(ctx, fmt.Errorf("encode request: %w", err))
	}

	if _, err := conn.Write(req); err != nil {
		return handshakeFailure(ctx, fmt.Errorf("write request: %w", err))
	}

	msg, err := c.codec.DecodeResponse(conn)
	if err != nil {
		return handshakeFailure(ctx, fmt.Errorf("read response: %w", err))
	}

	return Outcome{Kind: types.FailureKindNone, Message: msg}
}

func dialFailure(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Kind: types.FailureKindCanceled, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Outcome{Kind: types.FailureKindConnectTimeout, Err: err}
	}

	return Outcome{Kind: types.FailureKindConnectFailed, Err: err}
}

func handshakeFailure(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Kind: types.FailureKindCanceled, Err: err}
	}

	return Outcome{Kind: types.FailureKindHandshakeFailed, Err: err}
}
