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

//go:generate mockgen -destination mocks/scheduler_mock.go -source scheduler.go -package mocks

package scheduler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bits-and-blooms/bitset"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	logger "d7y.io/peerprobe/internal/dflog"
	"d7y.io/peerprobe/pkg/handshake"
	"d7y.io/peerprobe/pkg/math"
	"d7y.io/peerprobe/pkg/peer"
	"d7y.io/peerprobe/pkg/safe"
	"d7y.io/peerprobe/pkg/types"
	"d7y.io/peerprobe/pkg/wire"
)

const (
	// DefaultWorkers is the default number of concurrent attempts.
	DefaultWorkers = 20

	// DefaultTimeout is the default timeout of one attempt.
	DefaultTimeout = handshake.DefaultTimeout
)

// Outcome is the record of one finished attempt. It is never modified
// after it is published.
type Outcome struct {
	// Index is the submission position of the address.
	Index int

	// Address is the probed peer.
	Address peer.Address

	// Succeeded is true when the peer answered with a well-formed message.
	Succeeded bool

	// Kind is FailureKindNone when the attempt succeeded.
	Kind types.FailureKind

	// Err is the cause of a failed attempt.
	Err error

	// StartTime is stamped right before the attempt.
	StartTime time.Time

	// StopTime is stamped right after the attempt, never before StartTime.
	StopTime time.Time

	// Payload is the version message answered by the peer.
	Payload *wire.VersionMessage
}

// Duration returns the time the attempt took.
func (o Outcome) Duration() time.Duration {
	return o.StopTime.Sub(o.StartTime)
}

// Pending is an address left without outcome when the run was cut short.
type Pending struct {
	Index   int
	Address peer.Address
}

// ResultSet is the result of a run. Outcomes are ordered by index.
// Every submitted address is either in Outcomes or in Pending.
type ResultSet struct {
	Submitted int

	// Started counts the attempts begun, including the ones cut short.
	Started int

	Outcomes []Outcome
	Pending  []Pending
}

// Scheduler probes addresses with a bounded number of workers.
type Scheduler interface {
	// Run probes every address and blocks until all workers have returned.
	Run(ctx context.Context, addrs []peer.Address) ResultSet
}

type scheduler struct {
	client   handshake.Client
	workers  int
	timeout  time.Duration
	deadline time.Duration
	limiter  *rate.Limiter
	clock    clock.Clock
	observer func(Outcome)
}

// Option is a functional option for configuring the scheduler.
type Option func(s *scheduler)

// WithWorkers sets the number of concurrent attempts.
func WithWorkers(workers int) Option {
	return func(s *scheduler) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithTimeout sets the timeout of one attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(s *scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithDeadline sets the deadline of the whole run, zero means no deadline.
func WithDeadline(deadline time.Duration) Option {
	return func(s *scheduler) {
		s.deadline = deadline
	}
}

// WithRateLimiter bounds the rate of attempts started.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(s *scheduler) {
		s.limiter = limiter
	}
}

// WithClock sets the time source of start and stop stamps and of the deadline.
func WithClock(clk clock.Clock) Option {
	return func(s *scheduler) {
		s.clock = clk
	}
}

// WithObserver sets a callback invoked once per published outcome.
// Calls are serialized.
func WithObserver(observer func(Outcome)) Option {
	return func(s *scheduler) {
		s.observer = observer
	}
}

// New returns a new Scheduler attempting handshakes with client.
func New(client handshake.Client, options ...Option) Scheduler {
	s := &scheduler{
		client:  client,
		workers: DefaultWorkers,
		timeout: DefaultTimeout,
		clock:   clock.New(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

type job struct {
	index int
	addr  peer.Address
}

// Run probes every address and blocks until all workers have returned.
// When ctx is done or the deadline expires, in-flight attempts are aborted
// and every address without outcome is reported as pending.
func (s *scheduler) Run(ctx context.Context, addrs []peer.Address) ResultSet {
	n := len(addrs)
	if n == 0 {
		return ResultSet{}
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.deadline > 0 {
		runCtx, cancel = s.clock.WithTimeout(ctx, s.deadline)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	jobs := make(chan job, n)
	for i, addr := range addrs {
		jobs <- job{index: i, addr: addr}
	}
	close(jobs)

	workers := math.Min(s.workers, n)
	var (
		results   = make(chan Outcome, workers)
		outcomes  = make([]Outcome, n)
		published = bitset.New(uint(n))
		started   = atomic.NewInt64(0)
		collected = make(chan struct{})
	)

	// The collector is the only writer of outcomes and published.
	go func() {
		defer close(collected)
		for o := range results {
			outcomes[o.Index] = o
			published.Set(uint(o.Index))
			if s.observer != nil {
				s.observer(o)
			}
		}
	}()

	eg := errgroup.Group{}
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			s.work(runCtx, jobs, results, started)
			return nil
		})
	}
	_ = eg.Wait()
	close(results)
	<-collected

	rs := ResultSet{
		Submitted: n,
		Started:   int(started.Load()),
		Outcomes:  make([]Outcome, 0, published.Count()),
	}
	for i := 0; i < n; i++ {
		if published.Test(uint(i)) {
			rs.Outcomes = append(rs.Outcomes, outcomes[i])
			continue
		}

		rs.Pending = append(rs.Pending, Pending{Index: i, Address: addrs[i]})
	}

	logger.Debugf("run finished with %d workers: submitted %d, started %d, published %d, pending %d",
		workers, n, rs.Started, len(rs.Outcomes), len(rs.Pending))
	return rs
}

func (s *scheduler) work(ctx context.Context, jobs <-chan job, results chan<- Outcome, started *atomic.Int64) {
	for j := range jobs {
		if ctx.Err() != nil {
			return
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		started.Inc()
		o := s.attempt(ctx, j)
		if o.Kind == types.FailureKindCanceled {
			continue
		}

		results <- o
	}
}

// attempt runs one handshake. A panic fails this attempt only.
func (s *scheduler) attempt(ctx context.Context, j job) Outcome {
	o := Outcome{
		Index:     j.index,
		Address:   j.addr,
		StartTime: s.clock.Now(),
	}

	var outcome handshake.Outcome
	if err := safe.Call(func() { outcome = s.client.Attempt(ctx, j.addr, s.timeout) }); err != nil {
		logger.With("index", j.index, "address", j.addr.String()).Errorf("attempt failed: %v", err)
		outcome = handshake.Outcome{Kind: types.FailureKindFault, Err: err}
	}

	o.StopTime = s.clock.Now()
	if o.StopTime.Before(o.StartTime) {
		o.StopTime = o.StartTime
	}

	o.Succeeded = outcome.Succeeded()
	o.Kind = outcome.Kind
	o.Err = outcome.Err
	o.Payload = outcome.Message
	return o
}
