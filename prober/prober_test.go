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

package prober

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"d7y.io/peerprobe/pkg/dfpath"
	"d7y.io/peerprobe/pkg/handshake"
	handshakemocks "d7y.io/peerprobe/pkg/handshake/mocks"
	"d7y.io/peerprobe/pkg/peer"
	"d7y.io/peerprobe/pkg/registry"
	registrymocks "d7y.io/peerprobe/pkg/registry/mocks"
	"d7y.io/peerprobe/pkg/types"
	"d7y.io/peerprobe/pkg/wire"
	"d7y.io/peerprobe/prober/config"
	"d7y.io/peerprobe/prober/report"
	"d7y.io/peerprobe/prober/scheduler"
	schedulermocks "d7y.io/peerprobe/prober/scheduler/mocks"
)

var mockAddrs = []peer.Address{
	peer.New("192.0.2.1", 8333),
	peer.New("192.0.2.2", 8333),
	peer.New("2001:db8::1", 8333),
}

func mockConfig() *config.Config {
	cfg := config.New()
	cfg.Registry.RetryAttempts = 2
	cfg.Registry.RetryInitBackoff = time.Millisecond
	cfg.Registry.RetryMaxBackoff = 2 * time.Millisecond
	cfg.Probe.Workers = 2
	return cfg
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config func(cfg *config.Config)
		expect func(t *testing.T, p *Prober, err error)
	}{
		{
			name:   "http source by default",
			config: func(cfg *config.Config) {},
			expect: func(t *testing.T, p *Prober, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.NotNil(p.source)
				assert.Equal(mockConfig().Registry.URL, p.sourceName)
				assert.NotEmpty(p.host)
				assert.NotNil(p.client)
				assert.NotNil(p.scheduler)
				assert.Nil(p.lock)
				assert.Nil(p.metricsServer)
			},
		},
		{
			name: "static source from peers",
			config: func(cfg *config.Config) {
				cfg.Registry.Peers = []string{"192.0.2.1:8333", "[2001:db8::1]:8333"}
			},
			expect: func(t *testing.T, p *Prober, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal("peers", p.sourceName)
				addrs, err := p.source.Fetch(context.Background())
				assert.NoError(err)
				assert.Equal([]peer.Address{peer.New("192.0.2.1", 8333), peer.New("2001:db8::1", 8333)}, addrs)
			},
		},
		{
			name: "invalid peer",
			config: func(cfg *config.Config) {
				cfg.Registry.Peers = []string{"2001:db8::1"}
			},
			expect: func(t *testing.T, p *Prober, err error) {
				assert := assert.New(t)
				assert.Error(err)
				assert.Nil(p)
			},
		},
		{
			name: "invalid registry url",
			config: func(cfg *config.Config) {
				cfg.Registry.URL = "foo"
			},
			expect: func(t *testing.T, p *Prober, err error) {
				assert := assert.New(t)
				assert.Error(err)
			},
		},
		{
			name: "unknown network",
			config: func(cfg *config.Config) {
				cfg.Network.Name = "foo"
			},
			expect: func(t *testing.T, p *Prober, err error) {
				assert := assert.New(t)
				assert.Error(err)
			},
		},
		{
			name: "metrics enabled",
			config: func(cfg *config.Config) {
				cfg.Metrics.Enable = true
				cfg.Probe.RateLimit = 10
			},
			expect: func(t *testing.T, p *Prober, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.NotNil(p.metricsServer)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := mockConfig()
			tc.config(cfg)
			p, err := New(cfg, nil)
			tc.expect(t, p, err)
		})
	}
}

func TestNewFileSource(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	assert.NoError(os.WriteFile(path, []byte(`{"nodes": {"192.0.2.1:8333": []}}`), 0600))

	cfg := mockConfig()
	cfg.Registry.File = path
	p, err := New(cfg, nil)
	assert.NoError(err)
	assert.Equal(path, p.sourceName)

	addrs, err := p.source.Fetch(context.Background())
	assert.NoError(err)
	assert.Equal([]peer.Address{peer.New("192.0.2.1", 8333)}, addrs)
}

func TestRun(t *testing.T) {
	succeeded := handshake.Outcome{
		Kind:    types.FailureKindNone,
		Message: &wire.VersionMessage{UserAgent: "/Satoshi:25.0.0/"},
	}

	tests := []struct {
		name   string
		config func(cfg *config.Config)
		mock   func(source *registrymocks.MockSourceMockRecorder, client *handshakemocks.MockClientMockRecorder)
		expect func(t *testing.T, rep *report.Report, err error)
	}{
		{
			name:   "probe every address",
			config: func(cfg *config.Config) {},
			mock: func(source *registrymocks.MockSourceMockRecorder, client *handshakemocks.MockClientMockRecorder) {
				source.Fetch(gomock.Any()).Return(mockAddrs, nil).Times(1)
				client.Attempt(gomock.Any(), gomock.Any(), gomock.Any()).Return(succeeded).Times(len(mockAddrs))
			},
			expect: func(t *testing.T, rep *report.Report, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.NotEmpty(rep.RunID)
				assert.NotEmpty(rep.Host)
				assert.Equal(3, rep.Attempted)
				assert.Equal(3, rep.Started)
				assert.Equal(3, rep.Succeeded)
				assert.Equal(0, rep.Failed)
				assert.Equal(0, rep.Pending)
				assert.Len(rep.Spans, 3)
			},
		},
		{
			name:   "failed attempts are counted",
			config: func(cfg *config.Config) {},
			mock: func(source *registrymocks.MockSourceMockRecorder, client *handshakemocks.MockClientMockRecorder) {
				source.Fetch(gomock.Any()).Return(mockAddrs, nil).Times(1)
				client.Attempt(gomock.Any(), mockAddrs[0], gomock.Any()).Return(succeeded).Times(1)
				client.Attempt(gomock.Any(), mockAddrs[1], gomock.Any()).Return(handshake.Outcome{
					Kind: types.FailureKindConnectTimeout,
					Err:  errors.New("foo"),
				}).Times(1)
				client.Attempt(gomock.Any(), mockAddrs[2], gomock.Any()).Return(handshake.Outcome{
					Kind: types.FailureKindHandshakeFailed,
					Err:  errors.New("bar"),
				}).Times(1)
			},
			expect: func(t *testing.T, rep *report.Report, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(1, rep.Succeeded)
				assert.Equal(2, rep.Failed)
				assert.Equal(1, rep.Failures[types.FailureKindConnectTimeout])
				assert.Equal(1, rep.Failures[types.FailureKindHandshakeFailed])
				assert.Len(rep.Spans, 1)
				assert.Equal(mockAddrs[0], rep.Spans[0].Address)
			},
		},
		{
			name: "limit addresses",
			config: func(cfg *config.Config) {
				cfg.Probe.Limit = 2
			},
			mock: func(source *registrymocks.MockSourceMockRecorder, client *handshakemocks.MockClientMockRecorder) {
				source.Fetch(gomock.Any()).Return(mockAddrs, nil).Times(1)
				client.Attempt(gomock.Any(), gomock.Any(), gomock.Any()).Return(succeeded).Times(2)
			},
			expect: func(t *testing.T, rep *report.Report, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(2, rep.Attempted)
				assert.Equal(2, rep.Succeeded)
			},
		},
		{
			name:   "empty address list",
			config: func(cfg *config.Config) {},
			mock: func(source *registrymocks.MockSourceMockRecorder, client *handshakemocks.MockClientMockRecorder) {
				source.Fetch(gomock.Any()).Return([]peer.Address{}, nil).Times(1)
			},
			expect: func(t *testing.T, rep *report.Report, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(0, rep.Attempted)
				assert.Empty(rep.Spans)
			},
		},
		{
			name:   "fetch succeeds after retry",
			config: func(cfg *config.Config) {},
			mock: func(source *registrymocks.MockSourceMockRecorder, client *handshakemocks.MockClientMockRecorder) {
				gomock.InOrder(
					source.Fetch(gomock.Any()).Return(nil, registry.ErrRegistryUnavailable).Times(1),
					source.Fetch(gomock.Any()).Return(mockAddrs[:1], nil).Times(1),
				)
				client.Attempt(gomock.Any(), mockAddrs[0], gomock.Any()).Return(succeeded).Times(1)
			},
			expect: func(t *testing.T, rep *report.Report, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(1, rep.Succeeded)
			},
		},
		{
			name:   "fetch failed",
			config: func(cfg *config.Config) {},
			mock: func(source *registrymocks.MockSourceMockRecorder, client *handshakemocks.MockClientMockRecorder) {
				source.Fetch(gomock.Any()).Return(nil, errors.New("foo")).Times(2)
			},
			expect: func(t *testing.T, rep *report.Report, err error) {
				assert := assert.New(t)
				assert.ErrorIs(err, registry.ErrRegistryUnavailable)
				assert.Contains(err.Error(), "foo")
				assert.Nil(rep)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctl := gomock.NewController(t)
			defer ctl.Finish()
			source := registrymocks.NewMockSource(ctl)
			client := handshakemocks.NewMockClient(ctl)
			tc.mock(source.EXPECT(), client.EXPECT())

			cfg := mockConfig()
			tc.config(cfg)
			p, err := New(cfg, nil, WithSource(source), WithClient(client))
			require.NoError(t, err)

			rep, err := p.Run(context.Background())
			tc.expect(t, rep, err)
		})
	}
}

func TestRunWithScheduler(t *testing.T) {
	assert := assert.New(t)
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	source := registrymocks.NewMockSource(ctl)
	s := schedulermocks.NewMockScheduler(ctl)

	source.EXPECT().Fetch(gomock.Any()).Return(mockAddrs, nil).Times(1)
	s.EXPECT().Run(gomock.Any(), mockAddrs[:2]).Return(scheduler.ResultSet{
		Submitted: 2,
		Pending: []scheduler.Pending{
			{Index: 0, Address: mockAddrs[0]},
			{Index: 1, Address: mockAddrs[1]},
		},
	}).Times(1)

	cfg := mockConfig()
	cfg.Probe.Limit = 2
	p, err := New(cfg, nil, WithSource(source), WithScheduler(s))
	assert.NoError(err)

	rep, err := p.Run(context.Background())
	assert.NoError(err)
	assert.Equal(2, rep.Attempted)
	assert.Equal(2, rep.Pending)
	assert.Equal(0, rep.Succeeded)
	assert.Nil(rep.Latency)
}

func TestRunWriteCSV(t *testing.T) {
	assert := assert.New(t)
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	client := handshakemocks.NewMockClient(ctl)
	client.EXPECT().Attempt(gomock.Any(), gomock.Any(), gomock.Any()).Return(handshake.Outcome{
		Kind:    types.FailureKindNone,
		Message: &wire.VersionMessage{UserAgent: "/Satoshi:25.0.0/"},
	}).Times(len(mockAddrs))

	path := filepath.Join(t.TempDir(), "timeline.csv")
	cfg := mockConfig()
	cfg.Report.CSV = path
	p, err := New(cfg, nil, WithSource(registry.NewStatic(mockAddrs...)), WithClient(client))
	assert.NoError(err)

	_, err = p.Run(context.Background())
	assert.NoError(err)

	data, err := os.ReadFile(path)
	assert.NoError(err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(lines, len(mockAddrs)+1)
	assert.Contains(lines[1], "/Satoshi:25.0.0/")
}

func TestRunWriteCSVFailed(t *testing.T) {
	assert := assert.New(t)
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	client := handshakemocks.NewMockClient(ctl)
	client.EXPECT().Attempt(gomock.Any(), gomock.Any(), gomock.Any()).Return(handshake.Outcome{
		Kind: types.FailureKindNone,
	}).Times(1)

	cfg := mockConfig()
	cfg.Report.CSV = filepath.Join(t.TempDir(), "foo", "timeline.csv")
	p, err := New(cfg, nil, WithSource(registry.NewStatic(mockAddrs[0])), WithClient(client))
	assert.NoError(err)

	rep, err := p.Run(context.Background())
	assert.Error(err)
	assert.NotNil(rep)
	assert.Equal(1, rep.Succeeded)
}

func TestRunLocked(t *testing.T) {
	assert := assert.New(t)
	d, err := dfpath.New(dfpath.WithWorkHome(t.TempDir()))
	assert.NoError(err)

	lock := flock.New(filepath.Join(d.DataDir(), LockFileName))
	locked, err := lock.TryLock()
	assert.NoError(err)
	assert.True(locked)
	defer lock.Unlock()

	p, err := New(mockConfig(), d, WithSource(registry.NewStatic(mockAddrs...)))
	assert.NoError(err)

	rep, err := p.Run(context.Background())
	assert.ErrorIs(err, ErrRunInProgress)
	assert.Nil(rep)
}

func TestRunUnlocksAfterRun(t *testing.T) {
	assert := assert.New(t)
	d, err := dfpath.New(dfpath.WithWorkHome(t.TempDir()))
	assert.NoError(err)

	p, err := New(mockConfig(), d, WithSource(registry.NewStatic()))
	assert.NoError(err)

	_, err = p.Run(context.Background())
	assert.NoError(err)

	lock := flock.New(filepath.Join(d.DataDir(), LockFileName))
	locked, err := lock.TryLock()
	assert.NoError(err)
	assert.True(locked)
	assert.NoError(lock.Unlock())
}

func TestStartStop(t *testing.T) {
	cfg := mockConfig()
	cfg.Metrics.Enable = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	p, err := New(cfg, nil, WithSource(registry.NewStatic()))
	require.NoError(t, err)

	p.Start()
	p.Stop()
}
