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
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	fqdn "github.com/Showmax/go-fqdn"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	logger "d7y.io/peerprobe/internal/dflog"
	"d7y.io/peerprobe/pkg/dfpath"
	"d7y.io/peerprobe/pkg/handshake"
	"d7y.io/peerprobe/pkg/peer"
	"d7y.io/peerprobe/pkg/registry"
	"d7y.io/peerprobe/pkg/retry"
	"d7y.io/peerprobe/pkg/types"
	"d7y.io/peerprobe/pkg/wire"
	"d7y.io/peerprobe/prober/aggregator"
	"d7y.io/peerprobe/prober/config"
	"d7y.io/peerprobe/prober/metrics"
	"d7y.io/peerprobe/prober/report"
	"d7y.io/peerprobe/prober/scheduler"
)

const (
	// LockFileName is the run lock under the data directory.
	LockFileName = "peerprobe.lock"

	// gracefulStopTimeout is the timeout of the metrics server shutdown.
	gracefulStopTimeout = 5 * time.Second

	// succeededLabel is the result label of succeeded attempts.
	succeededLabel = "succeeded"

	// customSourceName names a source set by WithSource in logs.
	customSourceName = "custom"
)

// ErrRunInProgress is returned when another run holds the lock of the work home.
var ErrRunInProgress = errors.New("another run is in progress")

// Prober fetches peer addresses and probes them once.
type Prober struct {
	config        *config.Config
	source        registry.Source
	sourceName    string
	host          string
	client        handshake.Client
	scheduler     scheduler.Scheduler
	lock          *flock.Flock
	metricsServer *http.Server

	// State of the current run, read by the scheduler observer.
	runID string
	bar   *progressbar.ProgressBar
}

// Option is a functional option for configuring the prober.
type Option func(p *Prober)

// WithSource sets the address source instead of the configured registry.
func WithSource(source registry.Source) Option {
	return func(p *Prober) {
		p.source = source
	}
}

// WithClient sets the handshake client instead of the configured network.
func WithClient(client handshake.Client) Option {
	return func(p *Prober) {
		p.client = client
	}
}

// WithScheduler sets the scheduler instead of the configured probe options.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(p *Prober) {
		p.scheduler = s
	}
}

// New returns a prober, d is optional and enables the run lock.
func New(cfg *config.Config, d dfpath.Dfpath, options ...Option) (*Prober, error) {
	p := &Prober{config: cfg, sourceName: customSourceName, host: hostname()}
	for _, opt := range options {
		opt(p)
	}

	if p.source == nil {
		source, name, err := newSource(&cfg.Registry)
		if err != nil {
			return nil, err
		}
		p.source = source
		p.sourceName = name
	}

	if p.client == nil {
		network, err := cfg.Network.Profile()
		if err != nil {
			return nil, err
		}
		p.client = handshake.New(wire.NewCodec(network), handshake.WithNetwork(cfg.Network.Dial))
	}

	if p.scheduler == nil {
		schedulerOptions := []scheduler.Option{
			scheduler.WithWorkers(cfg.Probe.Workers),
			scheduler.WithTimeout(cfg.Probe.Timeout),
			scheduler.WithDeadline(cfg.Probe.Deadline),
			scheduler.WithObserver(p.observe),
		}
		if cfg.Probe.RateLimit > 0 {
			schedulerOptions = append(schedulerOptions, scheduler.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Probe.RateLimit), cfg.Probe.RateBurst)))
		}
		p.scheduler = scheduler.New(p.client, schedulerOptions...)
	}

	if d != nil {
		p.lock = flock.New(filepath.Join(d.DataDir(), LockFileName))
	}

	if cfg.Metrics.Enable {
		p.metricsServer = metrics.New(&cfg.Metrics)
	}

	return p, nil
}

// newSource returns the configured source and the name it is logged by.
func newSource(cfg *config.RegistryConfig) (registry.Source, string, error) {
	if len(cfg.Peers) > 0 {
		addrs, err := peer.ParseAddresses(cfg.Peers)
		if err != nil {
			return nil, "", err
		}
		return registry.NewStatic(addrs...), "peers", nil
	}

	if cfg.File != "" {
		return registry.NewFile(cfg.File, cfg.NodesField), cfg.File, nil
	}

	source, err := registry.NewHTTP(&registry.HTTPConfig{
		URL:        cfg.URL,
		NodesField: cfg.NodesField,
		Timeout:    cfg.Timeout,
		UserAgent:  cfg.UserAgent,
	})
	if err != nil {
		return nil, "", err
	}
	return source, cfg.URL, nil
}

func hostname() string {
	if name, err := fqdn.FqdnHostname(); err == nil {
		return name
	}

	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// Start serves metrics in the background when enabled.
func (p *Prober) Start() {
	if p.metricsServer == nil {
		return
	}

	go func() {
		logger.Infof("started metrics server at %s", p.metricsServer.Addr)
		if err := p.metricsServer.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				return
			}
			logger.Errorf("started metrics server failed: %v", err)
		}
	}()
}

// Stop shuts the metrics server down.
func (p *Prober) Stop() {
	if p.metricsServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulStopTimeout)
	defer cancel()
	if err := p.metricsServer.Shutdown(ctx); err != nil {
		logger.Errorf("metrics server failed to stop: %+v", err)
		return
	}
	logger.Info("metrics server closed under request")
}

// Run fetches the addresses, probes each of them once and builds the report.
// Only a failed fetch aborts the run, the report is returned together with
// a failed timeline export.
func (p *Prober) Run(ctx context.Context) (*report.Report, error) {
	p.runID = uuid.NewString()
	log := logger.WithRunID(p.runID)
	startedAt := time.Now()

	if p.lock != nil {
		locked, err := p.lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", ErrRunInProgress, p.lock.Path())
		}
		defer p.lock.Unlock()
	}

	addrs, err := p.fetch(ctx)
	if err != nil {
		log.Errorf("fetch addresses failed: %s", err)
		return nil, err
	}

	if limit := p.config.Probe.Limit; limit > 0 && len(addrs) > limit {
		log.Infof("limit %d addresses to %d", len(addrs), limit)
		addrs = addrs[:limit]
	}
	log.Infof("probe %d addresses", len(addrs))

	if p.config.Probe.ShowBar && len(addrs) > 0 {
		p.bar = progressbar.Default(int64(len(addrs)), "probing")
	}

	rs := p.scheduler.Run(ctx, addrs)
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}

	metrics.ProbePendingGauge.Set(float64(len(rs.Pending)))
	for _, pending := range rs.Pending {
		logger.WithPeer(p.runID, pending.Index, pending.Address.String()).Warn("attempt pending")
	}

	spans := aggregator.Summarize(rs)
	rep := report.New(p.runID, rs, spans,
		report.WithHost(p.host),
		report.WithStartedAt(startedAt),
		report.WithElapsed(time.Since(startedAt)))
	log.Infof("run finished: attempted %d, started %d, succeeded %d, failed %d, pending %d",
		rep.Attempted, rep.Started, rep.Succeeded, rep.Failed, rep.Pending)

	if path := p.config.Report.CSV; path != "" {
		if err := writeCSV(path, rep); err != nil {
			log.Errorf("write timeline failed: %s", err)
			return rep, err
		}
		log.Infof("timeline written to %s", path)
	}

	return rep, nil
}

// fetch asks the source for addresses, retrying with backoff.
func (p *Prober) fetch(ctx context.Context) ([]peer.Address, error) {
	cfg := p.config.Registry
	log := logger.WithRegistry(p.runID, p.sourceName)

	res, _, err := retry.Run(ctx, cfg.RetryInitBackoff, cfg.RetryMaxBackoff, cfg.RetryAttempts, func() (any, bool, error) {
		metrics.RegistryFetchCount.Inc()
		addrs, err := p.source.Fetch(ctx)
		if err != nil {
			metrics.RegistryFetchFailureCount.Inc()
			log.Warnf("fetch addresses attempt failed: %s", err)
			return nil, ctx.Err() != nil, err
		}

		return addrs, false, nil
	})
	if err != nil {
		if !errors.Is(err, registry.ErrRegistryUnavailable) {
			err = fmt.Errorf("%w: %v", registry.ErrRegistryUnavailable, err)
		}
		return nil, err
	}

	addrs, _ := res.([]peer.Address)
	return addrs, nil
}

// observe is called by the scheduler collector for every published outcome.
func (p *Prober) observe(o scheduler.Outcome) {
	result := succeededLabel
	if !o.Succeeded {
		result = o.Kind.Name()
	}
	metrics.ProbeAttemptCount.WithLabelValues(result).Inc()
	metrics.ProbeAttemptDuration.WithLabelValues(result).Observe(o.Duration().Seconds())

	fields := []zap.Field{
		zap.String("runID", p.runID),
		zap.Int("index", o.Index),
		zap.String("address", o.Address.String()),
		zap.String("result", result),
		zap.Time("startTime", o.StartTime),
		zap.Duration("cost", o.Duration()),
	}
	if o.Payload != nil {
		fields = append(fields, zap.String("userAgent", o.Payload.UserAgent), zap.Int32("startHeight", o.Payload.StartHeight))
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}
	logger.ProbeLogger.Info("attempt", fields...)

	log := logger.WithPeer(p.runID, o.Index, o.Address.String())
	if o.Succeeded {
		log.Debugf("attempt succeeded in %s", o.Duration())
	} else if o.Kind == types.FailureKindFault {
		log.Errorf("attempt faulted: %v", o.Err)
	} else {
		log.Infof("attempt failed with %s: %v", o.Kind, o.Err)
	}

	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func writeCSV(path string, rep *report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return rep.WriteCSV(f)
}
