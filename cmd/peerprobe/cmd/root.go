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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"d7y.io/peerprobe/cmd/dependency"
	logger "d7y.io/peerprobe/internal/dflog"
	"d7y.io/peerprobe/pkg/dfpath"
	"d7y.io/peerprobe/prober"
	"d7y.io/peerprobe/prober/config"
	"d7y.io/peerprobe/version"
)

var (
	cfg *config.Config
)

// flagKeys maps command flags to config keys.
var flagKeys = map[string]string{
	"workhome":      "workHome",
	"workers":       "probe.workers",
	"timeout":       "probe.timeout",
	"deadline":      "probe.deadline",
	"limit":         "probe.limit",
	"rate-limit":    "probe.rateLimit",
	"showbar":       "probe.showBar",
	"registry-url":  "registry.url",
	"registry-file": "registry.file",
	"peer":          "registry.peers",
	"network":       "network.name",
	"dial":          "network.dial",
	"csv":           "report.csv",
	"metrics":       "metrics.enable",
	"metrics-addr":  "metrics.addr",
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "peerprobe",
	Short: "probe the connectivity of public bitcoin peers",
	Long: `peerprobe fetches the peer addresses of a node registry, performs one version handshake
with every peer under a bounded number of concurrent workers and reports which peers answered,
how long they took and why the others failed.`,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate config.
		if err := cfg.Validate(); err != nil {
			return err
		}

		// Initialize dfpath.
		d, err := initDfpath(cfg)
		if err != nil {
			return err
		}

		// Initialize logger.
		if err := logger.InitProber(cfg.Verbose, cfg.Console, d.LogDir(), cfg.Log.LogRotateConfig); err != nil {
			return fmt.Errorf("init prober logger: %w", err)
		}
		defer logger.Sync()

		return runProber(d, cmd.OutOrStdout())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func init() {
	// Initialize default prober config.
	cfg = config.New()

	flags := rootCmd.Flags()
	flags.String("workhome", cfg.WorkHome, "work home directory of logs, data and lock file, default is "+dfpath.DefaultWorkHome)
	flags.Int("workers", cfg.Probe.Workers, "number of concurrent handshake attempts")
	flags.Duration("timeout", cfg.Probe.Timeout, "timeout of one handshake attempt")
	flags.Duration("deadline", cfg.Probe.Deadline, "deadline of the whole run, 0 means no deadline")
	flags.Int("limit", cfg.Probe.Limit, "probe at most the first limit addresses, 0 means no limit")
	flags.Float64("rate-limit", cfg.Probe.RateLimit, "number of dials started per second, 0 means no limit")
	flags.Bool("showbar", cfg.Probe.ShowBar, "show progress bar")
	flags.String("registry-url", cfg.Registry.URL, "url of the latest registry snapshot")
	flags.String("registry-file", cfg.Registry.File, "registry snapshot saved on disk, it takes precedence over registry-url")
	flags.StringSlice("peer", cfg.Registry.Peers, "explicit peer address, can be repeated, it takes precedence over the registry")
	flags.String("network", cfg.Network.Name, "network profile, one of mainnet, testnet3, regtest and signet")
	flags.String("dial", cfg.Network.Dial, "dial network, one of tcp, tcp4 and tcp6")
	flags.String("csv", cfg.Report.CSV, "export the timeline of succeeded attempts to a csv file")
	flags.Bool("metrics", cfg.Metrics.Enable, "serve prometheus metrics during the run")
	flags.String("metrics-addr", cfg.Metrics.Addr, "listen address of the metrics server")

	// Initialize command and config.
	dependency.InitCommandAndConfig(rootCmd, true, cfg)
	dependency.BindFlags(rootCmd, flagKeys)
}

func initDfpath(cfg *config.Config) (dfpath.Dfpath, error) {
	var options []dfpath.Option
	if cfg.WorkHome != "" {
		options = append(options, dfpath.WithWorkHome(cfg.WorkHome))
	}

	if cfg.Log.Dir != "" {
		options = append(options, dfpath.WithLogDir(cfg.Log.Dir))
	}

	return dfpath.New(options...)
}

func runProber(d dfpath.Dfpath, out io.Writer) error {
	logger.Infof("version:\n%s", version.Version())

	ff := dependency.InitMonitor(cfg.PProfPort)
	defer ff()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dependency.SetupQuitSignalHandler(cancel)

	p, err := prober.New(cfg, d)
	if err != nil {
		return err
	}

	p.Start()
	defer p.Stop()

	rep, err := p.Run(ctx)
	if rep != nil {
		if err := rep.WriteText(out); err != nil {
			logger.Errorf("write report failed: %s", err)
		}
	}

	return err
}
