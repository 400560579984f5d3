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

package dependency

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/mitchellh/mapstructure"
	"github.com/phayes/freeport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	logger "d7y.io/peerprobe/internal/dflog"
	"d7y.io/peerprobe/pkg/dfpath"
)

var cfgFile string

// InitCommandAndConfig initializes flags binding and common sub cmds.
// config is a pointer to configuration struct.
func InitCommandAndConfig(cmd *cobra.Command, useConfigFile bool, config any) {
	rootName := cmd.Root().Name()
	cobra.OnInitialize(func() { initConfig(useConfigFile, rootName, config) })

	if !cmd.HasParent() {
		// Add common cmds only on root cmd.
		cmd.AddCommand(VersionCmd)

		// Bind common flags.
		flags := cmd.PersistentFlags()
		flags.Bool("console", false, "whether logger output records to the stdout")
		flags.Bool("verbose", false, "whether logger use debug level")
		flags.Int("pprof-port", -1, "listen port for pprof and statsview, 0 represents random port")

		if err := viper.BindPFlags(flags); err != nil {
			panic(fmt.Errorf("bind common flags to viper: %w", err))
		}
	}

	if useConfigFile {
		// Add config flag.
		flags := cmd.PersistentFlags()
		flags.StringVarP(&cfgFile, "config", "f", "", fmt.Sprintf("the path of configuration file with yaml extension name, default is %s, it can also be set by env var: %s",
			filepath.Join(dfpath.DefaultConfigDir, rootName+".yaml"), strings.ToUpper(rootName+"_config")))

		if err := viper.BindPFlag("config", flags.Lookup("config")); err != nil {
			panic(fmt.Errorf("bind config flag to viper: %w", err))
		}
	}
}

// BindFlags binds command flags to nested config keys, keyed by flag name.
func BindFlags(cmd *cobra.Command, keys map[string]string) {
	for name, key := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			panic(fmt.Errorf("flag %s is not defined", name))
		}

		if err := viper.BindPFlag(key, flag); err != nil {
			panic(fmt.Errorf("bind flag %s to viper: %w", name, err))
		}
	}
}

// InitMonitor starts the pprof and statsview server when pprofPort is not negative,
// the returned func stops it.
func InitMonitor(pprofPort int) func() {
	if pprofPort < 0 {
		return func() {}
	}

	// Enable go pprof and statsview.
	if pprofPort == 0 {
		pprofPort, _ = freeport.GetFreePort()
	}

	debugAddr := fmt.Sprintf("%s:%d", net.IPv4zero.String(), pprofPort)
	viewer.SetConfiguration(viewer.WithAddr(debugAddr))
	vm := statsview.New()

	logger.With("pprof", fmt.Sprintf("http://%s/debug/pprof", debugAddr),
		"statsview", fmt.Sprintf("http://%s/debug/statsview", debugAddr)).
		Infof("enable pprof at %s", debugAddr)

	go func() {
		if err := vm.Start(); err != nil && err != http.ErrServerClosed {
			logger.Warnf("serve pprof error: %v", err)
		}
	}()

	return func() { vm.Stop() }
}

// SetupQuitSignalHandler calls handler once on SIGINT or SIGTERM,
// a second signal exits the process.
func SetupQuitSignalHandler(handler func()) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s := <-signals
		logger.Infof("receive %s signal, stopping", s)
		handler()

		s = <-signals
		logger.Warnf("receive %s signal again, exit", s)
		os.Exit(1)
	}()
}

func initConfig(useConfigFile bool, name string, config any) {
	viper.SetEnvPrefix(name)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Use config file and read once.
	if useConfigFile {
		if file := viper.GetString("config"); file != "" {
			viper.SetConfigFile(file)
		} else {
			viper.AddConfigPath(dfpath.DefaultConfigDir)
			viper.SetConfigName(name)
			viper.SetConfigType("yaml")
		}

		// If a config file is found, read it in.
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				panic(fmt.Errorf("viper read config: %w", err))
			}
		}
	}

	if err := viper.Unmarshal(config, initDecoderConfig); err != nil {
		panic(fmt.Errorf("unmarshal config to struct: %w", err))
	}
}

func initDecoderConfig(dc *mapstructure.DecoderConfig) {
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
