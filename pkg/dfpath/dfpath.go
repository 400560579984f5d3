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

package dfpath

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

var (
	DefaultWorkHome     = filepath.Join(homeDir(), ".peerprobe")
	DefaultWorkHomeMode = fs.FileMode(0700)
	DefaultConfigDir    = filepath.Join(DefaultWorkHome, "config")
	DefaultLogDir       = filepath.Join(DefaultWorkHome, "logs")
	DefaultDataDir      = filepath.Join(DefaultWorkHome, "data")
)

// Dfpath holds the directories used by a run.
type Dfpath interface {
	WorkHome() string
	WorkHomeMode() fs.FileMode
	ConfigDir() string
	LogDir() string
	DataDir() string
}

type dfpath struct {
	workHome     string
	workHomeMode fs.FileMode
	configDir    string
	logDir       string
	dataDir      string
}

// Option is a functional option for configuring the dfpath.
type Option func(d *dfpath)

// WithWorkHome set the workhome directory. Directories that are not set
// explicitly are placed under it.
func WithWorkHome(dir string) Option {
	return func(d *dfpath) {
		d.workHome = dir
	}
}

// WithWorkHomeMode sets the workHome directory mode.
func WithWorkHomeMode(mode fs.FileMode) Option {
	return func(d *dfpath) {
		d.workHomeMode = mode
	}
}

// WithLogDir set the log directory.
func WithLogDir(dir string) Option {
	return func(d *dfpath) {
		d.logDir = dir
	}
}

// WithDataDir set the directory of exported reports.
func WithDataDir(dir string) Option {
	return func(d *dfpath) {
		d.dataDir = dir
	}
}

// New returns a new dfpath interface and creates its directories.
func New(options ...Option) (Dfpath, error) {
	d := &dfpath{
		workHome:     DefaultWorkHome,
		workHomeMode: DefaultWorkHomeMode,
	}

	for _, opt := range options {
		opt(d)
	}

	if d.configDir == "" {
		d.configDir = filepath.Join(d.workHome, "config")
	}

	if d.logDir == "" {
		d.logDir = filepath.Join(d.workHome, "logs")
	}

	if d.dataDir == "" {
		d.dataDir = filepath.Join(d.workHome, "data")
	}

	var result *multierror.Error
	if err := os.MkdirAll(d.workHome, d.workHomeMode); err != nil {
		result = multierror.Append(result, err)
	}

	for _, dir := range []string{d.logDir, d.dataDir} {
		if err := os.MkdirAll(dir, fs.FileMode(0700)); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *dfpath) WorkHome() string {
	return d.workHome
}

func (d *dfpath) WorkHomeMode() fs.FileMode {
	return d.workHomeMode
}

func (d *dfpath) ConfigDir() string {
	return d.configDir
}

func (d *dfpath) LogDir() string {
	return d.logDir
}

func (d *dfpath) DataDir() string {
	return d.dataDir
}

func homeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}

	return os.TempDir()
}
