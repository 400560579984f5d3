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

package logger

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// CoreLogFileName is the file name of the core log.
	CoreLogFileName = "core.log"

	// ProbeLogFileName is the file name of the per-attempt log.
	ProbeLogFileName = "probe.log"
)

const (
	defaultRotateMaxSize    = 200
	defaultRotateMaxBackups = 10
	defaultRotateMaxAge     = 7
)

const (
	encodeTimeFormat = "2006-01-02 15:04:05.000"
)

// LogRotateConfig is the rotation policy of file loggers.
type LogRotateConfig struct {
	// MaxSize is the maximum size in megabytes of a log file before it gets rotated.
	MaxSize int `yaml:"maxSize" mapstructure:"maxSize"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `yaml:"maxAge" mapstructure:"maxAge"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `yaml:"maxBackups" mapstructure:"maxBackups"`

	// Compress rotated files with gzip.
	Compress bool `yaml:"compress" mapstructure:"compress"`
}

// DefaultLogRotateConfig returns the default rotation policy.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{
		MaxSize:    defaultRotateMaxSize,
		MaxAge:     defaultRotateMaxAge,
		MaxBackups: defaultRotateMaxBackups,
	}
}

type logInitMeta struct {
	fileName             string
	stats                bool
	setSugaredLoggerFunc func(*zap.SugaredLogger)
	setLoggerFunc        func(log *zap.Logger)
}

// InitProber initializes the loggers of a run. With console set, every
// logger writes to stderr, otherwise JSON files are written under dir.
func InitProber(verbose, console bool, dir string, rotate LogRotateConfig) error {
	if console {
		return createConsoleLogger(verbose)
	}

	var meta = []logInitMeta{
		{
			fileName:             CoreLogFileName,
			setSugaredLoggerFunc: SetCoreLogger,
		},
		{
			fileName:      ProbeLogFileName,
			stats:         true,
			setLoggerFunc: SetProbeLogger,
		},
	}

	return createFileLogger(verbose, meta, filepath.Join(dir, "peerprobe"), rotate)
}

func createConsoleLogger(verbose bool) error {
	levels = nil
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	log, err := config.Build(zap.AddCaller(), zap.AddStacktrace(zap.WarnLevel), zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	SetCoreLogger(log.Sugar())
	SetProbeLogger(zap.NewNop())
	levels = append(levels, config.Level)
	return nil
}

func createFileLogger(verbose bool, meta []logInitMeta, logDir string, rotate LogRotateConfig) error {
	levels = nil
	for _, m := range meta {
		log, level := CreateLogger(filepath.Join(logDir, m.fileName), verbose, m.stats, rotate)
		if m.setSugaredLoggerFunc != nil {
			m.setSugaredLoggerFunc(log.Sugar())
		} else {
			m.setLoggerFunc(log)
		}

		levels = append(levels, level)
	}

	return nil
}

// CreateLogger returns a JSON logger writing to a rotated file at filePath.
// Stats loggers carry neither caller nor stacktrace.
func CreateLogger(filePath string, verbose, stats bool, rotate LogRotateConfig) (*zap.Logger, zap.AtomicLevel) {
	if rotate.MaxSize <= 0 {
		rotate.MaxSize = defaultRotateMaxSize
	}

	syncer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    rotate.MaxSize,
		MaxAge:     rotate.MaxAge,
		MaxBackups: rotate.MaxBackups,
		LocalTime:  true,
		Compress:   rotate.Compress,
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(encodeTimeFormat)

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		level.SetLevel(zap.DebugLevel)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		syncer,
		level,
	)

	var opts []zap.Option
	if !stats {
		opts = append(opts, zap.AddCaller(), zap.AddStacktrace(zap.WarnLevel), zap.AddCallerSkip(1))
	}

	return zap.New(core, opts...), level
}
