/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logging provides the default leveled sink for the cosimulation core, backed by logrus.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/srediag/ffd-cosim/api"
)

// EnvLogLevel overrides the default level ("debug", "info", "warn", "error").
const EnvLogLevel = "FFDCOSIM_LOG_LEVEL"

var defaultLevel = logrus.InfoLevel

func init() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		if l, err := logrus.ParseLevel(v); err == nil {
			defaultLevel = l
		}
	}
}

// Logger adapts a logrus entry to api.Logger.
type Logger struct {
	entry *logrus.Entry
}

var _ api.Logger = (*Logger)(nil)

// New returns a text logger writing to out. A nil out discards everything.
func New(out io.Writer) *Logger {
	l := logrus.New()
	if out == nil {
		out = io.Discard
	}
	l.SetOutput(out)
	l.SetLevel(defaultLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: out != os.Stdout && out != os.Stderr})
	return &Logger{entry: logrus.NewEntry(l)}
}

// SetLogLevel changes the level of the underlying logger.
func (l *Logger) SetLogLevel(level logrus.Level) {
	l.entry.Logger.SetLevel(level)
}

// WithField returns a logger that attaches key=value to every event.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Logf formats the message for this call only and hands it to logrus.
func (l *Logger) Logf(level api.Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case api.LevelError:
		l.entry.Error(msg)
	case api.LevelWarning:
		l.entry.Warn(msg)
	case api.LevelNew:
		l.entry.WithField("section", "new").Info(msg)
	default:
		l.entry.Debug(msg)
	}
}

type nopLogger struct{}

func (nopLogger) Logf(api.Level, string, ...interface{}) {}

// Nop returns a logger that drops every event.
func Nop() api.Logger { return nopLogger{} }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l api.Logger) api.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
