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

package api

// Level classifies a log event.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelError
	// LevelNew starts a new section of the log, e.g. a new negotiation.
	LevelNew
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelNew:
		return "new"
	default:
		return "unknown"
	}
}

// Logger is the leveled sink every component reports to. Implementations must not assume
// a console is attached.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
}
