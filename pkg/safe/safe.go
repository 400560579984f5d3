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

package safe

import (
	"errors"
	"fmt"
	"runtime/debug"

	logger "d7y.io/peerprobe/internal/dflog"
)

// ErrPanic is wrapped by the error of a recovered panic.
var ErrPanic = errors.New("panic")

// Call runs f and returns the recovered panic of f as an error.
func Call(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			logger.Debugf("recovered from panic %v, call stack:\n%s", r, debug.Stack())
		}
	}()

	f()
	return nil
}
