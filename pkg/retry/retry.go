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

package retry

import (
	"context"
	"time"

	"d7y.io/peerprobe/pkg/math"
)

// DefaultBackoffFactor is the growth factor of the backoff between attempts.
const DefaultBackoffFactor = 2.0

// Run calls f until it returns a nil error, asks to cancel or maxAttempts is
// reached. The wait between attempts is jittered exponential backoff and is
// cut short when ctx is done.
func Run(ctx context.Context,
	initBackoff time.Duration,
	maxBackoff time.Duration,
	maxAttempts int,
	f func() (data any, cancel bool, err error)) (any, bool, error) {
	var (
		res    any
		cancel bool
		cause  error
	)
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			timer := time.NewTimer(math.Backoff(initBackoff, maxBackoff, DefaultBackoffFactor, i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, cancel, ctx.Err()
			case <-timer.C:
			}
		}

		res, cancel, cause = f()
		if cause == nil || cancel {
			break
		}
	}

	return res, cancel, cause
}
