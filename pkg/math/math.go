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

package math

import (
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Max returns the maximum of values.
func Max[T constraints.Ordered](values ...T) T {
	max := values[0]
	for _, value := range values[1:] {
		if value > max {
			max = value
		}
	}

	return max
}

// Min returns the minimum of values.
func Min[T constraints.Ordered](values ...T) T {
	min := values[0]
	for _, value := range values[1:] {
		if value < min {
			min = value
		}
	}

	return min
}

// Backoff returns the jittered exponential backoff before the given retry,
// counted from 1. The result lies in [initBackoff, maxBackoff].
func Backoff(initBackoff, maxBackoff time.Duration, factor float64, retry int) time.Duration {
	if maxBackoff < initBackoff {
		maxBackoff = initBackoff
	}

	ceil := float64(initBackoff) * math.Pow(factor, float64(Max(retry-1, 0)))
	if ceil > float64(maxBackoff) || math.IsInf(ceil, 0) {
		ceil = float64(maxBackoff)
	}

	if span := int64(ceil) - int64(initBackoff); span > 0 {
		return initBackoff + time.Duration(rand.Int63n(span+1))
	}

	return initBackoff
}
