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

package types

const (
	// MetricsNamespace is the namespace of prometheus metrics.
	MetricsNamespace = "peerprobe"

	// ProberMetricsName is the subsystem name of prober metrics.
	ProberMetricsName = "prober"

	// ProberName is the name of the prober binary.
	ProberName = "peerprobe"
)

// FailureKind tags why a probe attempt did not succeed.
type FailureKind int

const (
	// FailureKindNone marks a successful attempt.
	FailureKindNone FailureKind = iota

	// FailureKindConnectTimeout means the transport connection was not
	// established within the attempt timeout.
	FailureKindConnectTimeout

	// FailureKindConnectFailed means the dial failed before the timeout,
	// e.g. connection refused or host unreachable.
	FailureKindConnectFailed

	// FailureKindHandshakeFailed means the connection was established but
	// writing the request, reading or decoding the response failed.
	FailureKindHandshakeFailed

	// FailureKindFault means the attempt panicked and was recovered.
	FailureKindFault

	// FailureKindCanceled means the attempt was abandoned because the run
	// was cancelled or its overall deadline expired.
	FailureKindCanceled
)

const (
	// FailureKindNoneName is the name of successful attempts.
	FailureKindNoneName = "none"

	// FailureKindConnectTimeoutName is the name of connect timeouts.
	FailureKindConnectTimeoutName = "connect_timeout"

	// FailureKindConnectFailedName is the name of connect failures.
	FailureKindConnectFailedName = "connect_failed"

	// FailureKindHandshakeFailedName is the name of handshake failures.
	FailureKindHandshakeFailedName = "handshake_failed"

	// FailureKindFaultName is the name of recovered faults.
	FailureKindFaultName = "fault"

	// FailureKindCanceledName is the name of cancelled attempts.
	FailureKindCanceledName = "canceled"
)

// FailureKinds lists every failure kind of a finished attempt, in report order.
var FailureKinds = []FailureKind{
	FailureKindConnectTimeout,
	FailureKindConnectFailed,
	FailureKindHandshakeFailed,
	FailureKindFault,
}

// Name returns the name of failure kind.
func (k FailureKind) Name() string {
	switch k {
	case FailureKindConnectTimeout:
		return FailureKindConnectTimeoutName
	case FailureKindConnectFailed:
		return FailureKindConnectFailedName
	case FailureKindHandshakeFailed:
		return FailureKindHandshakeFailedName
	case FailureKindFault:
		return FailureKindFaultName
	case FailureKindCanceled:
		return FailureKindCanceledName
	}

	return FailureKindNoneName
}

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	return k.Name()
}
