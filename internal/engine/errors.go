// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

// ErrorKind is the taxonomy a call.failed event's error carries, richer
// than tool.ErrorKind's
// bare retryable/permanent split: the worker computes this from the tool's
// classification plus any HTTP/SQL code it can read off the failure.
type ErrorKind string

const (
	ErrConnection  ErrorKind = "connection"
	ErrTimeout     ErrorKind = "timeout"
	ErrRateLimit   ErrorKind = "rate_limit"
	ErrServer      ErrorKind = "server_error"
	ErrAuth        ErrorKind = "auth"
	ErrNotFound    ErrorKind = "not_found"
	ErrClient      ErrorKind = "client_error"
	ErrSchema      ErrorKind = "schema"
	ErrParse       ErrorKind = "parse"
	ErrDBDeadlock  ErrorKind = "db_deadlock"
	ErrDBConn      ErrorKind = "db_connection"
	ErrDBTimeout   ErrorKind = "db_timeout"
	ErrDBConstraint ErrorKind = "db_constraint"
	ErrProtocol    ErrorKind = "protocol" // engine-internal: event ordering conflict, schema violation
	ErrUnknown     ErrorKind = "unknown"
)

// DefaultRetryable reports whether kind is retryable absent a step-level
// retry_when override — auth/not_found/schema/parse/client_error/protocol
// never retry on their own; everything transient does.
func DefaultRetryable(kind ErrorKind) bool {
	switch kind {
	case ErrAuth, ErrNotFound, ErrSchema, ErrParse, ErrClient, ErrProtocol, ErrDBConstraint:
		return false
	default:
		return true
	}
}
