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

package tool

import "fmt"

// ErrorKind classifies a tool's failure so the engine's retry policy can
// decide whether to retry or fail the step permanently.
type ErrorKind string

const (
	// KindRetryable is transient: timeouts, connection resets, 5xx/429
	// responses. The engine retries per the step's Retry policy.
	KindRetryable ErrorKind = "retryable"
	// KindPermanent will not succeed on retry: validation errors, 4xx
	// (other than 429), malformed input. The engine fails the step.
	KindPermanent ErrorKind = "permanent"
)

// Error wraps a tool failure with its retry classification.
type Error struct {
	Kind    ErrorKind
	NodeType string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool(%s): %s: %v", e.NodeType, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as a KindRetryable Error.
func Retryable(nodeType string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRetryable, NodeType: nodeType, Err: err}
}

// Permanent wraps err as a KindPermanent Error.
func Permanent(nodeType string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, NodeType: nodeType, Err: err}
}

// IsRetryable reports whether err should trigger the step's retry policy.
// An error not wrapped as *Error defaults to retryable, matching the
// teacher's own conservative default for unclassified tool failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if as(err, &te) {
		return te.Kind == KindRetryable
	}
	return true
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
