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

import (
	"math"
	"math/rand"
	"time"

	"github.com/noetl/noetl/internal/playbook"
)

// ComputeBackoff computes the retry delay:
// delay = min(initial * multiplier^(attempt-1), max_delay), jittered by a
// uniform[0.5, 1.5] factor when Jitter > 0. attempt is the attempt number
// that just failed (1-based); the delay precedes the next attempt.
func ComputeBackoff(b playbook.Backoff, attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(base) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.Jitter > 0 {
		// uniform[0.5, 1.5].
		factor := 0.5 + rand.Float64()
		delay *= factor
	}
	return time.Duration(delay)
}

// ShouldRetry evaluates a step's on-error policy for a failed attempt:
// retry if attempt < MaxAttempts and either the error kind defaults to
// retryable (absent an explicit on_error allow-list) or is named in
// retry.OnError, unless stopWhen (already evaluated by the caller) vetoes
// it.
func ShouldRetry(retry *playbook.Retry, attempt int, kind ErrorKind, stopWhenTruthy bool) bool {
	if retry == nil {
		return false
	}
	if stopWhenTruthy {
		return false
	}
	maxAttempts := retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if attempt >= maxAttempts {
		return false
	}
	if len(retry.OnError) > 0 {
		for _, k := range retry.OnError {
			if ErrorKind(k) == kind {
				return true
			}
		}
		return false
	}
	return DefaultRetryable(kind)
}
