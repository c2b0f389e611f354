// Copyright (c) 2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backoff

import (
	"time"
)

const (
	// Done is returned by NextBackOff when no retries are left.
	Done time.Duration = -1
)

// Retrier hands out the delay before each retry.
type Retrier interface {
	NextBackOff() time.Duration
}

// NewRetrier is used for creating a new instance of Retrier
func NewRetrier(policy RetryPolicy) Retrier {
	return &retrierImpl{
		policy:         policy,
		currentAttempt: 1,
	}
}

type retrierImpl struct {
	policy         RetryPolicy
	currentAttempt int
}

// NextBackOff returns the next delay interval.
func (r *retrierImpl) NextBackOff() time.Duration {
	nextInterval := r.policy.CalculateNextDelay(r.currentAttempt)

	r.currentAttempt++
	return nextInterval
}

// RetryPolicy is interface for defining retry policy.
type RetryPolicy interface {
	CalculateNextDelay(attempts int) time.Duration
}

// NewExponentialPolicy doubles the delay after every retry, starting at initial and never
// exceeding ceiling.
func NewExponentialPolicy(maxRetries int, initial, ceiling time.Duration) RetryPolicy {
	if ceiling < initial {
		ceiling = initial
	}
	return &exponentialPolicy{
		maxRetries: maxRetries,
		initial:    initial,
		ceiling:    ceiling,
	}
}

type exponentialPolicy struct {
	maxRetries int
	initial    time.Duration
	ceiling    time.Duration
}

func (p *exponentialPolicy) CalculateNextDelay(attempts int) time.Duration {
	if attempts > p.maxRetries {
		return Done
	}
	d := p.initial
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.ceiling {
			return p.ceiling
		}
	}
	return d
}
