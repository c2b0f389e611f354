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
	"context"
	"time"
)

// Retriable is a function returning an error which can be retried.
type Retriable func(ctx context.Context) error

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retry runs f until it succeeds, returns an error retryable rejects, or the policy runs
// out. It returns the number of calls made and the last error.
func Retry(ctx context.Context, f Retriable, p RetryPolicy, retryable func(error) bool, sleep Sleeper) (int, error) {
	r := NewRetrier(p)
	tries := 0
	for {
		tries++
		err := f(ctx)
		if err == nil {
			return tries, nil
		}
		if retryable != nil && !retryable(err) {
			return tries, err
		}

		d := r.NextBackOff()
		if d == Done {
			return tries, err
		}
		if serr := sleep(ctx, d); serr != nil {
			return tries, err
		}
	}
}
