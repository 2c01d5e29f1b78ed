// Package retries provides attempt schedules for re-running failing
// operations, used by the runtime's retry decorators.
package retries

import (
	"context"
	"math/rand"
	"time"

	"github.com/gokit/errors"
)

// random is used to generate pseudo-random numbers.
var random = rand.New(rand.NewSource(time.Now().UnixNano()))

// DoUntil runs giving function until it returns nil or the attempts
// are exhausted, sleeping the backoff duration for the finished
// attempt in between. A canceled context ends the schedule early with
// it's error. The last function error is returned when every attempt
// fails.
func DoUntil(ctx context.Context, attempts int, backoff func(int) time.Duration, fx func(int) error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fx(attempt); err == nil {
			return nil
		}

		if attempt == attempts-1 || backoff == nil {
			continue
		}

		wait := backoff(attempt)
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.WrapOnly(ctx.Err())
		}
	}
	return err
}

//***************************************************************
// BackOff Generators
//
// Taken from the ff:
// 1. https://github.com/sethgrid/pester
// 2. https://github.com/cenkalti/backoff
// 3. https://github.com/hashicorp/go-retryablehttp
//***************************************************************

// LinearBackOff returns increasing durations, each a second longer than the last.
func LinearBackOff(i int) time.Duration {
	return time.Duration(i+1) * time.Second
}

// ExponentialBackOff returns ever increasing backoffs by a power of 2.
func ExponentialBackOff(i int) time.Duration {
	return time.Duration(1<<uint(i)) * time.Second
}

// ExponentialJitterBackOff returns ever increasing backoffs by a power of 2
// with +/- 0-33% to prevent synchronized requests.
func ExponentialJitterBackOff(i int) time.Duration {
	return JitterDuration(int(1 << uint(i)))
}

// LinearJitterBackOff returns increasing durations, each a second longer than the last
// with +/- 0-33% to prevent synchronized requests.
func LinearJitterBackOff(i int) time.Duration {
	return JitterDuration(i + 1)
}

// FixedBackOff returns the same duration for every attempt.
func FixedBackOff(wait time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return wait
	}
}

// JitterDuration keeps the +/- 0-33% logic in one place.
func JitterDuration(i int) time.Duration {
	ms := i * 1000
	maxJitter := ms / 3

	// ms ± rand
	ms += random.Intn(2*maxJitter) - maxJitter

	// a jitter of 0 messes up the time.Tick chan
	if ms <= 0 {
		ms = 1
	}

	return time.Duration(ms) * time.Millisecond
}
