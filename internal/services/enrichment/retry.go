package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/pagr/internal/models"
)

// ErrThrottleCapExceeded is returned when the provider asks for a longer
// wait than max_throttle_wait allows
var ErrThrottleCapExceeded = errors.New("throttle wait exceeds cap")

// ErrPollTimeout is returned when a price calculation is still pending at
// the end of the poll budget
var ErrPollTimeout = errors.New("price calculation timed out")

// throttled is implemented by provider errors that advertise a wait
type throttled interface {
	ThrottleWait() time.Duration
}

// transient is implemented by provider errors that know whether a retry
// may succeed
type transient interface {
	Transient() bool
}

// call runs fn under the rate limiter and an in-flight slot, retrying
// transient failures with exponential backoff. It returns the number of
// attempts made.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.acquire(ctx); err != nil {
			return attempt - 1, err
		}
		err := fn(ctx)
		s.release()

		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		lastErr = err

		wait, retry, err := s.retryPolicy(err, attempt)
		if !retry {
			return attempt, err
		}
		if attempt == s.maxAttempts {
			break
		}

		s.logger.Debug().
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(lastErr).
			Msg("Provider request failed, retrying")

		if err := sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}
	return s.maxAttempts, fmt.Errorf("giving up after %d attempts: %w", s.maxAttempts, lastErr)
}

// retryPolicy decides whether err is worth another attempt and how long to
// wait first
func (s *Service) retryPolicy(err error, attempt int) (time.Duration, bool, error) {
	var th throttled
	if errors.As(err, &th) {
		wait := th.ThrottleWait()
		if wait > s.maxThrottleWait {
			return 0, false, fmt.Errorf("%w: provider asked for %s, cap is %s", ErrThrottleCapExceeded, wait, s.maxThrottleWait)
		}
		if wait > 0 {
			return wait, true, nil
		}
		return s.backoff(attempt), true, nil
	}

	if errors.Is(err, models.ErrNotFound) {
		return 0, false, err
	}
	var tr transient
	if errors.As(err, &tr) && !tr.Transient() {
		return 0, false, err
	}
	return s.backoff(attempt), true, nil
}

// backoff returns initial_backoff * 2^(attempt-1), capped at max_backoff
func (s *Service) backoff(attempt int) time.Duration {
	d := s.initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	if d > s.maxBackoff {
		return s.maxBackoff
	}
	return d
}

func (s *Service) acquire(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() {
	<-s.slots
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll waits on a pending price calculation. The interval grows by the
// poll multiplier up to poll_max_interval, is raised to any minimum the
// provider suggests, and the whole wait is bounded by poll_timeout.
func (s *Service) poll(ctx context.Context, pending *models.PriceResponse) (*models.PriceResponse, int, error) {
	jobID := pending.JobID
	start := time.Now()
	interval := s.pollInitial
	resp := pending
	attempts := 0

	for {
		wait := interval
		if suggested := resp.MinPollInterval; suggested > wait {
			wait = suggested
			if wait > s.pollMaxInterval {
				wait = s.pollMaxInterval
			}
		}
		if time.Since(start)+wait > s.pollTimeout {
			return nil, attempts, fmt.Errorf("%w: job %s still pending after %s", ErrPollTimeout, jobID, s.pollTimeout)
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, attempts, err
		}

		var next *models.PriceResponse
		n, err := s.call(ctx, func(ctx context.Context) error {
			r, err := s.provider.PollPrices(ctx, jobID)
			next = r
			return err
		})
		attempts += n
		if err != nil {
			return nil, attempts, err
		}
		if next == nil {
			return nil, attempts, fmt.Errorf("empty poll response for job %s", jobID)
		}
		if !next.Pending {
			return next, attempts, nil
		}

		s.logger.Debug().Str("job", jobID).Dur("elapsed", time.Since(start)).Msg("Price calculation still pending")

		resp = next
		interval = time.Duration(float64(interval) * s.pollMultiplier)
		if interval > s.pollMaxInterval {
			interval = s.pollMaxInterval
		}
	}
}
