package graph

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// retryPolicy retries writes that fail with transient errors (deadlocks,
// leader switches). Concurrent MERGE batches can deadlock under contention,
// so the exhaustion error advises dropping back to serial loading.
type retryPolicy struct {
	maxRetries int
	delay      time.Duration
	retryable  func(error) bool
	sleep      func(time.Duration)
}

func newRetryPolicy(maxRetries int, delay time.Duration) retryPolicy {
	return retryPolicy{
		maxRetries: maxRetries,
		delay:      delay,
		retryable:  neo4j.IsRetryable,
		sleep:      time.Sleep,
	}
}

func (p retryPolicy) do(work func() error) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			p.sleep(p.delay)
		}
		if err = work(); err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts, consider running without parallel loading: %w", p.maxRetries+1, err)
}
