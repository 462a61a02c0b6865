package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRetry marks an error returned through Retry.
	ErrRetry = errors.New("task retry requested")

	ErrSoftTimeLimit = errors.New("soft time limit exceeded")
	ErrHardTimeLimit = errors.New("hard time limit exceeded")
)

// RetryError asks the worker to run the task again after Countdown. A zero
// Countdown uses the task's RetryDelay.
type RetryError struct {
	Err       error
	Countdown time.Duration
}

func (e *RetryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retry in %s", e.Countdown)
	}
	return fmt.Sprintf("retry in %s: %v", e.Countdown, e.Err)
}

func (e *RetryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRetry}
	}
	return []error{ErrRetry, e.Err}
}

func Retry(err error, countdown time.Duration) error {
	return &RetryError{Err: err, Countdown: countdown}
}
