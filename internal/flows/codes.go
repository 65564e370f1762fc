package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// codeIssue describes how one workflow stores a freshly generated code.
type codeIssue struct {
	attempts    int
	newCode     func() (int, error)
	save        func(context.Context, int) (bool, error)
	onCollision func()
	unavailable error
	exhausted   error
}

// issueCode generates codes until one can be stored without displacing a
// pending record, giving up after the configured number of attempts.
func issueCode(ctx context.Context, issue codeIssue) (int, error) {
	attempts := issue.attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		code, err := issue.newCode()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", issue.unavailable, err)
		}
		stored, err := issue.save(ctx, code)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", issue.unavailable, err)
		}
		if stored {
			return code, nil
		}
		issue.onCollision()
	}
	return 0, issue.exhausted
}

// restorePending puts a taken record back after a failure the user can
// retry from. It runs detached from ctx cancellation.
func restorePending(ctx context.Context, ttl time.Duration, restore func(context.Context, time.Duration) error) error {
	if ttl <= 0 || restore == nil {
		return nil
	}
	return restore(context.WithoutCancel(ctx), ttl)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
