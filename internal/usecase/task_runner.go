package usecase

import "context"

// TaskRunner runs side-channel work detached from the caller. Implementations
// must not hand the caller's context to the task.
type TaskRunner interface {
	Go(name string, task func(ctx context.Context) error)
}

// InlineRunner runs tasks synchronously on a background context and drops
// their errors. It is the fallback when no worker pool is wired.
type InlineRunner struct{}

func (InlineRunner) Go(_ string, task func(ctx context.Context) error) {
	_ = task(context.Background())
}
