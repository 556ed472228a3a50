package services

import (
	"context"
	"sync"
)

// CancellationController guards the point of no return of one opening.
// Cancelling and locking in are mutually exclusive: whichever happens first wins.
type CancellationController struct {
	mu                sync.Mutex
	ctx               context.Context
	cancel            context.CancelCauseFunc
	submissionStarted bool
	cancelled         bool
}

func NewCancellationController(parent context.Context) *CancellationController {
	ctx, cancel := context.WithCancelCause(parent)
	return &CancellationController{ctx: ctx, cancel: cancel}
}

// Context is the cancellation token handed to every pre-submission wait.
func (c *CancellationController) Context() context.Context {
	return c.ctx
}

func (c *CancellationController) RequestCancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submissionStarted {
		return ErrAlreadySubmitted
	}
	if !c.cancelled {
		c.cancelled = true
		c.cancel(ErrCancelled)
	}
	return nil
}

// LockIn marks the submission as started. It fails once a cancel has been accepted.
func (c *CancellationController) LockIn() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled {
		return ErrCancelled
	}
	c.submissionStarted = true
	return nil
}

func (c *CancellationController) SubmissionStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissionStarted
}

func (c *CancellationController) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Release frees the token once the flow is over. It does not count as a cancel.
func (c *CancellationController) Release() {
	c.cancel(nil)
}
