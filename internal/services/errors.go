package services

import "errors"

var (
	ErrSessionActive    = errors.New("an opening is already in progress")
	ErrNothingToOpen    = errors.New("nothing to open")
	ErrBatchTooLarge    = errors.New("too many boxes in one batch")
	ErrDuplicateTarget  = errors.New("box listed more than once")
	ErrNoActiveSession  = errors.New("no opening in progress")
	ErrAlreadySubmitted = errors.New("cannot cancel: already submitted")
	ErrCancelled        = errors.New("opening cancelled")
	ErrNotDismissable   = errors.New("nothing to dismiss")
	ErrCacheMiss        = errors.New("cache miss")
)
