package models

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrScannerNotReady = errors.New("scanner not ready")
	ErrTaskNotFound    = errors.New("task not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrCancelled       = errors.New("task cancelled")
	ErrQueueClosed     = errors.New("queue closed")
	ErrQueueFull       = errors.New("queue full")
	ErrUnknownPlatform = errors.New("unknown platform")
)
