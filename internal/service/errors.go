package service

import "errors"

var (
	ErrSessionNotFound = errors.New("booking session not found")
	// ErrSubmissionFailed hides the store failure details from the visitor.
	ErrSubmissionFailed = errors.New("submission failed")
)
