package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

var (
	// ErrLedgerNotFound is returned when the ledger file does not exist
	ErrLedgerNotFound = fmt.Errorf("ledger not found: %w", fs.ErrNotExist)
	// ErrEmptyLedger is returned when the ledger has no rows
	ErrEmptyLedger = errors.New("ledger is empty")
	// ErrIndexOutOfRange is returned for row lookups past the end of the ledger
	ErrIndexOutOfRange = errors.New("row index out of range")
	// ErrInputNotFound is returned when the link input cannot be located
	ErrInputNotFound = errors.New("link input not found")
	// ErrControlNotFound is returned by FindControl when no strategy matches
	ErrControlNotFound = errors.New("control not found")
	// ErrPollExhausted is returned when a poll runs out of attempts
	ErrPollExhausted = errors.New("poll attempts exhausted")
	// ErrNoSession is returned when an operation needs a live session
	ErrNoSession = errors.New("no live session")
)

// LaunchError reports that the browser could not be started
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching browser: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IncompleteFormError lists the registration controls that are missing
type IncompleteFormError struct {
	Missing []string
}

func (e *IncompleteFormError) Error() string {
	return fmt.Sprintf("registration form incomplete, missing: %s", strings.Join(e.Missing, ", "))
}
