package main

import "fmt"

// Exit codes.
const (
	exitGeneralError = 1
	exitFindings     = 2 // verify found problems
	exitBreaking     = 3 // diff found a selector change
)

// exitError carries a process exit code. A nil Err exits silently: the
// command already printed its report.
type exitError struct {
	Err  error
	Code int
}

func (e *exitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *exitError) Unwrap() error {
	return e.Err
}
