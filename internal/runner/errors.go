package runner

import "errors"

// ErrShellNotFound is returned when a copy's shell exits 127 ("command not
// found"); this is fatal per the error taxonomy and aborts the experiment.
var ErrShellNotFound = errors.New("shell: command not found")

// ErrTimeoutExceeded is returned when the experiment-wide timeout elapses
// before every copy completes. Still-running copies are killed.
var ErrTimeoutExceeded = errors.New("experiment timeout exceeded")

// ErrAllCopiesFailed is returned when every copy of a repetition exited
// non-zero; the repetition produced no usable row.
var ErrAllCopiesFailed = errors.New("all copies failed")
