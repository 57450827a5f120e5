package feature

import "errors"

var (
	// ErrNotFound reports that a marker required by an extractor is absent.
	ErrNotFound = errors.New("marker not found")
	// ErrParse reports that a marker is present but its value is malformed.
	ErrParse = errors.New("malformed marker value")
	// ErrUnknownTask reports a task kind with no go-signal definition.
	ErrUnknownTask = errors.New("unknown task kind")
)
