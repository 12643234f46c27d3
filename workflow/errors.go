package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalid            = errors.New("invalid")
	ErrNoPublishedVersion = errors.New("workflow has no published version")

	// Publish-time structural defects.
	ErrMissingTrigger = errors.New("missing trigger")
	ErrMissingEnd     = errors.New("missing end")
	ErrDanglingEdge   = errors.New("dangling edge")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
