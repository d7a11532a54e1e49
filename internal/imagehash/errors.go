package imagehash

import (
	"fmt"
	"time"
)

// DecodeError means the image bytes could not be turned into an image.
// Batch callers should skip the item rather than abort.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TimeoutError means fetching a remote image exceeded its time bound.
type TimeoutError struct {
	URL   string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch image %s: timed out after %s", e.URL, e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout lets net-style callers detect the condition.
func (e *TimeoutError) Timeout() bool { return true }
