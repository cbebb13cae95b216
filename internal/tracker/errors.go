package tracker

import "errors"

var (
	errTrackerUnavailable = errors.New("tracker unavailable")
	errUnknownRun         = errors.New("unknown run id")
)
