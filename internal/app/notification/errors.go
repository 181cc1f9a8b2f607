package notification

import "github.com/cockroachdb/errors"

// ErrStreamFull is returned when a subscriber does not keep up.
var ErrStreamFull = errors.New("notification stream full")
