package releases

import (
	"errors"
	"fmt"
)

// ConnectivityError reports a remote endpoint that could not be reached or
// answered like it was down. It is recoverable: callers keep running and
// try again later.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err wraps a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
