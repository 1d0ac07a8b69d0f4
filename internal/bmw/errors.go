package bmw

import (
	"errors"
	"fmt"
)

// ErrNoCredentials indicates login was attempted without an email or
// password configured. This is fatal; there is nothing to retry.
var ErrNoCredentials = errors.New("email or password is blank")

// HTTPError is a non-retryable HTTP failure from the vendor API.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}
