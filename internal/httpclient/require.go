package httpclient

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ErrMissingHeader is returned when a request lacks a header its client
// requires. The request is never sent.
var ErrMissingHeader = errors.New("httpclient: missing required header")

// RequireHeader returns request middleware that refuses to send requests
// without the named header, set either on the request or on the client.
func RequireHeader(name string) resty.RequestMiddleware {
	return func(c *resty.Client, r *resty.Request) error {
		if r.Header.Get(name) != "" || c.Header.Get(name) != "" {
			return nil
		}
		return fmt.Errorf("%w %s", ErrMissingHeader, name)
	}
}
