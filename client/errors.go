package client

import "errors"

// ErrInvalidEndpoint is returned by New when the endpoint is not an absolute
// http or https URL.
var ErrInvalidEndpoint = errors.New("invalid endpoint")
