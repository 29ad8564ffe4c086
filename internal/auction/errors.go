package auction

import "errors"

var ErrResourceExhausted = errors.New("resource_exhausted")
