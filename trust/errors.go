package trust

import "errors"

// ErrMustBeSecure is returned by Set.MarkAnswer when policy requires the
// name to validate as secure and it did not.
var ErrMustBeSecure = errors.New("trust: policy requires a secure answer for this name")
