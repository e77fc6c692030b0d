package view

import "errors"

// ErrZoneCutUnknown is returned by FindZoneCut when no ancestor of the
// requested name has a recorded zone cut.
var ErrZoneCutUnknown = errors.New("view: zone cut not known for name")
