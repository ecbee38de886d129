package humanize

import "errors"

// ErrNoLayout is returned when the page reports no layout metrics,
// typically because it has no document yet.
var ErrNoLayout = errors.New("page has no layout metrics")
