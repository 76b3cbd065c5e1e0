package generation

import "errors"

// ErrGenerationUnavailable means the completion service failed after the
// retry budget was spent; the query has no answer.
var ErrGenerationUnavailable = errors.New("generation unavailable")
