package retrieval

import "errors"

// ErrRetrievalUnavailable means both search legs failed; there is no
// candidate set to answer from.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")
