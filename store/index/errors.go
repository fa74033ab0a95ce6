package index

import "github.com/cockroachdb/errors"

// ErrUnknownIdentity indicates removal of an identity that was never indexed.
var ErrUnknownIdentity = errors.New("index: unknown identity")
