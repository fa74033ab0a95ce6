package upload

import "github.com/cockroachdb/errors"

// ErrClosed indicates use of an uploader after Close.
var ErrClosed = errors.New("upload: uploader closed")
